package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// validate is the shared validator instance. Field names in errors use the
// JSON tag so messages match what the client sent.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// checkStruct validates v and converts the first failure into an
// INVALID_REQUEST error.
func checkStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return licenseErr(CodeInvalidRequest, msgMissingFields)
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return licenseErr(CodeInvalidRequest, msgMissingFields)
		}
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "max":
		return licenseErr(CodeInvalidRequest, fmt.Sprintf("Field %s must be at most %s characters", fe.Field(), fe.Param()))
	case "email":
		return licenseErr(CodeInvalidRequest, fmt.Sprintf("Field %s must be a valid email address", fe.Field()))
	case "min", "gte":
		return licenseErr(CodeInvalidRequest, fmt.Sprintf("Field %s must be at least %s", fe.Field(), fe.Param()))
	}
	return licenseErr(CodeInvalidRequest, fmt.Sprintf("Field %s is invalid", fe.Field()))
}

// CanonicalKey parses a license key in any textual UUID form and returns its
// canonical lower-case hyphenated rendering.
func CanonicalKey(s string) (string, bool) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return u.String(), true
}
