package openapi

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

const (
	tagLicensing = "licensing"
	tagPurchase  = "purchase"
	tagAdmin     = "admin"
	tagOps       = "operations"
)

// Generate builds the OpenAPI 3.1 document for the whole HTTP surface:
// the public licensing endpoints, the purchase status endpoint, the
// operational probes, and the JWT-protected admin API.
func Generate(baseURL, version string) *openapi3.T {
	if version == "" {
		version = "dev"
	}
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "licensed API",
			Description: "License activation, validation, and deactivation for desktop clients, plus staff administration.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
		Tags: openapi3.Tags{
			{Name: tagLicensing, Description: "Endpoints called by the desktop application. No session; key and machine id are the credentials."},
			{Name: tagPurchase, Description: "Checkout follow-up for buyers."},
			{Name: tagAdmin, Description: "Staff administration. Requires a bearer token from /api/v1/system/admin/session."},
			{Name: tagOps, Description: "Health, readiness, and metrics."},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = componentSchemas()
	components.SecuritySchemes = openapi3.SecuritySchemes{
		"bearerAuth": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:         "http",
				Scheme:       "bearer",
				BearerFormat: "JWT",
			},
		},
	}
	doc.Components = &components
	doc.Paths = openapi3.NewPaths()

	addLicensingPaths(doc)
	addPurchasePaths(doc)
	addOpsPaths(doc)
	addAdminPaths(doc)

	return doc
}

// ─── Components ─────────────────────────────────────────────────────────────

func componentSchemas() openapi3.Schemas {
	errorCodes := []string{"INVALID_REQUEST", "INVALID_KEY", "EXPIRED", "ALREADY_ACTIVATED", "LICENSE_REVOKED", "NOT_ACTIVATED", "SERVER_ERROR"}

	return openapi3.Schemas{
		"ErrorResponse": object([]string{"error"}, openapi3.Schemas{
			"error": object([]string{"code", "message"}, openapi3.Schemas{
				"code":    intProp("int32", "HTTP status code."),
				"message": stringProp(""),
				"context": {Value: &openapi3.Schema{Type: typed("object")}},
			}),
		}),

		"ActivateRequest": object([]string{"license_key", "machine_id", "app_version", "platform"}, openapi3.Schemas{
			"license_key": formatProp("uuid", "License key issued at purchase."),
			"machine_id":  boundedString("Stable identifier of the installation.", 64),
			"app_version": boundedString("Client application version.", 20),
			"platform":    boundedString("Client operating system.", 20),
		}),
		"ActivateResponse": object([]string{"success"}, openapi3.Schemas{
			"success": boolProp(""),
			"license": object([]string{"email"}, openapi3.Schemas{
				"email": formatProp("email", "Email the license was issued to."),
			}),
			"error":   enumProp("Failure code, present when success is false.", errorCodes...),
			"message": stringProp("Human readable failure reason."),
		}),

		"MachineRequest": object([]string{"license_key", "machine_id"}, openapi3.Schemas{
			"license_key": formatProp("uuid", ""),
			"machine_id":  boundedString("", 64),
		}),
		"ValidateResponse": object([]string{"valid"}, openapi3.Schemas{
			"valid":   boolProp(""),
			"error":   enumProp("Failure code, present when valid is false.", errorCodes...),
			"message": stringProp(""),
		}),
		"DeactivateResponse": object([]string{"success"}, openapi3.Schemas{
			"success": boolProp(""),
			"message": stringProp("Failure reason, present when success is false."),
		}),

		"PurchaseStatus": object([]string{"status"}, openapi3.Schemas{
			"status":      enumProp("", "pending", "completed"),
			"email":       formatProp("email", ""),
			"license_key": formatProp("uuid", "Present once the purchase is completed."),
		}),

		"License": object(nil, openapi3.Schemas{
			"id":              stringProp(""),
			"license_key":     formatProp("uuid", ""),
			"email":           formatProp("email", ""),
			"is_revoked":      boolProp(""),
			"max_activations": intProp("int32", "Maximum number of simultaneously active machines."),
			"expires_at":      nullableTime("Null means the license never expires."),
			"notes":           stringProp("Internal staff notes."),
			"created_at":      formatProp("date-time", ""),
			"updated_at":      formatProp("date-time", ""),
		}),
		"LicenseSummary": {Value: &openapi3.Schema{
			AllOf: openapi3.SchemaRefs{
				ref("License"),
				object(nil, openapi3.Schemas{
					"active_activations": intProp("int32", "Machines currently holding a seat."),
				}),
			},
		}},
		"LicenseDetail": {Value: &openapi3.Schema{
			AllOf: openapi3.SchemaRefs{
				ref("LicenseSummary"),
				object(nil, openapi3.Schemas{
					"activations": arrayOf(ref("Activation")),
				}),
			},
		}},
		"Activation": object(nil, openapi3.Schemas{
			"id":                stringProp(""),
			"license_id":        stringProp(""),
			"machine_id":        stringProp(""),
			"app_version":       stringProp(""),
			"platform":          stringProp(""),
			"is_active":         boolProp(""),
			"activated_at":      formatProp("date-time", ""),
			"last_validated_at": formatProp("date-time", ""),
			"deactivated_at":    nullableTime(""),
		}),
		"CreateLicenseRequest": object([]string{"email"}, openapi3.Schemas{
			"email":           formatProp("email", ""),
			"max_activations": intProp("int32", "Defaults to the configured seat count."),
			"expires_at":      nullableTime(""),
			"notes":           stringProp(""),
		}),
		"UpdateLicenseRequest": object(nil, openapi3.Schemas{
			"email":           formatProp("email", ""),
			"max_activations": intProp("int32", "Must not be below the number of active machines."),
			"expires_at":      nullableTime(""),
			"clear_expiry":    boolProp("Remove the expiry date."),
			"notes":           stringProp(""),
		}),

		"Purchase": object(nil, openapi3.Schemas{
			"id":                  stringProp(""),
			"checkout_session_id": stringProp(""),
			"amount":              intProp("int64", "Amount in minor currency units."),
			"currency":            stringProp(""),
			"status":              enumProp("", "pending", "completed"),
			"customer_email":      formatProp("email", ""),
			"license_id":          {Value: &openapi3.Schema{Type: &openapi3.Types{"string", "null"}}},
			"created_at":          formatProp("date-time", ""),
			"updated_at":          formatProp("date-time", ""),
		}),
		"RecordPurchaseRequest": object([]string{"checkout_session_id"}, openapi3.Schemas{
			"checkout_session_id": stringProp(""),
			"amount":              intProp("int64", ""),
			"currency":            stringProp("ISO currency code, defaults to usd."),
		}),

		"Admin": object(nil, openapi3.Schemas{
			"id":            stringProp(""),
			"email":         formatProp("email", ""),
			"name":          stringProp(""),
			"is_active":     boolProp(""),
			"last_login_at": nullableTime(""),
			"created_at":    formatProp("date-time", ""),
			"updated_at":    formatProp("date-time", ""),
		}),
	}
}

// ─── Paths ──────────────────────────────────────────────────────────────────

func addLicensingPaths(doc *openapi3.T) {
	public := &openapi3.SecurityRequirements{}

	activate := operation(tagLicensing, "activate_license", "Activate a license on a machine",
		jsonBody(ref("ActivateRequest")), licensingResponses(ref("ActivateResponse")))
	activate.Description = "Binds machine_id to the license. Repeating the call from an active machine succeeds without consuming another seat."
	activate.Security = public
	addOperation(doc, "/api/license/activate", http.MethodPost, activate)

	validate := operation(tagLicensing, "validate_license", "Check that a machine holds an active seat",
		jsonBody(ref("MachineRequest")), licensingResponses(ref("ValidateResponse")))
	validate.Security = public
	addOperation(doc, "/api/license/validate", http.MethodPost, validate)

	deactivate := operation(tagLicensing, "deactivate_license", "Release a machine's seat",
		jsonBody(ref("MachineRequest")), licensingResponses(ref("DeactivateResponse")))
	deactivate.Security = public
	addOperation(doc, "/api/license/deactivate", http.MethodPost, deactivate)
}

func addPurchasePaths(doc *openapi3.T) {
	status := operation(tagPurchase, "purchase_status", "Report the state of a checkout session",
		nil, newResponses("200", "Purchase state", ref("PurchaseStatus")))
	status.Parameters = openapi3.Parameters{queryParam("session_id", "Checkout session id", true)}
	status.Security = &openapi3.SecurityRequirements{}
	addOperation(doc, "/api/v1/purchase/status", http.MethodGet, status)
}

func addOpsPaths(doc *openapi3.T) {
	for _, p := range []struct{ path, id, summary string }{
		{"/healthz", "healthz", "Liveness probe"},
		{"/readyz", "readyz", "Readiness probe; pings the database"},
		{"/metrics", "metrics", "Prometheus metrics"},
	} {
		desc := p.summary
		responses := openapi3.NewResponses()
		responses.Set("200", &openapi3.ResponseRef{Value: &openapi3.Response{Description: &desc}})
		op := &openapi3.Operation{
			Tags:        []string{tagOps},
			Summary:     p.summary,
			OperationID: p.id,
			Responses:   responses,
			Security:    &openapi3.SecurityRequirements{},
		}
		addOperation(doc, p.path, http.MethodGet, op)
	}
}

func addAdminPaths(doc *openapi3.T) {
	login := operation(tagAdmin, "admin_login", "Exchange admin credentials for a session token",
		jsonBody(object([]string{"email", "password"}, openapi3.Schemas{
			"email":    formatProp("email", ""),
			"password": {Value: &openapi3.Schema{Type: typed("string"), Format: "password"}},
		})),
		newResponses("200", "Session token", object(nil, openapi3.Schemas{
			"session_token": stringProp(""),
			"token_type":    stringProp(""),
			"expires_in":    intProp("int32", "Token lifetime in seconds."),
			"admin_id":      stringProp(""),
			"email":         formatProp("email", ""),
			"name":          stringProp(""),
		})))
	login.Security = &openapi3.SecurityRequirements{}
	addOperation(doc, "/api/v1/system/admin/session", http.MethodPost, login)

	bearer := &openapi3.SecurityRequirements{{"bearerAuth": {}}}
	keyParam := pathParam("key", "License key")
	page := openapi3.Parameters{
		queryParam("limit", "Page size (1-500, default 50)", false),
		queryParam("offset", "Records to skip", false),
	}

	ops := []struct {
		path, method string
		op           *openapi3.Operation
		params       openapi3.Parameters
	}{
		{"/api/v1/system/license", http.MethodGet,
			operation(tagAdmin, "list_licenses", "List licenses newest first", nil,
				newResponses("200", "Licenses", listOf("LicenseSummary"))),
			append(openapi3.Parameters{queryParam("email", "Filter by email substring", false)}, page...)},
		{"/api/v1/system/license", http.MethodPost,
			operation(tagAdmin, "create_license", "Issue a license", jsonBody(ref("CreateLicenseRequest")),
				newResponses("201", "Created license", ref("License"))), nil},
		{"/api/v1/system/license/{key}", http.MethodGet,
			operation(tagAdmin, "get_license", "Show a license with its activations", nil,
				newResponses("200", "License detail", ref("LicenseDetail"))),
			openapi3.Parameters{keyParam}},
		{"/api/v1/system/license/{key}", http.MethodPatch,
			operation(tagAdmin, "update_license", "Change email, seats, expiry, or notes", jsonBody(ref("UpdateLicenseRequest")),
				newResponses("200", "Updated license", ref("License"))),
			openapi3.Parameters{keyParam}},
		{"/api/v1/system/license/{key}/revoke", http.MethodPost,
			operation(tagAdmin, "revoke_license", "Revoke a license", nil, successResponses()),
			openapi3.Parameters{keyParam}},
		{"/api/v1/system/license/{key}/unrevoke", http.MethodPost,
			operation(tagAdmin, "unrevoke_license", "Reinstate a revoked license", nil, successResponses()),
			openapi3.Parameters{keyParam}},
		{"/api/v1/system/license/{key}/activation/{machineID}", http.MethodDelete,
			operation(tagAdmin, "deactivate_machine", "Free the seat held by a machine", nil, successResponses()),
			openapi3.Parameters{keyParam, pathParam("machineID", "Machine id")}},
		{"/api/v1/system/purchase", http.MethodGet,
			operation(tagAdmin, "list_purchases", "List purchases newest first", nil,
				newResponses("200", "Purchases", listOf("Purchase"))),
			page},
		{"/api/v1/system/purchase", http.MethodPost,
			operation(tagAdmin, "record_purchase", "Record a pending checkout session", jsonBody(ref("RecordPurchaseRequest")),
				newResponses("201", "Recorded purchase", ref("Purchase"))), nil},
		{"/api/v1/system/purchase/{sessionID}/complete", http.MethodPost,
			operation(tagAdmin, "complete_purchase", "Apply a confirmed payment and issue the license",
				optionalJSONBody(object(nil, openapi3.Schemas{"email": formatProp("email", "Overrides the recorded customer email.")})),
				newResponses("200", "Purchase and its license", object(nil, openapi3.Schemas{
					"purchase": ref("Purchase"),
					"license":  ref("License"),
				}))),
			openapi3.Parameters{pathParam("sessionID", "Checkout session id")}},
		{"/api/v1/system/admin", http.MethodGet,
			operation(tagAdmin, "list_admins", "List staff accounts", nil,
				newResponses("200", "Admins", listOf("Admin"))), nil},
		{"/api/v1/system/admin", http.MethodPost,
			operation(tagAdmin, "create_admin", "Create a staff account",
				jsonBody(object([]string{"email", "password"}, openapi3.Schemas{
					"email":    formatProp("email", ""),
					"name":     stringProp(""),
					"password": {Value: &openapi3.Schema{Type: typed("string"), Format: "password"}},
				})),
				newResponses("201", "Created admin", ref("Admin"))), nil},
	}

	for _, o := range ops {
		o.op.Security = bearer
		o.op.Parameters = o.params
		addOperation(doc, o.path, o.method, o.op)
	}
}

// ─── Operation Builders ─────────────────────────────────────────────────────

func operation(tag, id, summary string, body *openapi3.RequestBodyRef, responses *openapi3.Responses) *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{tag},
		Summary:     summary,
		OperationID: id,
		RequestBody: body,
		Responses:   responses,
	}
}

func addOperation(doc *openapi3.T, path, method string, op *openapi3.Operation) {
	item := doc.Paths.Value(path)
	if item == nil {
		item = &openapi3.PathItem{}
		doc.Paths.Set(path, item)
	}
	item.SetOperation(method, op)
}

func jsonBody(schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Required: true,
			Content:  openapi3.NewContentWithJSONSchemaRef(schema),
		},
	}
}

func optionalJSONBody(schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	body := jsonBody(schema)
	body.Value.Required = false
	return body
}

func pathParam(name, description string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: &openapi3.Parameter{
		Name:        name,
		In:          openapi3.ParameterInPath,
		Description: description,
		Required:    true,
		Schema:      stringProp(""),
	}}
}

func queryParam(name, description string, required bool) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: &openapi3.Parameter{
		Name:        name,
		In:          openapi3.ParameterInQuery,
		Description: description,
		Required:    required,
		Schema:      stringProp(""),
	}}
}

// licensingResponses documents the licensing convention: request and
// policy failures are a 200 with a failure body; 500 uses the same shape.
func licensingResponses(schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	okDesc := "Outcome of the call, successful or not"
	responses.Set("200", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &okDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	limitDesc := "Too many requests from this address"
	responses.Set("429", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &limitDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(ref("ErrorResponse")),
		},
	})

	serverErrDesc := "Internal server error"
	responses.Set("500", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &serverErrDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})
	return responses
}

func successResponses() *openapi3.Responses {
	return newResponses("200", "Done", object(nil, openapi3.Schemas{"success": boolProp("")}))
}

// newResponses builds a Responses map with a success response and standard error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := ref("ErrorResponse")
	for _, e := range []struct{ code, desc string }{
		{"400", "Bad request"},
		{"401", "Unauthorized"},
		{"404", "Not found"},
		{"500", "Internal server error"},
	} {
		desc := e.desc
		responses.Set(e.code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}

	return responses
}
