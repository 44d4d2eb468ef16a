package openapi

import "github.com/getkin/kin-openapi/openapi3"

// ─── Schema Helpers ─────────────────────────────────────────────────────────

func typed(t string) *openapi3.Types {
	return &openapi3.Types{t}
}

func stringProp(description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: typed("string"), Description: description}}
}

func boundedString(description string, maxLen uint64) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:        typed("string"),
		Description: description,
		MaxLength:   &maxLen,
	}}
}

func formatProp(format, description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: typed("string"), Format: format, Description: description}}
}

func nullableTime(description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:        &openapi3.Types{"string", "null"},
		Format:      "date-time",
		Description: description,
	}}
}

func intProp(format, description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: typed("integer"), Format: format, Description: description}}
}

func boolProp(description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: typed("boolean"), Description: description}}
}

func enumProp(description string, values ...string) *openapi3.SchemaRef {
	enum := make([]interface{}, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: typed("string"), Description: description, Enum: enum}}
}

func object(required []string, props openapi3.Schemas) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:       typed("object"),
		Required:   required,
		Properties: props,
	}}
}

func arrayOf(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: typed("array"), Items: items}}
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func listOf(name string) *openapi3.SchemaRef {
	return object([]string{"resource", "meta"}, openapi3.Schemas{
		"resource": arrayOf(ref(name)),
		"meta":     metaSchema(),
	})
}

// metaSchema returns the schema for the "meta" field in list responses.
func metaSchema() *openapi3.SchemaRef {
	return object(nil, openapi3.Schemas{
		"count":  intProp("int32", "Number of records in this page."),
		"limit":  intProp("int32", "Maximum records returned per page."),
		"offset": intProp("int32", "Number of records skipped."),
	})
}
