package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// componentSchemas returns the shared schemas referenced by the paths.
func componentSchemas() openapi3.Schemas {
	nullableString := func() *openapi3.SchemaRef {
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string", "null"}}}
	}

	return openapi3.Schemas{
		"ErrorResponse": objectSchema(openapi3.Schemas{
			"error": objectSchema(openapi3.Schemas{
				"code":    intSchema(),
				"message": stringSchema(),
				"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
			}),
		}),
		"Meta": objectSchema(openapi3.Schemas{
			"count":    intSchema(),
			"unread":   intSchema(),
			"fallback": boolSchema(),
		}),
		"Project": objectSchema(openapi3.Schemas{
			"id":          stringSchema(),
			"title":       stringSchema(),
			"description": stringSchema(),
			"tags":        arrayOf(stringSchema()),
			"image_url":   nullableString(),
			"live_url":    nullableString(),
			"github_url":  nullableString(),
			"created_at":  dateTimeSchema(),
		}, "id", "title", "description", "tags"),
		"ProjectDraft": objectSchema(openapi3.Schemas{
			"title":       stringSchema(),
			"description": stringSchema(),
			"tags":        &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Description: "Comma separated."}},
			"live_url":    stringSchema(),
			"github_url":  stringSchema(),
		}, "title", "description"),
		"ContactMessage": objectSchema(openapi3.Schemas{
			"id":         stringSchema(),
			"name":       stringSchema(),
			"email":      stringSchema(),
			"message":    stringSchema(),
			"is_read":    boolSchema(),
			"created_at": dateTimeSchema(),
		}, "id", "name", "email", "message", "is_read"),
		"ContactForm": objectSchema(openapi3.Schemas{
			"name":    maxLen(100),
			"email":   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "email", MaxLength: uint64Ptr(255)}},
			"message": maxLen(1000),
		}, "name", "email", "message"),
		"Confirmation": objectSchema(openapi3.Schemas{
			"title":       stringSchema(),
			"description": stringSchema(),
		}),
		"Credentials": objectSchema(openapi3.Schemas{
			"email":    stringSchema(),
			"password": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, MinLength: 6}},
		}, "email", "password"),
		"User": objectSchema(openapi3.Schemas{
			"id":         stringSchema(),
			"email":      stringSchema(),
			"verified":   boolSchema(),
			"created_at": dateTimeSchema(),
		}),
		"Session": objectSchema(openapi3.Schemas{
			"access_token": stringSchema(),
			"expires_at":   dateTimeSchema(),
			"user":         ref("User"),
			"is_admin":     boolSchema(),
			"phase":        phaseSchema(),
		}),
		"FormState": objectSchema(openapi3.Schemas{
			"open":  boolSchema(),
			"draft": ref("ProjectDraft"),
		}),
		"Notice": objectSchema(openapi3.Schemas{
			"kind":        enumSchema("success", "error", "info"),
			"title":       stringSchema(),
			"description": stringSchema(),
			"at":          dateTimeSchema(),
		}),
		"Snapshot": objectSchema(openapi3.Schemas{
			"phase":    phaseSchema(),
			"projects": arrayOf(ref("Project")),
			"messages": arrayOf(ref("ContactMessage")),
			"unread":   intSchema(),
			"form":     ref("FormState"),
			"notices":  arrayOf(ref("Notice")),
		}),
	}
}

// ─── Schema Helpers ─────────────────────────────────────────────────────────

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func objectSchema(props openapi3.Schemas, required ...string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
		Required:   required,
	}}
}

func arrayOf(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: items}}
}

func listOf(name string) *openapi3.SchemaRef {
	return objectSchema(openapi3.Schemas{
		"resource": arrayOf(ref(name)),
		"meta":     ref("Meta"),
	})
}

func stringSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}
}

func maxLen(n uint64) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, MinLength: 1, MaxLength: uint64Ptr(n)}}
}

func intSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}
}

func boolSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}
}

func dateTimeSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}}
}

func enumSchema(values ...string) *openapi3.SchemaRef {
	enum := make([]interface{}, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Enum: enum}}
}

func phaseSchema() *openapi3.SchemaRef {
	return enumSchema("unauthenticated", "authenticating", "authenticated_non_admin", "authenticated_admin")
}

func uint64Ptr(n uint64) *uint64 { return &n }

// ─── Operation Helpers ──────────────────────────────────────────────────────

func bearer() *openapi3.SecurityRequirements {
	return &openapi3.SecurityRequirements{{"bearerAuth": {}}}
}

func jsonBody(schema, description string) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Description: description,
			Required:    true,
			Content:     openapi3.NewContentWithJSONSchemaRef(ref(schema)),
		},
	}
}

func idParam() openapi3.Parameters {
	return openapi3.Parameters{
		&openapi3.ParameterRef{Value: openapi3.NewPathParameter("id").WithSchema(openapi3.NewStringSchema())},
	}
}

func errorResponse(description string) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &description,
			Content:     openapi3.NewContentWithJSONSchemaRef(ref("ErrorResponse")),
		},
	}
}

// newResponses builds a success response plus the standard error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &description,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})
	responses.Set("400", errorResponse("Bad request"))
	responses.Set("401", errorResponse("Unauthorized"))
	responses.Set("404", errorResponse("Not found"))
	responses.Set("500", errorResponse("Internal server error"))
	return responses
}

// emptyResponses is newResponses for operations without a body.
func emptyResponses(statusCode, description string) *openapi3.Responses {
	responses := openapi3.NewResponses()
	responses.Set(statusCode, &openapi3.ResponseRef{Value: &openapi3.Response{Description: &description}})
	responses.Set("401", errorResponse("Unauthorized"))
	responses.Set("404", errorResponse("Not found"))
	return responses
}

// withStatus adds error responses given as status, description pairs.
func withStatus(r *openapi3.Responses, pairs ...string) *openapi3.Responses {
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Set(pairs[i], errorResponse(pairs[i+1]))
	}
	return r
}
