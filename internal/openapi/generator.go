// Package openapi builds the OpenAPI document for the folio HTTP API.
package openapi

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// Version is the API document version.
const Version = "1.0.0"

// Generate builds the OpenAPI 3.1 document for the public, auth, and admin
// endpoints served under baseURL.
func Generate(baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Folio API",
			Description: "Portfolio catalog, contact intake, and the admin console.",
			Version:     Version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
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

	addPublicPaths(doc)
	addAuthPaths(doc)
	addAdminPaths(doc)
	addProbePaths(doc)
	return doc
}

// ─── Public ─────────────────────────────────────────────────────────────────

func addPublicPaths(doc *openapi3.T) {
	doc.Paths.Set("/api/v1/projects", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"public"},
			Summary:     "List projects",
			Description: "Newest first. When no projects exist or the store is unavailable, six placeholder projects are returned and meta.fallback is true.",
			OperationID: "list_projects",
			Responses:   newResponses("200", "Projects", listOf("Project")),
		},
	})

	doc.Paths.Set("/api/v1/contact", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"public"},
			Summary:     "Send a contact message",
			Description: "Fields are trimmed before validation. Only the first failing rule is reported, with its field in error.context.field.",
			OperationID: "submit_contact",
			RequestBody: jsonBody("ContactForm", "The contact form"),
			Responses: withStatus(
				newResponses("201", "Message stored", ref("Confirmation")),
				"502", "The message could not be stored",
				"429", "Too many messages from this address",
			),
		},
	})
}

// ─── Auth ───────────────────────────────────────────────────────────────────

func addAuthPaths(doc *openapi3.T) {
	doc.Paths.Set("/api/v1/auth/signup", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Register an account",
			Description: "The account stays unverified until the emailed token is confirmed. No session is created.",
			OperationID: "sign_up",
			RequestBody: jsonBody("Credentials", "Email and password"),
			Responses: withStatus(
				newResponses("201", "Verification sent", objectSchema(openapi3.Schemas{"message": stringSchema()})),
				"409", "User already registered",
			),
		},
	})

	verified := objectSchema(openapi3.Schemas{
		"user":     ref("User"),
		"verified": boolSchema(),
	})
	tokenParam := openapi3.NewQueryParameter("token").
		WithDescription("Verification token from the email link.").
		WithSchema(openapi3.NewStringSchema())
	doc.Paths.Set("/api/v1/auth/verify", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Confirm an account from the email link",
			OperationID: "verify_link",
			Parameters:  openapi3.Parameters{&openapi3.ParameterRef{Value: tokenParam}},
			Responses:   newResponses("200", "Account verified", verified),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Confirm an account",
			OperationID: "verify",
			RequestBody: &openapi3.RequestBodyRef{
				Value: &openapi3.RequestBody{
					Required: true,
					Content:  openapi3.NewContentWithJSONSchemaRef(objectSchema(openapi3.Schemas{"token": stringSchema()})),
				},
			},
			Responses: newResponses("200", "Account verified", verified),
		},
	})

	doc.Paths.Set("/api/v1/auth/session", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Sign in",
			Description: "Returns a bearer token. For admins the console is running when the response is sent.",
			OperationID: "sign_in",
			RequestBody: jsonBody("Credentials", "Email and password"),
			Responses:   newResponses("200", "Signed in", ref("Session")),
		},
		Get: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Current session",
			OperationID: "get_session",
			Security:    bearer(),
			Responses:   newResponses("200", "Session state", ref("Session")),
		},
		Delete: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Sign out",
			Description: "Revokes the session. Local state is reset even when revocation fails.",
			OperationID: "sign_out",
			Security:    bearer(),
			Responses:   emptyResponses("204", "Signed out"),
		},
	})
}

// ─── Admin ──────────────────────────────────────────────────────────────────

func addAdminPaths(doc *openapi3.T) {
	admin := func(op *openapi3.Operation) *openapi3.Operation {
		op.Tags = []string{"admin"}
		op.Security = bearer()
		op.Responses.Set("403", errorResponse("Admin access required"))
		return op
	}

	doc.Paths.Set("/api/v1/admin/console", &openapi3.PathItem{
		Get: admin(&openapi3.Operation{
			Summary:     "Console snapshot",
			OperationID: "get_console",
			Responses:   newResponses("200", "Full console state", ref("Snapshot")),
		}),
	})
	doc.Paths.Set("/api/v1/admin/console/form", &openapi3.PathItem{
		Put: admin(&openapi3.Operation{
			Summary:     "Open or close the project form",
			OperationID: "set_form",
			RequestBody: &openapi3.RequestBodyRef{
				Value: &openapi3.RequestBody{
					Required: true,
					Content:  openapi3.NewContentWithJSONSchemaRef(objectSchema(openapi3.Schemas{"open": boolSchema()})),
				},
			},
			Responses: newResponses("200", "Form state", ref("FormState")),
		}),
	})

	eventsDesc := "Server-Sent Events: snapshot first, then message, messages, projects, and notice events; end when the session closes."
	accessToken := openapi3.NewQueryParameter("access_token").
		WithDescription("Bearer token for clients that cannot set headers.").
		WithSchema(openapi3.NewStringSchema())
	doc.Paths.Set("/api/v1/admin/events", &openapi3.PathItem{
		Get: admin(&openapi3.Operation{
			Summary:     "Console update stream",
			OperationID: "stream_events",
			Parameters:  openapi3.Parameters{&openapi3.ParameterRef{Value: accessToken}},
			Responses: func() *openapi3.Responses {
				r := openapi3.NewResponses()
				r.Set("200", &openapi3.ResponseRef{Value: &openapi3.Response{
					Description: &eventsDesc,
					Content: openapi3.Content{
						"text/event-stream": &openapi3.MediaType{Schema: stringSchema()},
					},
				}})
				r.Set("401", errorResponse("Unauthorized"))
				return r
			}(),
		}),
	})

	multipart := objectSchema(openapi3.Schemas{
		"title":       stringSchema(),
		"description": stringSchema(),
		"tags":        stringSchema(),
		"live_url":    stringSchema(),
		"github_url":  stringSchema(),
		"image":       &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "binary"}},
	})
	doc.Paths.Set("/api/v1/admin/projects", &openapi3.PathItem{
		Get: admin(&openapi3.Operation{
			Summary:     "Reload projects",
			OperationID: "admin_list_projects",
			Responses:   newResponses("200", "Projects, newest first", listOf("Project")),
		}),
		Post: admin(&openapi3.Operation{
			Summary:     "Create a project",
			Description: "The image, if any, is uploaded before the record is written. A failed upload writes nothing.",
			OperationID: "create_project",
			RequestBody: &openapi3.RequestBodyRef{
				Value: &openapi3.RequestBody{
					Required: true,
					Content: openapi3.Content{
						"application/json":    &openapi3.MediaType{Schema: ref("ProjectDraft")},
						"multipart/form-data": &openapi3.MediaType{Schema: multipart},
					},
				},
			},
			Responses: withStatus(
				newResponses("201", "Created project", ref("Project")),
				"413", "Image too large",
				"502", "Upload or insert failed",
			),
		}),
	})
	doc.Paths.Set("/api/v1/admin/projects/{id}", &openapi3.PathItem{
		Delete: admin(&openapi3.Operation{
			Summary:     "Delete a project",
			Description: "The project's stored image is kept.",
			OperationID: "delete_project",
			Parameters:  idParam(),
			Responses:   emptyResponses("204", "Deleted"),
		}),
	})

	reload := openapi3.NewQueryParameter("reload").
		WithDescription("Re-read the inbox from the store first.").
		WithSchema(openapi3.NewBoolSchema())
	doc.Paths.Set("/api/v1/admin/messages", &openapi3.PathItem{
		Get: admin(&openapi3.Operation{
			Summary:     "Inbox",
			OperationID: "list_messages",
			Parameters:  openapi3.Parameters{&openapi3.ParameterRef{Value: reload}},
			Responses:   newResponses("200", "Messages, newest first, with meta.unread", listOf("ContactMessage")),
		}),
	})
	unread := objectSchema(openapi3.Schemas{"unread": intSchema()})
	doc.Paths.Set("/api/v1/admin/messages/{id}/read", &openapi3.PathItem{
		Post: admin(&openapi3.Operation{
			Summary:     "Mark a message read",
			OperationID: "mark_message_read",
			Parameters:  idParam(),
			Responses:   newResponses("200", "Unread count after the change", unread),
		}),
	})
	doc.Paths.Set("/api/v1/admin/messages/{id}", &openapi3.PathItem{
		Delete: admin(&openapi3.Operation{
			Summary:     "Delete a message",
			OperationID: "delete_message",
			Parameters:  idParam(),
			Responses:   newResponses("200", "Unread count after the change", unread),
		}),
	})
}

// ─── Probes ─────────────────────────────────────────────────────────────────

func addProbePaths(doc *openapi3.T) {
	status := objectSchema(openapi3.Schemas{
		"status": stringSchema(),
		"checks": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
	})
	for path, summary := range map[string]string{
		"/healthz": "Liveness probe",
		"/readyz":  "Readiness probe",
	} {
		desc := summary
		r := openapi3.NewResponses()
		r.Set("200", &openapi3.ResponseRef{Value: &openapi3.Response{
			Description: &desc,
			Content:     openapi3.NewContentWithJSONSchemaRef(status),
		}})
		doc.Paths.Set(path, &openapi3.PathItem{
			Get: &openapi3.Operation{
				Tags:        []string{"system"},
				Summary:     summary,
				OperationID: fmt.Sprintf("probe_%s", path[1:]),
				Responses:   r,
			},
		})
	}
}
