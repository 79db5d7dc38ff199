package openapi

import (
	"encoding/json"
	"strings"
	"testing"
)

// ─── Document Tests ─────────────────────────────────────────────────────────

func TestGenerate_Info(t *testing.T) {
	doc := Generate("http://localhost:8080")

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("OpenAPI version = %q, want %q", doc.OpenAPI, "3.1.0")
	}
	if doc.Info == nil {
		t.Fatal("Info is nil")
	}
	if doc.Info.Title != "Folio API" {
		t.Errorf("Info.Title = %q, want %q", doc.Info.Title, "Folio API")
	}
	if doc.Info.Version != Version {
		t.Errorf("Info.Version = %q, want %q", doc.Info.Version, Version)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "http://localhost:8080" {
		t.Errorf("Servers not set correctly")
	}
}

func TestGenerate_SecurityScheme(t *testing.T) {
	doc := Generate("http://localhost:8080")

	if doc.Components == nil {
		t.Fatal("Components is nil")
	}
	bearer, ok := doc.Components.SecuritySchemes["bearerAuth"]
	if !ok {
		t.Fatal("bearerAuth security scheme not found")
	}
	if bearer.Value.Type != "http" || bearer.Value.Scheme != "bearer" {
		t.Errorf("bearerAuth = %s/%s, want http/bearer", bearer.Value.Type, bearer.Value.Scheme)
	}
}

func TestGenerate_Paths(t *testing.T) {
	doc := Generate("http://localhost:8080")

	tests := []struct {
		path    string
		methods []string
	}{
		{"/api/v1/projects", []string{"GET"}},
		{"/api/v1/contact", []string{"POST"}},
		{"/api/v1/auth/signup", []string{"POST"}},
		{"/api/v1/auth/verify", []string{"GET", "POST"}},
		{"/api/v1/auth/session", []string{"GET", "POST", "DELETE"}},
		{"/api/v1/admin/console", []string{"GET"}},
		{"/api/v1/admin/console/form", []string{"PUT"}},
		{"/api/v1/admin/events", []string{"GET"}},
		{"/api/v1/admin/projects", []string{"GET", "POST"}},
		{"/api/v1/admin/projects/{id}", []string{"DELETE"}},
		{"/api/v1/admin/messages", []string{"GET"}},
		{"/api/v1/admin/messages/{id}/read", []string{"POST"}},
		{"/api/v1/admin/messages/{id}", []string{"DELETE"}},
		{"/healthz", []string{"GET"}},
		{"/readyz", []string{"GET"}},
	}

	for _, tt := range tests {
		item := doc.Paths.Value(tt.path)
		if item == nil {
			t.Errorf("path %s missing", tt.path)
			continue
		}
		for _, m := range tt.methods {
			if item.GetOperation(m) == nil {
				t.Errorf("%s %s missing", m, tt.path)
			}
		}
	}
	if got := doc.Paths.Len(); got != len(tests) {
		t.Errorf("path count = %d, want %d", got, len(tests))
	}
}

func TestGenerate_AdminOperationsRequireBearer(t *testing.T) {
	doc := Generate("http://localhost:8080")

	for path, item := range doc.Paths.Map() {
		if !strings.HasPrefix(path, "/api/v1/admin/") {
			continue
		}
		for method, op := range item.Operations() {
			if op.Security == nil || len(*op.Security) == 0 {
				t.Errorf("%s %s has no security requirement", method, path)
			}
			if op.Responses.Value("403") == nil {
				t.Errorf("%s %s has no 403 response", method, path)
			}
		}
	}

	if op := doc.Paths.Value("/api/v1/projects").Get; op.Security != nil {
		t.Error("public project listing should not require auth")
	}
}

func TestGenerate_CreateProjectAcceptsMultipart(t *testing.T) {
	doc := Generate("http://localhost:8080")

	op := doc.Paths.Value("/api/v1/admin/projects").Post
	content := op.RequestBody.Value.Content
	if content.Get("application/json") == nil {
		t.Error("missing JSON body")
	}
	mp := content.Get("multipart/form-data")
	if mp == nil {
		t.Fatal("missing multipart body")
	}
	image := mp.Schema.Value.Properties["image"]
	if image == nil || image.Value.Format != "binary" {
		t.Error("multipart image should be a binary string")
	}
	if op.Responses.Value("413") == nil {
		t.Error("missing 413 response")
	}
}

func TestGenerate_EventStream(t *testing.T) {
	doc := Generate("http://localhost:8080")

	resp := doc.Paths.Value("/api/v1/admin/events").Get.Responses.Value("200")
	if resp == nil || resp.Value.Content.Get("text/event-stream") == nil {
		t.Error("events endpoint should produce text/event-stream")
	}
}

func TestGenerate_ContactFormLimits(t *testing.T) {
	doc := Generate("http://localhost:8080")

	form := doc.Components.Schemas["ContactForm"].Value
	want := map[string]uint64{"name": 100, "email": 255, "message": 1000}
	for field, max := range want {
		prop := form.Properties[field]
		if prop == nil || prop.Value.MaxLength == nil {
			t.Errorf("%s has no max length", field)
			continue
		}
		if *prop.Value.MaxLength != max {
			t.Errorf("%s max length = %d, want %d", field, *prop.Value.MaxLength, max)
		}
	}
}

func TestGenerate_MarshalJSON(t *testing.T) {
	doc := Generate("http://localhost:8080")

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["paths"]; !ok {
		t.Error("paths missing from JSON output")
	}
	if !strings.Contains(string(data), "#/components/schemas/ErrorResponse") {
		t.Error("error responses should reference ErrorResponse")
	}
}

func TestGenerate_OperationIDsUnique(t *testing.T) {
	doc := Generate("http://localhost:8080")

	seen := map[string]string{}
	for path, item := range doc.Paths.Map() {
		for method, op := range item.Operations() {
			if op.OperationID == "" {
				t.Errorf("%s %s has no operation id", method, path)
				continue
			}
			if prev, dup := seen[op.OperationID]; dup {
				t.Errorf("operation id %q used by %s and %s %s", op.OperationID, prev, method, path)
			}
			seen[op.OperationID] = method + " " + path
		}
	}
}
