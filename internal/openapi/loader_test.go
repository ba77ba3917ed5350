package openapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	scanerrors "github.com/PentesterFlow/OpenSQLi/internal/errors"
)

const minimalJSON = `{"openapi":"3.0.0","info":{"title":"t","version":"1"},"paths":{}}`

const minimalYAML = `
openapi: "3.0.0"
info:
  title: t
  version: "1"
paths: {}
`

// =============================================================================
// Loader Tests
// =============================================================================

func TestLoader_LoadURL_JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(minimalJSON)) //nolint:errcheck
	}))
	defer srv.Close()

	res, err := NewLoader(nil).Load(context.Background(), srv.URL+"/openapi.json")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !res.Document.IsOpenAPI3() {
		t.Error("document should be OpenAPI 3")
	}
	if res.SourceURL != srv.URL+"/openapi.json" {
		t.Errorf("SourceURL = %q", res.SourceURL)
	}
}

func TestLoader_LoadURL_YAMLContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write([]byte(minimalYAML)) //nolint:errcheck
	}))
	defer srv.Close()

	res, err := NewLoader(nil).Load(context.Background(), srv.URL+"/spec")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !res.Document.IsOpenAPI3() {
		t.Error("document should be OpenAPI 3")
	}
}

func TestLoader_LoadURL_YAMLExtensionWithQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Deliberately generic content type; the extension decides.
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(minimalYAML)) //nolint:errcheck
	}))
	defer srv.Close()

	if _, err := NewLoader(nil).Load(context.Background(), srv.URL+"/spec.yaml?version=2"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoader_LoadURL_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := NewLoader(nil).Load(context.Background(), srv.URL+"/missing.json"); err == nil {
		t.Error("Load() should fail on a 404")
	}
}

func TestLoader_LoadURL_RetriesDroppedConnection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("server does not support hijacking")
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(minimalJSON)) //nolint:errcheck
	}))
	defer srv.Close()

	res, err := NewLoader(nil).Load(context.Background(), srv.URL+"/openapi.json")
	if err != nil {
		t.Fatalf("Load() should recover on retry: %v", err)
	}
	if !res.Document.IsOpenAPI3() {
		t.Error("document should be OpenAPI 3")
	}
	if calls.Load() != 2 {
		t.Errorf("fetch attempts = %d, want 2", calls.Load())
	}
}

func TestLoader_LoadURL_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewLoader(nil).Load(context.Background(), srv.URL+"/openapi.json")
	if err == nil {
		t.Fatal("Load() should fail on a 401")
	}
	if code := scanerrors.GetStatusCode(err); code != http.StatusUnauthorized {
		t.Errorf("status code = %d, want 401", code)
	}
	if got := scanerrors.GetErrorType(err); got != scanerrors.Auth {
		t.Errorf("error type = %v, want Auth", got)
	}
}

func TestLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "spec.json")
	if err := os.WriteFile(jsonPath, []byte(minimalJSON), 0644); err != nil {
		t.Fatal(err)
	}
	res, err := NewLoader(nil).Load(context.Background(), jsonPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.SourceURL != "" {
		t.Errorf("SourceURL = %q, want empty for local files", res.SourceURL)
	}

	yamlPath := filepath.Join(dir, "spec.yml")
	if err := os.WriteFile(yamlPath, []byte(minimalYAML), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLoader(nil).Load(context.Background(), yamlPath); err != nil {
		t.Fatalf("Load() yaml error = %v", err)
	}
}

func TestLoader_LoadFile_Missing(t *testing.T) {
	if _, err := NewLoader(nil).Load(context.Background(), filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}

func TestParse_UnsupportedVersion(t *testing.T) {
	if _, err := Parse([]byte(`{"info":{"title":"t"},"paths":{}}`)); err == nil {
		t.Error("Parse() should reject documents without a version")
	}
}

func TestParse_AutoDetect(t *testing.T) {
	if _, err := Parse([]byte(minimalJSON)); err != nil {
		t.Errorf("Parse(json) error = %v", err)
	}
	if _, err := Parse([]byte(minimalYAML)); err != nil {
		t.Errorf("Parse(yaml) error = %v", err)
	}
	if _, err := Parse([]byte("{{{{")); err == nil {
		t.Error("Parse() should reject garbage")
	}
}

func TestHasYAMLExtension(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"spec.yaml", true},
		{"spec.yml", true},
		{"SPEC.YAML", true},
		{"https://x/spec.yaml?v=1", true},
		{"spec.json", false},
		{"spec", false},
	}
	for _, tt := range tests {
		if got := hasYAMLExtension(tt.path); got != tt.want {
			t.Errorf("hasYAMLExtension(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
