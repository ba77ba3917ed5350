package openapi

import (
	"strings"
	"testing"
)

// =============================================================================
// Normalize Tests (OpenAPI 3.x)
// =============================================================================

const petstoreV3 = `{
  "openapi": "3.0.1",
  "info": {"title": "Petstore", "version": "1.0"},
  "servers": [{"url": "https://api.example.com/v1"}],
  "paths": {
    "/pets/{petId}": {
      "parameters": [
        {"name": "petId", "in": "path", "required": true, "schema": {"type": "integer"}},
        {"name": "verbose", "in": "query", "schema": {"type": "boolean"}}
      ],
      "get": {
        "operationId": "getPet",
        "parameters": [
          {"name": "verbose", "in": "query", "schema": {"type": "string", "format": "date"}}
        ]
      },
      "delete": {
        "operationId": "deletePet",
        "deprecated": true
      }
    },
    "/pets": {
      "post": {
        "operationId": "createPet",
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {"$ref": "#/components/schemas/Pet"}
            }
          }
        }
      }
    }
  },
  "components": {
    "schemas": {
      "Pet": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "id": {"type": "integer", "readOnly": true},
          "name": {"type": "string"},
          "tags": {"type": "array", "items": {"type": "string"}},
          "owner": {
            "type": "object",
            "properties": {
              "email": {"type": "string", "format": "email"}
            }
          }
        }
      }
    }
  }
}`

func normalizeDoc(t *testing.T, raw string) []EndpointTemplate {
	t.Helper()
	doc, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	templates, err := NewNormalizer().Normalize(doc)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	return templates
}

func findTemplate(t *testing.T, templates []EndpointTemplate, method, path string) EndpointTemplate {
	t.Helper()
	for _, tpl := range templates {
		if tpl.Method == method && tpl.Path == path {
			return tpl
		}
	}
	t.Fatalf("no template for %s %s", method, path)
	return EndpointTemplate{}
}

func findParam(tpl EndpointTemplate, in Location, name string) (ParameterSpec, bool) {
	for _, p := range tpl.Parameters {
		if p.In == in && p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

func TestNormalize_V3(t *testing.T) {
	templates := normalizeDoc(t, petstoreV3)

	// deletePet is deprecated and skipped by default
	if len(templates) != 2 {
		t.Fatalf("template count = %d, want 2", len(templates))
	}

	get := findTemplate(t, templates, "GET", "/pets/{petId}")
	if get.OperationID != "getPet" {
		t.Errorf("OperationID = %q, want getPet", get.OperationID)
	}

	petID, ok := findParam(get, InPath, "petId")
	if !ok {
		t.Fatal("petId path parameter missing")
	}
	if petID.Type != TypeInteger {
		t.Errorf("petId type = %q, want integer", petID.Type)
	}
	if !petID.Required {
		t.Error("path parameters must be required")
	}
}

func TestNormalize_OperationOverridesPathParameter(t *testing.T) {
	templates := normalizeDoc(t, petstoreV3)
	get := findTemplate(t, templates, "GET", "/pets/{petId}")

	verbose, ok := findParam(get, InQuery, "verbose")
	if !ok {
		t.Fatal("verbose query parameter missing")
	}
	// Operation-level declaration (string/date) overrides the path-level
	// boolean.
	if verbose.Type != TypeString {
		t.Errorf("verbose type = %q, want string (operation override)", verbose.Type)
	}
	if verbose.Format != "date" {
		t.Errorf("verbose format = %q, want date", verbose.Format)
	}

	// The override must not duplicate the parameter.
	count := 0
	for _, p := range get.Parameters {
		if p.In == InQuery && p.Name == "verbose" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("verbose appears %d times, want 1", count)
	}
}

func TestNormalize_DeprecatedSkippedByDefault(t *testing.T) {
	templates := normalizeDoc(t, petstoreV3)
	for _, tpl := range templates {
		if tpl.Method == "DELETE" {
			t.Error("deprecated operation should be skipped")
		}
	}
}

func TestNormalize_IncludeDeprecated(t *testing.T) {
	doc, err := Parse([]byte(petstoreV3))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	n := NewNormalizer()
	n.IncludeDeprecated = true
	templates, err := n.Normalize(doc)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(templates) != 3 {
		t.Errorf("template count = %d, want 3 with deprecated included", len(templates))
	}
}

func TestNormalize_BodyFlattening(t *testing.T) {
	templates := normalizeDoc(t, petstoreV3)
	post := findTemplate(t, templates, "POST", "/pets")

	if post.Body != EncodingJSON {
		t.Errorf("body encoding = %q, want JSON", post.Body)
	}

	// readOnly id must not be flattened
	if _, ok := findParam(post, InBody, "id"); ok {
		t.Error("readOnly field should not become a parameter")
	}

	name, ok := findParam(post, InBody, "name")
	if !ok {
		t.Fatal("name body field missing")
	}
	if !name.Required {
		t.Error("name is listed in required and must be marked required")
	}
	if len(name.FieldPath) != 1 || name.FieldPath[0] != "name" {
		t.Errorf("name FieldPath = %v, want [name]", name.FieldPath)
	}

	tags, ok := findParam(post, InBody, "tags.0")
	if !ok {
		t.Fatal("tags array leaf missing")
	}
	if tags.FieldPath[1] != "0" {
		t.Errorf("array leaf FieldPath = %v, want [tags 0]", tags.FieldPath)
	}

	email, ok := findParam(post, InBody, "owner.email")
	if !ok {
		t.Fatal("nested owner.email leaf missing")
	}
	if email.Format != "email" {
		t.Errorf("owner.email format = %q, want email", email.Format)
	}
}

func TestNormalize_FlattenDepthBound(t *testing.T) {
	const deep = `{
  "openapi": "3.0.1",
  "info": {"title": "t", "version": "1"},
  "paths": {
    "/deep": {
      "post": {
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "a": {"type": "object", "properties": {
                    "b": {"type": "object", "properties": {
                      "c": {"type": "string"}
                    }}
                  }}
                }
              }
            }
          }
        }
      }
    }
  }
}`
	doc, err := Parse([]byte(deep))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	n := NewNormalizer()
	n.FlattenDepth = 2
	if _, err := n.Normalize(doc); err == nil {
		// At depth 2 the only leaf sits at depth 3, so the operation has
		// no parameters; it still counts as a usable operation.
		t.Log("depth-bounded normalize produced templates")
	}

	n.FlattenDepth = 3
	templates, err := n.Normalize(doc)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	post := findTemplate(t, templates, "POST", "/deep")
	if _, ok := findParam(post, InBody, "a.b.c"); !ok {
		t.Error("leaf at flatten depth should be included")
	}
}

func TestNormalize_CyclicSchemaTerminates(t *testing.T) {
	const cyclic = `{
  "openapi": "3.0.1",
  "info": {"title": "t", "version": "1"},
  "paths": {
    "/nodes": {
      "post": {
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {"$ref": "#/components/schemas/Node"}
            }
          }
        }
      }
    }
  },
  "components": {
    "schemas": {
      "Node": {
        "type": "object",
        "properties": {
          "label": {"type": "string"},
          "next": {"$ref": "#/components/schemas/Node"}
        }
      }
    }
  }
}`
	templates := normalizeDoc(t, cyclic)
	post := findTemplate(t, templates, "POST", "/nodes")

	if _, ok := findParam(post, InBody, "label"); !ok {
		t.Error("label leaf missing")
	}
	// The self reference terminates; a nested label may appear once per
	// unwound level but the walk must not hang or blow the stack.
	for _, p := range post.Parameters {
		if strings.Count(p.Name, "next") > 1 {
			t.Errorf("cycle not cut: %s", p.Name)
		}
	}
}

func TestNormalize_NoPaths(t *testing.T) {
	doc, err := Parse([]byte(`{"openapi": "3.0.1", "info": {"title": "t", "version": "1"}, "paths": {}}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, err := NewNormalizer().Normalize(doc); err == nil {
		t.Error("Normalize should fail on a document without paths")
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	first := normalizeDoc(t, petstoreV3)
	for i := 0; i < 5; i++ {
		again := normalizeDoc(t, petstoreV3)
		if len(again) != len(first) {
			t.Fatalf("run %d: template count changed", i)
		}
		for j := range first {
			if again[j].Key() != first[j].Key() {
				t.Fatalf("run %d: order changed at %d: %s vs %s", i, j, again[j].Key(), first[j].Key())
			}
			if len(again[j].Parameters) != len(first[j].Parameters) {
				t.Fatalf("run %d: parameter count changed for %s", i, first[j].Key())
			}
			for k := range first[j].Parameters {
				if again[j].Parameters[k].Key() != first[j].Parameters[k].Key() {
					t.Fatalf("run %d: parameter order changed for %s", i, first[j].Key())
				}
			}
		}
	}
}

// =============================================================================
// Normalize Tests (Swagger 2.0)
// =============================================================================

const petstoreV2 = `{
  "swagger": "2.0",
  "info": {"title": "Petstore", "version": "1.0"},
  "host": "legacy.example.com",
  "basePath": "/api",
  "schemes": ["https"],
  "paths": {
    "/users": {
      "post": {
        "operationId": "createUser",
        "consumes": ["application/x-www-form-urlencoded"],
        "parameters": [
          {"name": "username", "in": "formData", "type": "string", "required": true},
          {"name": "age", "in": "formData", "type": "integer"}
        ]
      }
    },
    "/users/{id}": {
      "get": {
        "operationId": "getUser",
        "parameters": [
          {"name": "id", "in": "path", "type": "integer", "required": true},
          {"name": "X-Tenant", "in": "header", "type": "string"}
        ]
      },
      "put": {
        "operationId": "updateUser",
        "parameters": [
          {"name": "id", "in": "path", "type": "integer", "required": true},
          {"name": "body", "in": "body", "schema": {"$ref": "#/definitions/User"}}
        ]
      }
    }
  },
  "definitions": {
    "User": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "score": {"type": "number"}
      }
    }
  }
}`

func TestNormalize_V2(t *testing.T) {
	templates := normalizeDoc(t, petstoreV2)
	if len(templates) != 3 {
		t.Fatalf("template count = %d, want 3", len(templates))
	}

	get := findTemplate(t, templates, "GET", "/users/{id}")
	id, ok := findParam(get, InPath, "id")
	if !ok {
		t.Fatal("id path parameter missing")
	}
	if id.Type != TypeInteger {
		t.Errorf("id type = %q, want integer", id.Type)
	}
	if _, ok := findParam(get, InHeader, "X-Tenant"); !ok {
		t.Error("header parameter missing")
	}
}

func TestNormalize_V2FormData(t *testing.T) {
	templates := normalizeDoc(t, petstoreV2)
	post := findTemplate(t, templates, "POST", "/users")

	if post.Body != EncodingForm {
		t.Errorf("body encoding = %q, want form", post.Body)
	}
	username, ok := findParam(post, InBody, "username")
	if !ok {
		t.Fatal("username formData parameter missing")
	}
	if !username.Required {
		t.Error("username should be required")
	}
	age, ok := findParam(post, InBody, "age")
	if !ok {
		t.Fatal("age formData parameter missing")
	}
	if age.Type != TypeInteger {
		t.Errorf("age type = %q, want integer", age.Type)
	}
}

func TestNormalize_V2BodySchema(t *testing.T) {
	templates := normalizeDoc(t, petstoreV2)
	put := findTemplate(t, templates, "PUT", "/users/{id}")

	if put.Body != EncodingJSON {
		t.Errorf("body encoding = %q, want JSON", put.Body)
	}
	if _, ok := findParam(put, InBody, "name"); !ok {
		t.Error("name body leaf missing")
	}
	score, ok := findParam(put, InBody, "score")
	if !ok {
		t.Fatal("score body leaf missing")
	}
	if score.Type != TypeNumber {
		t.Errorf("score type = %q, want number", score.Type)
	}
}

// =============================================================================
// mergeParameters Tests
// =============================================================================

func TestMergeParameters(t *testing.T) {
	pathLevel := []*Parameter{
		{Name: "id", In: "path", Type: "integer"},
		{Name: "filter", In: "query", Type: "string"},
	}
	opLevel := []*Parameter{
		{Name: "filter", In: "query", Type: "integer"},
		{Name: "sort", In: "query", Type: "string"},
	}

	merged := mergeParameters(pathLevel, opLevel)
	if len(merged) != 3 {
		t.Fatalf("merged count = %d, want 3", len(merged))
	}
	for _, p := range merged {
		if p.Name == "filter" && p.Type != "integer" {
			t.Error("operation-level filter should override path-level")
		}
	}
}

func TestNormalize_ReferencedParameterOverridesPathLevel(t *testing.T) {
	const doc = `{
  "openapi": "3.0.0",
  "info": {"title": "t", "version": "1"},
  "paths": {
    "/search": {
      "parameters": [
        {"name": "q", "in": "query", "schema": {"type": "string", "example": "inline"}}
      ],
      "get": {
        "parameters": [
          {"$ref": "#/components/parameters/Query"}
        ],
        "responses": {"200": {"description": "ok"}}
      }
    }
  },
  "components": {
    "parameters": {
      "Query": {
        "name": "q", "in": "query", "required": true,
        "schema": {"type": "string", "example": "component"}
      }
    }
  }
}`
	templates := normalizeDoc(t, doc)
	get := findTemplate(t, templates, "GET", "/search")

	count := 0
	for _, p := range get.Parameters {
		if p.In == InQuery && p.Name == "q" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("q appears %d times, want exactly 1", count)
	}

	q, _ := findParam(get, InQuery, "q")
	if q.Example != "component" {
		t.Errorf("Example = %v, want the referenced component to win the override", q.Example)
	}
	if !q.Required {
		t.Error("Required should come from the referenced component")
	}
}

// =============================================================================
// allOf Tests
// =============================================================================

func TestNormalize_AllOf(t *testing.T) {
	const composed = `{
  "openapi": "3.0.1",
  "info": {"title": "t", "version": "1"},
  "paths": {
    "/items": {
      "post": {
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "allOf": [
                  {"$ref": "#/components/schemas/Base"},
                  {"type": "object", "properties": {"extra": {"type": "string"}}}
                ]
              }
            }
          }
        }
      }
    }
  },
  "components": {
    "schemas": {
      "Base": {
        "type": "object",
        "properties": {"base_id": {"type": "integer"}}
      }
    }
  }
}`
	templates := normalizeDoc(t, composed)
	post := findTemplate(t, templates, "POST", "/items")

	if _, ok := findParam(post, InBody, "base_id"); !ok {
		t.Error("allOf branch property base_id missing")
	}
	if _, ok := findParam(post, InBody, "extra"); !ok {
		t.Error("allOf inline property extra missing")
	}
}

// =============================================================================
// BaseURL Tests
// =============================================================================

func TestBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		specURL string
		want    string
		wantErr bool
	}{
		{
			name:    "v3 absolute server",
			raw:     petstoreV3,
			specURL: "",
			want:    "https://api.example.com/v1",
		},
		{
			name:    "v2 host and basePath",
			raw:     petstoreV2,
			specURL: "",
			want:    "https://legacy.example.com/api",
		},
		{
			name: "v3 relative server against spec URL",
			raw: `{"openapi": "3.0.1", "info": {"title": "t", "version": "1"},
				"servers": [{"url": "/v2"}], "paths": {"/x": {"get": {}}}}`,
			specURL: "https://spec.example.com/openapi.json",
			want:    "https://spec.example.com/v2",
		},
		{
			name: "v3 no servers falls back to spec origin",
			raw: `{"openapi": "3.0.1", "info": {"title": "t", "version": "1"},
				"paths": {"/x": {"get": {}}}}`,
			specURL: "https://spec.example.com/docs/openapi.json",
			want:    "https://spec.example.com",
		},
		{
			name: "v3 local file without servers",
			raw: `{"openapi": "3.0.1", "info": {"title": "t", "version": "1"},
				"paths": {"/x": {"get": {}}}}`,
			specURL: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			got, err := doc.BaseURL(tt.specURL)
			if tt.wantErr {
				if err == nil {
					t.Errorf("BaseURL() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("BaseURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("BaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
