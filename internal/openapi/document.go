package openapi

import (
	"net/url"
	"strings"

	scanerrors "github.com/PentesterFlow/OpenSQLi/internal/errors"
)

// Document is the subset of an OpenAPI 3.x or Swagger 2.0 description the
// scanner cares about. One struct covers both formats; version-specific
// fields are simply empty on the other format.
type Document struct {
	OpenAPI string `json:"openapi,omitempty" yaml:"openapi,omitempty"`
	Swagger string `json:"swagger,omitempty" yaml:"swagger,omitempty"`

	Info *Info `json:"info,omitempty" yaml:"info,omitempty"`

	// OpenAPI 3.x
	Servers    []Server    `json:"servers,omitempty" yaml:"servers,omitempty"`
	Components *Components `json:"components,omitempty" yaml:"components,omitempty"`

	// Swagger 2.0
	Host        string             `json:"host,omitempty" yaml:"host,omitempty"`
	BasePath    string             `json:"basePath,omitempty" yaml:"basePath,omitempty"`
	Schemes     []string           `json:"schemes,omitempty" yaml:"schemes,omitempty"`
	Consumes    []string           `json:"consumes,omitempty" yaml:"consumes,omitempty"`
	Definitions map[string]*Schema `json:"definitions,omitempty" yaml:"definitions,omitempty"`

	Paths map[string]*PathItem `json:"paths,omitempty" yaml:"paths,omitempty"`
}

// Info holds API metadata.
type Info struct {
	Title   string `json:"title,omitempty" yaml:"title,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// Server is an OpenAPI 3.x server entry.
type Server struct {
	URL         string `json:"url" yaml:"url"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Components holds reusable OpenAPI 3.x objects.
type Components struct {
	Schemas       map[string]*Schema      `json:"schemas,omitempty" yaml:"schemas,omitempty"`
	Parameters    map[string]*Parameter   `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	RequestBodies map[string]*RequestBody `json:"requestBodies,omitempty" yaml:"requestBodies,omitempty"`
}

// PathItem holds the operations available on a single path.
type PathItem struct {
	Ref string `json:"$ref,omitempty" yaml:"$ref,omitempty"`

	Get     *Operation `json:"get,omitempty" yaml:"get,omitempty"`
	Put     *Operation `json:"put,omitempty" yaml:"put,omitempty"`
	Post    *Operation `json:"post,omitempty" yaml:"post,omitempty"`
	Delete  *Operation `json:"delete,omitempty" yaml:"delete,omitempty"`
	Options *Operation `json:"options,omitempty" yaml:"options,omitempty"`
	Head    *Operation `json:"head,omitempty" yaml:"head,omitempty"`
	Patch   *Operation `json:"patch,omitempty" yaml:"patch,omitempty"`

	Parameters []*Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Operations returns the defined operations keyed by upper-case method, in a
// fixed method order.
func (p *PathItem) Operations() []MethodOperation {
	ops := []MethodOperation{
		{"GET", p.Get},
		{"POST", p.Post},
		{"PUT", p.Put},
		{"PATCH", p.Patch},
		{"DELETE", p.Delete},
		{"HEAD", p.Head},
		{"OPTIONS", p.Options},
	}
	out := ops[:0]
	for _, op := range ops {
		if op.Operation != nil {
			out = append(out, op)
		}
	}
	return out
}

// MethodOperation pairs an HTTP method with its operation.
type MethodOperation struct {
	Method    string
	Operation *Operation
}

// Operation describes a single API operation.
type Operation struct {
	OperationID string       `json:"operationId,omitempty" yaml:"operationId,omitempty"`
	Summary     string       `json:"summary,omitempty" yaml:"summary,omitempty"`
	Deprecated  bool         `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
	Parameters  []*Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	RequestBody *RequestBody `json:"requestBody,omitempty" yaml:"requestBody,omitempty"`
	Consumes    []string     `json:"consumes,omitempty" yaml:"consumes,omitempty"`
}

// Parameter describes a single operation parameter. Swagger 2.0 carries the
// type information inline; OpenAPI 3.x nests it in Schema.
type Parameter struct {
	Ref string `json:"$ref,omitempty" yaml:"$ref,omitempty"`

	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	In       string `json:"in,omitempty" yaml:"in,omitempty"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`

	Schema *Schema `json:"schema,omitempty" yaml:"schema,omitempty"`

	// Swagger 2.0 inline type info
	Type    string        `json:"type,omitempty" yaml:"type,omitempty"`
	Format  string        `json:"format,omitempty" yaml:"format,omitempty"`
	Enum    []interface{} `json:"enum,omitempty" yaml:"enum,omitempty"`
	Default interface{}   `json:"default,omitempty" yaml:"default,omitempty"`
	Items   *Schema       `json:"items,omitempty" yaml:"items,omitempty"`

	Example interface{} `json:"example,omitempty" yaml:"example,omitempty"`
}

// RequestBody is an OpenAPI 3.x request body.
type RequestBody struct {
	Ref string `json:"$ref,omitempty" yaml:"$ref,omitempty"`

	Required bool                  `json:"required,omitempty" yaml:"required,omitempty"`
	Content  map[string]*MediaType `json:"content,omitempty" yaml:"content,omitempty"`
}

// MediaType holds the schema for one content type.
type MediaType struct {
	Schema  *Schema     `json:"schema,omitempty" yaml:"schema,omitempty"`
	Example interface{} `json:"example,omitempty" yaml:"example,omitempty"`
}

// Schema is a JSON Schema subset.
type Schema struct {
	Ref string `json:"$ref,omitempty" yaml:"$ref,omitempty"`

	Type       string             `json:"type,omitempty" yaml:"type,omitempty"`
	Format     string             `json:"format,omitempty" yaml:"format,omitempty"`
	Properties map[string]*Schema `json:"properties,omitempty" yaml:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty" yaml:"items,omitempty"`
	Required   []string           `json:"required,omitempty" yaml:"required,omitempty"`
	Enum       []interface{}      `json:"enum,omitempty" yaml:"enum,omitempty"`
	Default    interface{}        `json:"default,omitempty" yaml:"default,omitempty"`
	Example    interface{}        `json:"example,omitempty" yaml:"example,omitempty"`
	ReadOnly   bool               `json:"readOnly,omitempty" yaml:"readOnly,omitempty"`
	WriteOnly  bool               `json:"writeOnly,omitempty" yaml:"writeOnly,omitempty"`
	Nullable   bool               `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	AllOf      []*Schema          `json:"allOf,omitempty" yaml:"allOf,omitempty"`
}

// IsOpenAPI3 reports whether the document declares OpenAPI 3.x.
func (d *Document) IsOpenAPI3() bool {
	return strings.HasPrefix(d.OpenAPI, "3")
}

// IsSwagger2 reports whether the document declares Swagger 2.0.
func (d *Document) IsSwagger2() bool {
	return strings.HasPrefix(d.Swagger, "2")
}

// ResolveSchema follows a local $ref to its schema. Returns nil for external
// or unknown refs.
func (d *Document) ResolveSchema(ref string) *Schema {
	switch {
	case strings.HasPrefix(ref, "#/components/schemas/"):
		if d.Components == nil {
			return nil
		}
		return d.Components.Schemas[strings.TrimPrefix(ref, "#/components/schemas/")]
	case strings.HasPrefix(ref, "#/definitions/"):
		return d.Definitions[strings.TrimPrefix(ref, "#/definitions/")]
	default:
		return nil
	}
}

// ResolveParameter follows a local $ref to its parameter definition.
func (d *Document) ResolveParameter(ref string) *Parameter {
	if !strings.HasPrefix(ref, "#/components/parameters/") || d.Components == nil {
		return nil
	}
	return d.Components.Parameters[strings.TrimPrefix(ref, "#/components/parameters/")]
}

// ResolveRequestBody follows a local $ref to its request body definition.
func (d *Document) ResolveRequestBody(ref string) *RequestBody {
	if !strings.HasPrefix(ref, "#/components/requestBodies/") || d.Components == nil {
		return nil
	}
	return d.Components.RequestBodies[strings.TrimPrefix(ref, "#/components/requestBodies/")]
}

// deref returns the schema itself or, if it is a reference, the target.
func (d *Document) deref(s *Schema) *Schema {
	if s == nil {
		return nil
	}
	if s.Ref != "" {
		return d.ResolveSchema(s.Ref)
	}
	return s
}

// BaseURL derives the base URL to send probes to. specURL is the location
// the document was fetched from and anchors relative server URLs; it may be
// empty for local files, in which case the document must carry an absolute
// location.
func (d *Document) BaseURL(specURL string) (string, error) {
	if d.IsOpenAPI3() {
		server := "/"
		if len(d.Servers) > 0 && d.Servers[0].URL != "" {
			server = d.Servers[0].URL
		}
		return resolveAgainst(specURL, server)
	}

	// Swagger 2.0: host + schemes + basePath, each falling back to the
	// document's own location.
	host := d.Host
	scheme := ""
	if len(d.Schemes) > 0 {
		scheme = d.Schemes[0]
	}

	if specURL != "" {
		su, err := url.Parse(specURL)
		if err == nil {
			if host == "" {
				host = su.Host
			}
			if scheme == "" {
				scheme = su.Scheme
			}
		}
	}
	if scheme == "" {
		scheme = "https"
	}
	if host == "" {
		return "", scanerrors.NewSchemaError("document", "no host in description and no source URL to derive one from")
	}

	base := scheme + "://" + host + d.BasePath
	return strings.TrimSuffix(base, "/"), nil
}

// resolveAgainst resolves ref relative to base and returns it without a
// trailing slash.
func resolveAgainst(base, ref string) (string, error) {
	ru, err := url.Parse(ref)
	if err != nil {
		return "", scanerrors.NewSchemaError("document", "unparseable server URL: "+ref)
	}
	if ru.IsAbs() {
		return strings.TrimSuffix(ru.String(), "/"), nil
	}
	if base == "" {
		return "", scanerrors.NewSchemaError("document", "relative server URL with no source URL to resolve against")
	}
	bu, err := url.Parse(base)
	if err != nil {
		return "", scanerrors.NewSchemaError("document", "unparseable source URL: "+base)
	}
	return strings.TrimSuffix(bu.ResolveReference(ru).String(), "/"), nil
}
