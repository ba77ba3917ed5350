package openapi

import "fmt"

// Location identifies where a parameter travels in the request.
type Location string

// Parameter locations.
const (
	InPath   Location = "path"
	InQuery  Location = "query"
	InHeader Location = "header"
	InBody   Location = "body"
)

// DataType is the declared scalar type of a parameter.
type DataType string

// Parameter data types.
const (
	TypeString  DataType = "string"
	TypeInteger DataType = "integer"
	TypeNumber  DataType = "number"
	TypeBoolean DataType = "boolean"
	TypeArray   DataType = "array"
	TypeObject  DataType = "object"
)

// BodyEncoding is the request body wire format for an endpoint.
type BodyEncoding string

// Body encodings.
const (
	EncodingNone BodyEncoding = ""
	EncodingJSON BodyEncoding = "application/json"
	EncodingForm BodyEncoding = "application/x-www-form-urlencoded"
)

// ParameterSpec is a single injectable slot on an endpoint. Body fields are
// parameters too: their FieldPath locates the scalar leaf inside the payload
// document, and Name is the dotted rendering of that path.
type ParameterSpec struct {
	Name      string        `json:"name"`
	In        Location      `json:"in"`
	FieldPath []string      `json:"field_path,omitempty"` // body only: segments from the document root, "0" is an array index
	Type      DataType      `json:"type"`
	Format    string        `json:"format,omitempty"`
	Required  bool          `json:"required,omitempty"`
	Enum      []interface{} `json:"enum,omitempty"`
	Default   interface{}   `json:"default,omitempty"`
	Example   interface{}   `json:"example,omitempty"`
}

// Key identifies a parameter within its endpoint.
func (p ParameterSpec) Key() string {
	return string(p.In) + ":" + p.Name
}

// EndpointTemplate is one (path, method) operation with everything needed to
// render probe requests against it.
type EndpointTemplate struct {
	Method      string          `json:"method"`
	Path        string          `json:"path"` // templated, e.g. /users/{id}
	OperationID string          `json:"operation_id,omitempty"`
	Deprecated  bool            `json:"deprecated,omitempty"`
	Parameters  []ParameterSpec `json:"parameters"`
	Body        BodyEncoding    `json:"body_encoding,omitempty"`
}

// Key identifies the template.
func (t EndpointTemplate) Key() string {
	return t.Method + " " + t.Path
}

// Injectable returns the parameters a scan can mutate.
func (t EndpointTemplate) Injectable() []ParameterSpec {
	out := make([]ParameterSpec, 0, len(t.Parameters))
	for _, p := range t.Parameters {
		switch p.Type {
		case TypeObject:
			// Containers are never injected directly; their leaves are
			// separate parameters.
			continue
		}
		out = append(out, p)
	}
	return out
}

// String implements fmt.Stringer.
func (t EndpointTemplate) String() string {
	return fmt.Sprintf("%s %s (%d params)", t.Method, t.Path, len(t.Parameters))
}
