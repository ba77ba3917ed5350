package openapi

import (
	"sort"
	"strings"

	scanerrors "github.com/PentesterFlow/OpenSQLi/internal/errors"
	"github.com/PentesterFlow/OpenSQLi/internal/logger"
)

// DefaultFlattenDepth bounds request body flattening. Leaves nested deeper
// than this are not injected.
const DefaultFlattenDepth = 5

// methodsWithBody are the methods whose request body gets flattened.
var methodsWithBody = map[string]bool{
	"POST":  true,
	"PUT":   true,
	"PATCH": true,
}

// Normalizer turns a parsed description into endpoint templates.
type Normalizer struct {
	// FlattenDepth bounds body flattening; zero means DefaultFlattenDepth.
	FlattenDepth int
	// IncludeDeprecated keeps operations marked deprecated. Off by default:
	// deprecated endpoints still answer in most deployments, but probing
	// them doubles scan time for little coverage.
	IncludeDeprecated bool

	Log *logger.Logger
}

// NewNormalizer creates a normalizer with default settings.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		FlattenDepth: DefaultFlattenDepth,
		Log:          logger.Global().WithComponent("normalizer"),
	}
}

// Normalize produces one template per (path, method) pair. Operations that
// cannot be normalized are skipped with a log line; a document with no
// usable operation at all is a schema error.
func (n *Normalizer) Normalize(doc *Document) ([]EndpointTemplate, error) {
	if doc == nil || len(doc.Paths) == 0 {
		return nil, scanerrors.NewSchemaError("document", "description has no paths")
	}

	depth := n.FlattenDepth
	if depth <= 0 {
		depth = DefaultFlattenDepth
	}

	// Map iteration order is random; sort so two runs over the same
	// document enumerate endpoints identically.
	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var templates []EndpointTemplate
	seen := make(map[string]struct{})

	for _, path := range paths {
		item := doc.Paths[path]
		if item == nil {
			continue
		}

		for _, mo := range item.Operations() {
			op := mo.Operation
			if op.Deprecated && !n.IncludeDeprecated {
				if n.Log != nil {
					n.Log.WithEndpoint(mo.Method, path).Debug("Skipping deprecated operation")
				}
				continue
			}

			tpl := EndpointTemplate{
				Method:      mo.Method,
				Path:        path,
				OperationID: op.OperationID,
				Deprecated:  op.Deprecated,
			}

			if _, dup := seen[tpl.Key()]; dup {
				continue
			}

			// Refs must be resolved before the merge so a referenced
			// parameter participates in the (name, in) override like any
			// inline one.
			merged := mergeParameters(
				n.resolveParameters(doc, item.Parameters, mo.Method, path),
				n.resolveParameters(doc, op.Parameters, mo.Method, path),
			)
			for _, param := range merged {
				switch param.In {
				case "body":
					// Swagger 2.0 body parameter: flatten its schema.
					tpl.Body = bodyEncoding(doc, op)
					tpl.Parameters = append(tpl.Parameters,
						n.flattenSchema(doc, doc.deref(param.Schema), nil, depth, map[string]bool{})...)
				case "formData":
					tpl.Body = EncodingForm
					tpl.Parameters = append(tpl.Parameters, ParameterSpec{
						Name:      param.Name,
						In:        InBody,
						FieldPath: []string{param.Name},
						Type:      dataType(param.Type),
						Format:    param.Format,
						Required:  param.Required,
						Enum:      param.Enum,
						Default:   param.Default,
						Example:   param.Example,
					})
				case "path", "query", "header":
					spec, ok := n.parameterSpec(doc, param)
					if !ok {
						continue
					}
					tpl.Parameters = append(tpl.Parameters, spec)
				default:
					// cookie and anything newer is out of scope
				}
			}

			if methodsWithBody[mo.Method] && op.RequestBody != nil {
				body := op.RequestBody
				if body.Ref != "" {
					body = doc.ResolveRequestBody(body.Ref)
				}
				if body != nil {
					encoding, media := pickMediaType(body.Content)
					if media != nil {
						tpl.Body = encoding
						tpl.Parameters = append(tpl.Parameters,
							n.flattenSchema(doc, doc.deref(media.Schema), nil, depth, map[string]bool{})...)
					}
				}
			}

			seen[tpl.Key()] = struct{}{}
			templates = append(templates, tpl)
		}
	}

	if len(templates) == 0 {
		return nil, scanerrors.NewSchemaError("document", "description has no usable operations")
	}

	return templates, nil
}

// resolveParameters replaces $ref entries with their components, dropping
// unresolvable refs with a log line.
func (n *Normalizer) resolveParameters(doc *Document, list []*Parameter, method, path string) []*Parameter {
	out := make([]*Parameter, 0, len(list))
	for _, p := range list {
		if p == nil {
			continue
		}
		if p.Ref != "" {
			resolved := doc.ResolveParameter(p.Ref)
			if resolved == nil {
				if n.Log != nil {
					n.Log.WithEndpoint(method, path).Warnf("Unresolvable parameter ref %s", p.Ref)
				}
				continue
			}
			p = resolved
		}
		out = append(out, p)
	}
	return out
}

// mergeParameters merges path-level and operation-level parameters, both
// already ref-resolved. An operation parameter overrides a path parameter
// with the same (name, in); otherwise order of declaration is kept,
// path-level first. The result carries no duplicate (name, in) pairs.
func mergeParameters(pathLevel, opLevel []*Parameter) []*Parameter {
	merged := make([]*Parameter, 0, len(pathLevel)+len(opLevel))
	index := make(map[string]int)

	key := func(p *Parameter) string { return p.In + ":" + p.Name }

	for _, p := range pathLevel {
		if p == nil {
			continue
		}
		if i, ok := index[key(p)]; ok {
			merged[i] = p
			continue
		}
		index[key(p)] = len(merged)
		merged = append(merged, p)
	}
	for _, p := range opLevel {
		if p == nil {
			continue
		}
		if i, ok := index[key(p)]; ok {
			merged[i] = p
			continue
		}
		index[key(p)] = len(merged)
		merged = append(merged, p)
	}

	return merged
}

// parameterSpec converts a path/query/header parameter to a spec. Returns
// false when the parameter carries no usable type information.
func (n *Normalizer) parameterSpec(doc *Document, p *Parameter) (ParameterSpec, bool) {
	spec := ParameterSpec{
		Name:     p.Name,
		In:       Location(p.In),
		Required: p.Required || p.In == "path",
		Format:   p.Format,
		Enum:     p.Enum,
		Default:  p.Default,
		Example:  p.Example,
	}

	if p.Type != "" {
		// Swagger 2.0 inline style
		spec.Type = dataType(p.Type)
		return spec, true
	}

	schema := doc.deref(p.Schema)
	if schema == nil {
		return spec, false
	}
	schema = n.applyAllOf(doc, schema)

	spec.Type = dataType(schema.Type)
	if spec.Format == "" {
		spec.Format = schema.Format
	}
	if spec.Enum == nil {
		spec.Enum = schema.Enum
	}
	if spec.Default == nil {
		spec.Default = schema.Default
	}
	if spec.Example == nil {
		spec.Example = schema.Example
	}
	return spec, true
}

// flattenSchema walks a body schema and returns one spec per scalar leaf.
// fieldPath accumulates the segments from the body root; depth bounds the
// recursion and visiting tracks $ref names on the current branch so
// self-referential models terminate.
func (n *Normalizer) flattenSchema(doc *Document, schema *Schema, fieldPath []string, depth int, visiting map[string]bool) []ParameterSpec {
	if schema == nil || depth < 0 {
		return nil
	}

	if schema.Ref != "" {
		if visiting[schema.Ref] {
			return nil
		}
		visiting[schema.Ref] = true
		defer delete(visiting, schema.Ref)
		schema = doc.ResolveSchema(schema.Ref)
		if schema == nil {
			return nil
		}
	}

	schema = n.applyAllOf(doc, schema)

	if schema.ReadOnly {
		return nil
	}

	switch schema.Type {
	case "object", "":
		if len(schema.Properties) == 0 {
			return nil
		}
		if depth == 0 {
			return nil
		}
		names := make([]string, 0, len(schema.Properties))
		for name := range schema.Properties {
			names = append(names, name)
		}
		sort.Strings(names)

		required := make(map[string]bool, len(schema.Required))
		for _, r := range schema.Required {
			required[r] = true
		}

		var out []ParameterSpec
		for _, name := range names {
			child := schema.Properties[name]
			childPath := append(append([]string{}, fieldPath...), name)
			leaves := n.flattenSchema(doc, child, childPath, depth-1, visiting)
			for i := range leaves {
				if len(leaves[i].FieldPath) == len(childPath) && required[name] {
					leaves[i].Required = true
				}
			}
			out = append(out, leaves...)
		}
		return out

	case "array":
		if depth == 0 {
			return nil
		}
		childPath := append(append([]string{}, fieldPath...), "0")
		return n.flattenSchema(doc, schema.Items, childPath, depth-1, visiting)

	case "string", "integer", "number", "boolean":
		if len(fieldPath) == 0 {
			// A bare scalar body has a single anonymous slot.
			fieldPath = []string{"value"}
		}
		return []ParameterSpec{{
			Name:      strings.Join(fieldPath, "."),
			In:        InBody,
			FieldPath: fieldPath,
			Type:      dataType(schema.Type),
			Format:    schema.Format,
			Enum:      schema.Enum,
			Default:   schema.Default,
			Example:   schema.Example,
		}}

	default:
		return nil
	}
}

// applyAllOf merges allOf branches into a single schema view.
func (n *Normalizer) applyAllOf(doc *Document, schema *Schema) *Schema {
	if schema == nil || len(schema.AllOf) == 0 {
		return schema
	}

	merged := *schema
	merged.AllOf = nil
	if merged.Properties == nil {
		merged.Properties = make(map[string]*Schema)
	} else {
		props := make(map[string]*Schema, len(merged.Properties))
		for k, v := range merged.Properties {
			props[k] = v
		}
		merged.Properties = props
	}

	for _, branch := range schema.AllOf {
		b := doc.deref(branch)
		if b == nil {
			continue
		}
		b = n.applyAllOf(doc, b)
		if merged.Type == "" {
			merged.Type = b.Type
		}
		for k, v := range b.Properties {
			if _, ok := merged.Properties[k]; !ok {
				merged.Properties[k] = v
			}
		}
		merged.Required = append(merged.Required, b.Required...)
	}

	return &merged
}

// pickMediaType chooses the body content type to probe. JSON is preferred,
// then form encoding; other types (multipart, xml, binary) are skipped.
func pickMediaType(content map[string]*MediaType) (BodyEncoding, *MediaType) {
	for ct, media := range content {
		if strings.HasPrefix(ct, string(EncodingJSON)) || strings.Contains(ct, "+json") {
			return EncodingJSON, media
		}
	}
	for ct, media := range content {
		if strings.HasPrefix(ct, string(EncodingForm)) {
			return EncodingForm, media
		}
	}
	return EncodingNone, nil
}

// bodyEncoding determines the Swagger 2.0 body encoding from consumes.
func bodyEncoding(doc *Document, op *Operation) BodyEncoding {
	consumes := op.Consumes
	if len(consumes) == 0 {
		consumes = doc.Consumes
	}
	for _, ct := range consumes {
		if strings.HasPrefix(ct, string(EncodingForm)) {
			return EncodingForm
		}
	}
	return EncodingJSON
}

// dataType maps a schema type string to a DataType, defaulting to string.
func dataType(t string) DataType {
	switch t {
	case "integer":
		return TypeInteger
	case "number":
		return TypeNumber
	case "boolean":
		return TypeBoolean
	case "array":
		return TypeArray
	case "object":
		return TypeObject
	default:
		return TypeString
	}
}
