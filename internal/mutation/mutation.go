// Package mutation renders probe requests from endpoint templates. Each
// probe mutates exactly one parameter; every other parameter carries a
// benign placeholder so a backend reaction can be pinned on the mutated one.
package mutation

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	scanerrors "github.com/PentesterFlow/OpenSQLi/internal/errors"
	"github.com/PentesterFlow/OpenSQLi/internal/openapi"
	"github.com/PentesterFlow/OpenSQLi/internal/payloads"
)

// Leg tells the executor and detector which role a probe plays.
type Leg string

// Probe legs.
const (
	// LegProbe is the payload-carrying request.
	LegProbe Leg = "probe"
	// LegCompanion is the false half of a boolean pair.
	LegCompanion Leg = "companion"
	// LegControl is the all-placeholder baseline request.
	LegControl Leg = "control"
)

// ProbeRequest is a fully rendered HTTP request plus the scan metadata
// needed to classify its response.
type ProbeRequest struct {
	Method      string
	URL         string
	Headers     map[string]string
	Body        []byte
	ContentType string

	TemplateKey string
	Parameter   openapi.ParameterSpec
	Payload     payloads.Payload
	Leg         Leg
}

// Engine renders probes against a base URL.
type Engine struct {
	baseURL string
}

// NewEngine creates a mutation engine. baseURL must be absolute and is used
// as-is; trailing slashes are trimmed.
func NewEngine(baseURL string) *Engine {
	return &Engine{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Mutate renders the payload-carrying probe for one parameter.
func (e *Engine) Mutate(tpl openapi.EndpointTemplate, target openapi.ParameterSpec, payload payloads.Payload) (*ProbeRequest, error) {
	benign, err := targetBenign(target)
	if err != nil {
		return nil, err
	}
	return e.render(tpl, target, payload, payload.Inject(benign), LegProbe)
}

// Companion renders the false leg of a boolean pair.
func (e *Engine) Companion(tpl openapi.EndpointTemplate, target openapi.ParameterSpec, payload payloads.Payload) (*ProbeRequest, error) {
	if payload.Companion == "" {
		return nil, fmt.Errorf("payload %q has no companion leg", payload.Value)
	}
	benign, err := targetBenign(target)
	if err != nil {
		return nil, err
	}
	return e.render(tpl, target, payload, payload.InjectCompanion(benign), LegCompanion)
}

// Control renders the all-placeholder baseline request for a template.
func (e *Engine) Control(tpl openapi.EndpointTemplate) (*ProbeRequest, error) {
	return e.render(tpl, openapi.ParameterSpec{}, payloads.Payload{}, "", LegControl)
}

// targetBenign synthesizes the benign value the payload combines with.
func targetBenign(target openapi.ParameterSpec) (string, error) {
	v, err := placeholderFor(target)
	if err != nil {
		return "", scanerrors.NewMutationError(target.Key(), target.Name, err.Error())
	}
	return valueString(v), nil
}

// render builds the request. When leg is LegControl the target is ignored
// and every parameter gets its placeholder.
func (e *Engine) render(tpl openapi.EndpointTemplate, target openapi.ParameterSpec, payload payloads.Payload, injected string, leg Leg) (*ProbeRequest, error) {
	path := tpl.Path
	query := url.Values{}
	headers := make(map[string]string)
	var jsonBody interface{}
	formBody := url.Values{}
	hasBody := false

	isTarget := func(p openapi.ParameterSpec) bool {
		return leg != LegControl && p.Key() == target.Key()
	}

	for _, p := range tpl.Parameters {
		var value interface{}
		if isTarget(p) {
			value = injected
		} else {
			v, err := placeholderFor(p)
			if err != nil {
				if p.Required {
					return nil, scanerrors.NewMutationError(tpl.Key(), p.Name, err.Error())
				}
				continue
			}
			value = v
		}

		switch p.In {
		case openapi.InPath:
			rendered := valueOrRaw(value, isTarget(p))
			path = strings.ReplaceAll(path, "{"+p.Name+"}", escapePathValue(rendered))

		case openapi.InQuery:
			query.Set(p.Name, valueOrRaw(value, isTarget(p)))

		case openapi.InHeader:
			headers[p.Name] = sanitizeHeaderValue(valueOrRaw(value, isTarget(p)))

		case openapi.InBody:
			hasBody = true
			switch tpl.Body {
			case openapi.EncodingForm:
				name := p.Name
				if len(p.FieldPath) > 0 {
					name = p.FieldPath[0]
				}
				formBody.Set(name, valueOrRaw(value, isTarget(p)))
			default:
				jsonBody = insertInto(jsonBody, p.FieldPath, value)
			}
		}
	}

	req := &ProbeRequest{
		Method:      tpl.Method,
		URL:         e.baseURL + path,
		Headers:     headers,
		TemplateKey: tpl.Key(),
		Parameter:   target,
		Payload:     payload,
		Leg:         leg,
	}

	if encoded := query.Encode(); encoded != "" {
		req.URL += "?" + encoded
	}

	if hasBody {
		switch tpl.Body {
		case openapi.EncodingForm:
			req.Body = []byte(formBody.Encode())
			req.ContentType = string(openapi.EncodingForm)
		default:
			data, err := json.Marshal(jsonBody)
			if err != nil {
				return nil, scanerrors.NewMutationError(tpl.Key(), target.Name, "cannot encode body: "+err.Error())
			}
			req.Body = data
			req.ContentType = string(openapi.EncodingJSON)
		}
	}

	return req, nil
}

// valueOrRaw renders a value for transport. The injected value is already a
// string and must pass through untouched.
func valueOrRaw(v interface{}, injected bool) string {
	if injected {
		return v.(string)
	}
	return valueString(v)
}

// insertInto places a value at a field path inside the JSON body tree,
// creating objects along the way. A "0" segment materializes a
// single-element array.
func insertInto(node interface{}, path []string, value interface{}) interface{} {
	if len(path) == 0 {
		return value
	}

	if path[0] == "0" {
		arr, ok := node.([]interface{})
		if !ok || len(arr) == 0 {
			arr = []interface{}{nil}
		}
		arr[0] = insertInto(arr[0], path[1:], value)
		return arr
	}

	m, ok := node.(map[string]interface{})
	if !ok {
		m = map[string]interface{}{}
	}
	m[path[0]] = insertInto(m[path[0]], path[1:], value)
	return m
}

// escapePathValue escapes only the characters that would break the request
// line or path structure. Quotes, semicolons and comment markers must
// survive so path parameters stay injectable.
func escapePathValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			b.WriteString("%20")
		case c == '#':
			b.WriteString("%23")
		case c == '?':
			b.WriteString("%3F")
		case c == '/':
			b.WriteString("%2F")
		case c == '%':
			b.WriteString("%25")
		case c < 0x20 || c == 0x7f:
			fmt.Fprintf(&b, "%%%02X", c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// sanitizeHeaderValue strips CR/LF so a payload cannot smuggle extra
// headers into the request.
func sanitizeHeaderValue(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "")
}
