package mutation

import (
	"fmt"

	"github.com/PentesterFlow/OpenSQLi/internal/openapi"
)

// Placeholder values are deterministic so the same template always renders
// the same control request. Fixed values also keep repeated scans
// comparable when the target logs or caches by input.
const (
	placeholderString   = "test"
	placeholderDate     = "2024-01-01"
	placeholderDateTime = "2024-01-01T00:00:00Z"
	placeholderUUID     = "de305d54-75b4-431b-adb2-eb6b9e546014"
	placeholderEmail    = "j.doe@example.com"
	placeholderPassword = "T0p$3cR3t"
	placeholderURI      = "https://www.example.com/"
)

// placeholderFor synthesizes a benign value for a parameter. Declared
// examples win over defaults, defaults over enums, enums over type/format
// synthesis.
func placeholderFor(p openapi.ParameterSpec) (interface{}, error) {
	if p.Example != nil {
		return p.Example, nil
	}
	if p.Default != nil {
		return p.Default, nil
	}
	if len(p.Enum) > 0 && p.Enum[0] != nil {
		return p.Enum[0], nil
	}

	switch p.Type {
	case openapi.TypeInteger:
		return 1, nil
	case openapi.TypeNumber:
		return 1.0, nil
	case openapi.TypeBoolean:
		return true, nil
	case openapi.TypeString, openapi.TypeArray:
		// Array parameters are rendered as a single element of their
		// item type; without item type info a string is the safest bet.
		return stringPlaceholder(p.Format), nil
	default:
		return nil, fmt.Errorf("no benign value for type %q", p.Type)
	}
}

// stringPlaceholder picks a format-appropriate string.
func stringPlaceholder(format string) string {
	switch format {
	case "date":
		return placeholderDate
	case "date-time":
		return placeholderDateTime
	case "uuid":
		return placeholderUUID
	case "email":
		return placeholderEmail
	case "password":
		return placeholderPassword
	case "uri", "url":
		return placeholderURI
	default:
		return placeholderString
	}
}

// valueString renders a placeholder value for transport in a path, query
// string, or header.
func valueString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		// Booleans travel as 0/1 in query strings; plenty of backends
		// choke on literal true/false.
		if t {
			return "1"
		}
		return "0"
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
