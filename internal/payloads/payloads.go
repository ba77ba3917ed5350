// Package payloads holds the SQL injection payload catalog.
package payloads

import (
	"sync"
	"time"

	"github.com/PentesterFlow/OpenSQLi/internal/openapi"
)

// Technique is the detection technique a payload serves.
type Technique string

// Detection techniques.
const (
	TechniqueError   Technique = "error"
	TechniqueBoolean Technique = "boolean"
	TechniqueTime    Technique = "time"
	TechniqueUnion   Technique = "union"
)

// Priority orders techniques by cost: cheap single-request checks first,
// expensive timing checks later.
func (t Technique) Priority() int {
	switch t {
	case TechniqueError:
		return 1
	case TechniqueBoolean:
		return 2
	case TechniqueUnion:
		return 3
	case TechniqueTime:
		return 4
	default:
		return 99
	}
}

// Context tells the mutation engine how a payload combines with the benign
// value of the mutated parameter.
type Context string

// Payload contexts.
const (
	// ContextAppend payloads break out of a quoted string: the payload is
	// appended to the benign value.
	ContextAppend Context = "append"
	// ContextReplace payloads stand on their own (numeric expressions,
	// full union selects): the payload replaces the benign value.
	ContextReplace Context = "replace"
)

// Payload is one injection string plus the metadata needed to use and
// classify it.
type Payload struct {
	Value     string    `json:"value" yaml:"value"`
	Technique Technique `json:"technique" yaml:"technique"`
	Context   Context   `json:"context" yaml:"context"`
	DBMS      string    `json:"dbms,omitempty" yaml:"dbms,omitempty"`

	// Companion is the false leg for boolean pairs; its truthy twin is
	// Value. Empty for every other technique.
	Companion string `json:"companion,omitempty" yaml:"companion,omitempty"`

	// ExpectedDelay is how long a time-based payload should stall the
	// backend when the injection executes. Zero for other techniques.
	ExpectedDelay time.Duration `json:"expected_delay,omitempty" yaml:"expected_delay,omitempty"`
}

// Inject combines the payload with the benign value of the mutated
// parameter.
func (p Payload) Inject(benign string) string {
	if p.Context == ContextReplace {
		return p.Value
	}
	return benign + p.Value
}

// InjectCompanion renders the boolean false leg the same way.
func (p Payload) InjectCompanion(benign string) string {
	if p.Context == ContextReplace {
		return p.Companion
	}
	return benign + p.Companion
}

// Key identifies a payload for deduplication.
func (p Payload) Key() string {
	return string(p.Technique) + "\x00" + p.Value
}

// DefaultDelay is the stall the built-in time-based payloads request.
const DefaultDelay = 5 * time.Second

// Catalog is an immutable payload set queried by parameter data type.
type Catalog struct {
	numeric []Payload // for integer, number, boolean parameters
	quoted  []Payload // for string and everything else
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the built-in catalog, constructed once per process.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog = New(builtinPayloads())
	})
	return defaultCatalog
}

// New builds a catalog from a payload list, dropping duplicates with the
// same (value, technique).
func New(list []Payload) *Catalog {
	c := &Catalog{}
	seen := make(map[string]struct{}, len(list))
	for _, p := range list {
		if p.Value == "" {
			continue
		}
		if _, dup := seen[p.Key()]; dup {
			continue
		}
		seen[p.Key()] = struct{}{}
		if p.Context == ContextReplace {
			c.numeric = append(c.numeric, p)
		} else {
			c.quoted = append(c.quoted, p)
		}
	}
	return c
}

// For returns the payloads applicable to a parameter of the given type.
// Numeric parameters get both numeric-context and quote-breaking payloads:
// many backends accept quoted numerics, and a quote break there is exactly
// the bug we are looking for.
func (c *Catalog) For(dt openapi.DataType) []Payload {
	switch dt {
	case openapi.TypeInteger, openapi.TypeNumber, openapi.TypeBoolean:
		out := make([]Payload, 0, len(c.numeric)+len(c.quoted))
		out = append(out, c.numeric...)
		out = append(out, c.quoted...)
		return out
	default:
		return append([]Payload(nil), c.quoted...)
	}
}

// All returns every payload in the catalog.
func (c *Catalog) All() []Payload {
	out := make([]Payload, 0, len(c.numeric)+len(c.quoted))
	out = append(out, c.numeric...)
	out = append(out, c.quoted...)
	return out
}

// Len returns the catalog size.
func (c *Catalog) Len() int {
	return len(c.numeric) + len(c.quoted)
}

// Merge returns a new catalog containing this catalog's payloads plus the
// extras, with (value, technique) duplicates dropped in favor of the
// existing entry.
func (c *Catalog) Merge(extra []Payload) *Catalog {
	return New(append(c.All(), extra...))
}
