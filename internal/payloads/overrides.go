package payloads

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// overrideFile is the on-disk format for user payload files.
type overrideFile struct {
	Payloads []overrideEntry `yaml:"payloads"`
}

type overrideEntry struct {
	Value        string `yaml:"value"`
	Technique    string `yaml:"technique"`
	Context      string `yaml:"context"`
	DBMS         string `yaml:"dbms"`
	Companion    string `yaml:"companion"`
	DelaySeconds int    `yaml:"delay_seconds"`
}

// LoadOverrides reads extra payloads from a YAML file. Entries default to
// the append context; time-based entries default to DefaultDelay when no
// delay is given.
func LoadOverrides(path string) ([]Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload file: %w", err)
	}

	var file overrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse payload file %s: %w", path, err)
	}

	out := make([]Payload, 0, len(file.Payloads))
	for i, e := range file.Payloads {
		if e.Value == "" {
			return nil, fmt.Errorf("payload file %s: entry %d has no value", path, i)
		}

		technique := Technique(e.Technique)
		switch technique {
		case TechniqueError, TechniqueBoolean, TechniqueTime, TechniqueUnion:
		default:
			return nil, fmt.Errorf("payload file %s: entry %d has unknown technique %q", path, i, e.Technique)
		}

		ctx := Context(e.Context)
		switch ctx {
		case ContextAppend, ContextReplace:
		case "":
			ctx = ContextAppend
		default:
			return nil, fmt.Errorf("payload file %s: entry %d has unknown context %q", path, i, e.Context)
		}

		if technique == TechniqueBoolean && e.Companion == "" {
			return nil, fmt.Errorf("payload file %s: entry %d is boolean but has no companion leg", path, i)
		}

		p := Payload{
			Value:     e.Value,
			Technique: technique,
			Context:   ctx,
			DBMS:      e.DBMS,
			Companion: e.Companion,
		}
		if technique == TechniqueTime {
			p.ExpectedDelay = time.Duration(e.DelaySeconds) * time.Second
			if p.ExpectedDelay <= 0 {
				p.ExpectedDelay = DefaultDelay
			}
		}
		out = append(out, p)
	}

	return out, nil
}
