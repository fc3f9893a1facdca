// pkg/registry/registry.go

// Package registry reads question set files maintained alongside the
// operator tooling. Files are JSON or YAML, chosen by extension.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	formregistry "portal-workers/internal/form/registry"
	"portal-workers/internal/form/schema"
	"portal-workers/internal/models"

	"gopkg.in/yaml.v3"
)

// Format of a question set file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// QuestionSetFile is the on-disk form of one event's questions.
type QuestionSetFile struct {
	EventID   string                                         `json:"eventId" yaml:"eventId"`
	Version   string                                         `json:"version,omitempty" yaml:"version,omitempty"`
	Questions map[models.Section][]models.QuestionDefinition `json:"questions" yaml:"questions"`
}

// QuestionSet returns the questions bucketed by section.
func (f *QuestionSetFile) QuestionSet() models.QuestionSet {
	return models.QuestionSet(f.Questions)
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported question set extension %q", filepath.Ext(path))
	}
}

// LoadQuestionSet reads and checks a question set file.
func LoadQuestionSet(path string) (*QuestionSetFile, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a question set and rejects unknown fields, duplicate ids and
// question types no handler is registered for.
func Parse(data []byte, format Format) (*QuestionSetFile, error) {
	var f QuestionSetFile
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}

	if err := f.check(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *QuestionSetFile) check() error {
	if f.EventID == "" {
		return fmt.Errorf("eventId is required")
	}
	seen := map[string]models.Section{}
	for _, section := range f.QuestionSet().Sections() {
		for i, q := range f.Questions[section] {
			if q.ID == "" {
				return fmt.Errorf("%s[%d]: id is required", section, i)
			}
			if prev, dup := seen[q.ID]; dup {
				return fmt.Errorf("%s[%d]: duplicate id %q (first in %s)", section, i, q.ID, prev)
			}
			seen[q.ID] = section
			if !knownType(q.Type) {
				return fmt.Errorf("%s[%d]: unknown question type %q", section, i, q.Type)
			}
		}
	}
	return nil
}

func knownType(t models.QuestionType) bool {
	if formregistry.IsFanOut(t) {
		return true
	}
	_, ok := schema.HandlerFor(t)
	return ok
}

// Write encodes f in format.
func Write(f *QuestionSetFile, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(f, "", "  ")
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}
