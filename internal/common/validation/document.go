package validation

import (
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// DocumentSchema is a compiled JSON Schema used for structural checks.
type DocumentSchema struct {
	schema *gojsonschema.Schema
}

// CompileDocumentSchema compiles a JSON Schema given as a Go map.
func CompileDocumentSchema(doc map[string]interface{}) (*DocumentSchema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("compile json schema: %w", err)
	}
	return &DocumentSchema{schema: s}, nil
}

// Validate checks doc against the schema and converts every violation into a
// ValidationError keyed by its dot path. Results are sorted by field.
func (d *DocumentSchema) Validate(doc interface{}) ([]ValidationError, error) {
	if d == nil || d.schema == nil {
		return nil, nil
	}
	result, err := d.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validate document: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	out := make([]ValidationError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		code := CodeSchemaViolation
		if desc.Type() == "invalid_type" {
			code = CodeInvalidType
		}
		out = append(out, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    code,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out, nil
}
