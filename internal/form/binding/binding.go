// Package binding derives everything a form layer needs to wire one question
// to the draft: storage paths, labels, stable element ids and the current
// validation errors.
package binding

import (
	"fmt"

	"portal-workers/internal/common/validation"
	"portal-workers/internal/form/fieldpath"
	"portal-workers/internal/form/registry"
	"portal-workers/internal/models"
)

// FieldBinding is the resolved view of one question.
type FieldBinding struct {
	Label       string
	Description string
	IsRequired  bool

	MainPath  fieldpath.FieldPath
	OtherPath fieldpath.FieldPath
	HasOther  bool

	MainError  *validation.ValidationError
	OtherError *validation.ValidationError

	BaseID  string
	MainID  string
	OtherID string

	// SubFields is set for questions that fan out into several stored fields.
	SubFields []SubField

	// Renderable is false when the question cannot be stored anywhere; callers skip it.
	Renderable bool
}

// SubField is one stored field of a fan-out question.
type SubField struct {
	Label      string
	Type       models.QuestionType
	Path       fieldpath.FieldPath
	IsRequired bool
	Error      *validation.ValidationError
	ID         string
}

// Resolve binds q, found in section, against errTree (as built by
// ValidationResult.Tree). Equal inputs always yield equal ids.
func Resolve(section models.Section, q models.QuestionDefinition, errTree map[string]interface{}) FieldBinding {
	b := FieldBinding{
		Label:       q.Title,
		Description: q.Description,
		IsRequired:  q.Required,
	}

	_, input, hasInput := registry.EffectiveInput(section, q)
	if hasInput {
		b.BaseID = fmt.Sprintf("%s-%s", section, input)
	} else {
		b.BaseID = fmt.Sprintf("question-%s", q.ID)
	}
	b.MainID = b.BaseID + "-input"
	b.OtherID = b.BaseID + "-other"

	if section == models.SectionWelcome {
		// Welcome content is display-only.
		b.Renderable = true
		return b
	}

	if entry, ok := registry.Lookup(q.Type); ok && entry.Kind == registry.KindFanOut {
		for _, f := range entry.Fields {
			path, ok := fieldpath.BuildFieldPath(entry.Section, f.FormInput)
			if !ok {
				continue
			}
			b.SubFields = append(b.SubFields, SubField{
				Label:      f.Label,
				Type:       registry.FieldType(f, q.Type),
				Path:       path,
				IsRequired: registry.ResolveRequired(f, q.Required),
				Error:      errorAt(errTree, path),
				ID:         fmt.Sprintf("%s-%s", b.BaseID, f.FormInput),
			})
		}
		b.Renderable = len(b.SubFields) > 0
		return b
	}

	main, ok := registry.MainPath(section, q)
	if !ok {
		return b
	}
	b.MainPath = main
	b.MainError = errorAt(errTree, main)
	b.Renderable = true

	if q.Other {
		if other, ok := registry.OtherPath(section, q); ok {
			b.OtherPath = other
			b.HasOther = true
			b.OtherError = errorAt(errTree, other)
		}
	}
	return b
}

// errorAt returns the issue stored at path, or nil when the node is missing or
// is a subtree rather than an issue.
func errorAt(tree map[string]interface{}, path fieldpath.FieldPath) *validation.ValidationError {
	if tree == nil {
		return nil
	}
	v, ok := fieldpath.GetValueAtPath(tree, path)
	if !ok {
		return nil
	}
	switch e := v.(type) {
	case validation.ValidationError:
		return &e
	case *validation.ValidationError:
		return e
	default:
		return nil
	}
}
