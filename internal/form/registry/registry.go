// Package registry describes the fixed questions whose type does not map
// one-to-one onto a single stored field.
package registry

import (
	"portal-workers/internal/form/fieldpath"
	"portal-workers/internal/models"
)

// Kind distinguishes single-field entries from fan-out entries.
type Kind int

const (
	KindSingle Kind = iota
	KindFanOut
)

// Field is one stored field produced by a fan-out question.
type Field struct {
	FormInput         string
	Label             string
	TypeOverride      models.QuestionType
	RequiredFromGroup bool
	RequiredOverride  *bool
}

// Entry is a registry row. Single entries use FormInput; fan-out entries use Fields.
type Entry struct {
	Kind      Kind
	Section   models.Section
	FormInput string
	Fields    []Field
}

func boolPtr(b bool) *bool { return &b }

var entries = map[models.QuestionType]Entry{
	models.QuestionTypeCountry: {
		Kind:      KindSingle,
		Section:   models.SectionBasicInfo,
		FormInput: "countryOfResidence",
	},
	models.QuestionTypeSchool: {
		Kind:      KindSingle,
		Section:   models.SectionBasicInfo,
		FormInput: "school",
	},
	models.QuestionTypeMajor: {
		Kind:      KindSingle,
		Section:   models.SectionBasicInfo,
		FormInput: "major",
	},
	models.QuestionTypeFullLegalName: {
		Kind:    KindFanOut,
		Section: models.SectionBasicInfo,
		Fields: []Field{
			{FormInput: "legalFirstName", Label: "Legal first name", TypeOverride: models.QuestionTypeShortAnswer, RequiredFromGroup: true},
			{FormInput: "legalLastName", Label: "Legal last name", TypeOverride: models.QuestionTypeShortAnswer, RequiredFromGroup: true},
		},
	},
	models.QuestionTypePortfolio: {
		Kind:    KindFanOut,
		Section: models.SectionSkills,
		Fields: []Field{
			{FormInput: "resume", Label: "Resume", TypeOverride: models.QuestionTypeUpload, RequiredOverride: boolPtr(true)},
			{FormInput: "github", Label: "GitHub", TypeOverride: models.QuestionTypeURL, RequiredOverride: boolPtr(false)},
			{FormInput: "linkedin", Label: "LinkedIn", TypeOverride: models.QuestionTypeURL, RequiredOverride: boolPtr(false)},
			{FormInput: "portfolio", Label: "Portfolio", TypeOverride: models.QuestionTypeURL, RequiredOverride: boolPtr(false)},
		},
	},
}

// Lookup returns the registry entry for a question type.
func Lookup(t models.QuestionType) (Entry, bool) {
	e, ok := entries[t]
	return e, ok
}

// IsFanOut reports whether t fans out into several stored fields.
func IsFanOut(t models.QuestionType) bool {
	e, ok := entries[t]
	return ok && e.Kind == KindFanOut
}

// ResolveRequired applies the override, then group inheritance; fields with
// neither are optional regardless of the group.
func ResolveRequired(f Field, groupRequired bool) bool {
	if f.RequiredOverride != nil {
		return *f.RequiredOverride
	}
	if f.RequiredFromGroup {
		return groupRequired
	}
	return false
}

// FieldType is the effective question type of a fan-out field.
func FieldType(f Field, group models.QuestionType) models.QuestionType {
	if f.TypeOverride != "" {
		return f.TypeOverride
	}
	return group
}

// EffectiveInput resolves where a question is stored. An explicit formInput
// wins; otherwise single registry entries supply both section and input.
// Fixed questions always land in the registry's section.
func EffectiveInput(section models.Section, q models.QuestionDefinition) (models.Section, string, bool) {
	if e, ok := entries[q.Type]; ok {
		if e.Kind == KindFanOut {
			return e.Section, q.FormInput, q.FormInput != ""
		}
		input := e.FormInput
		if q.FormInput != "" {
			input = q.FormInput
		}
		return e.Section, input, true
	}
	if q.FormInput == "" {
		return section, "", false
	}
	return section, q.FormInput, true
}

// MainPath resolves the primary stored path of a non-fan-out question.
func MainPath(section models.Section, q models.QuestionDefinition) (fieldpath.FieldPath, bool) {
	sec, input, ok := EffectiveInput(section, q)
	if !ok {
		return "", false
	}
	return fieldpath.BuildFieldPath(sec, input)
}

// OtherPath resolves the companion "other" path of a question.
func OtherPath(section models.Section, q models.QuestionDefinition) (fieldpath.FieldPath, bool) {
	sec, input, ok := EffectiveInput(section, q)
	if !ok {
		return "", false
	}
	return fieldpath.BuildOtherFieldPath(sec, input)
}

// FanOutPaths returns the stored path of every field in a fan-out entry.
func FanOutPaths(e Entry) []fieldpath.FieldPath {
	out := make([]fieldpath.FieldPath, 0, len(e.Fields))
	for _, f := range e.Fields {
		if p, ok := fieldpath.BuildFieldPath(e.Section, f.FormInput); ok {
			out = append(out, p)
		}
	}
	return out
}
