package schema

import (
	"fmt"
	"strings"
	"sync"

	"portal-workers/internal/common/validation"
	"portal-workers/internal/models"
)

// TypeHandler describes how one question type is checked.
//   - Fragment returns the JSON Schema fragment for the stored value.
//   - Rule returns the issues for a value; it must ignore values of the wrong
//     Go type because the structural check already reports those.
//   - OtherSelected decides whether the main value selects "other". When nil
//     the value is compared to "other" case-insensitively.
type TypeHandler struct {
	Fragment      func(f FieldSpec) map[string]interface{}
	Rule          func(f FieldSpec, value interface{}) []validation.ValidationError
	OtherSelected func(value interface{}) bool
}

var (
	handlersMu sync.RWMutex
	handlers   = map[models.QuestionType]TypeHandler{}
)

// passThrough accepts any value. Unknown or missing types resolve to it.
var passThrough = TypeHandler{
	Fragment: func(FieldSpec) map[string]interface{} { return map[string]interface{}{} },
	Rule:     func(FieldSpec, interface{}) []validation.ValidationError { return nil },
}

// Register installs or replaces the handler for a question type.
func Register(t models.QuestionType, h TypeHandler) {
	if h.Fragment == nil {
		h.Fragment = passThrough.Fragment
	}
	if h.Rule == nil {
		h.Rule = passThrough.Rule
	}
	handlersMu.Lock()
	handlers[t] = h
	handlersMu.Unlock()
}

// HandlerFor returns the handler for t, falling back to the pass-through.
func HandlerFor(t models.QuestionType) (TypeHandler, bool) {
	handlersMu.RLock()
	h, ok := handlers[t]
	handlersMu.RUnlock()
	if !ok {
		return passThrough, false
	}
	return h, true
}

func init() {
	text := TypeHandler{Fragment: stringFragment, Rule: textRule}
	choice := TypeHandler{Fragment: stringFragment, Rule: choiceRule}
	multi := TypeHandler{Fragment: boolMapFragment, Rule: multiSelectRule, OtherSelected: boolMapOtherSelected}

	Register(models.QuestionTypeShortAnswer, text)
	Register(models.QuestionTypeCountry, text)
	Register(models.QuestionTypeSchool, text)
	Register(models.QuestionTypeLongAnswer, TypeHandler{Fragment: stringFragment, Rule: longTextRule})
	Register(models.QuestionTypeMultipleChoice, choice)
	Register(models.QuestionTypeDropdown, choice)
	Register(models.QuestionTypeSelectAll, multi)
	Register(models.QuestionTypeMajor, multi)
	Register(models.QuestionTypeURL, TypeHandler{Fragment: stringFragment, Rule: urlRule})
	Register(models.QuestionTypeUpload, TypeHandler{Fragment: stringFragment, Rule: uploadRule})
}

// ==========================
// JSON Schema fragments
// ==========================

func stringFragment(FieldSpec) map[string]interface{} {
	return map[string]interface{}{"type": []interface{}{"string", "null"}}
}

func boolMapFragment(FieldSpec) map[string]interface{} {
	return map[string]interface{}{
		"type":                 []interface{}{"object", "null"},
		"additionalProperties": map[string]interface{}{"type": "boolean"},
	}
}

// ==========================
// Value rules
// ==========================

func issue(f FieldSpec, code, msg string) validation.ValidationError {
	return validation.ValidationError{Field: f.Path.String(), Code: code, Message: msg}
}

func requiredIssue(f FieldSpec) validation.ValidationError {
	if f.Title != "" {
		return issue(f, validation.CodeRequired, fmt.Sprintf("%s is required", f.Title))
	}
	return issue(f, validation.CodeRequired, "This field is required")
}

// stringValue reports false for present values that are not strings.
func stringValue(v interface{}) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", true
	case string:
		return strings.TrimSpace(s), true
	default:
		return "", false
	}
}

func textRule(f FieldSpec, v interface{}) []validation.ValidationError {
	s, ok := stringValue(v)
	if !ok {
		return nil
	}
	if f.Required && s == "" {
		return []validation.ValidationError{requiredIssue(f)}
	}
	return nil
}

func longTextRule(f FieldSpec, v interface{}) []validation.ValidationError {
	if errs := textRule(f, v); len(errs) > 0 {
		return errs
	}
	s, ok := stringValue(v)
	if !ok || f.MaxWords <= 0 {
		return nil
	}
	if n := validation.CountWords(s); n > f.MaxWords {
		return []validation.ValidationError{issue(f, validation.CodeWordLimit,
			fmt.Sprintf("Please keep your answer under %d words (currently %d)", f.MaxWords, n))}
	}
	return nil
}

func choiceRule(f FieldSpec, v interface{}) []validation.ValidationError {
	s, ok := stringValue(v)
	if !ok {
		return nil
	}
	if s == "" {
		if f.Required {
			return []validation.ValidationError{requiredIssue(f)}
		}
		return nil
	}
	for _, opt := range f.Options {
		if s == opt {
			return nil
		}
	}
	if f.Other && s == models.OtherOptionValue {
		return nil
	}
	return []validation.ValidationError{issue(f, validation.CodeInvalidOption,
		fmt.Sprintf("%q is not one of the available options", s))}
}

func multiSelectRule(f FieldSpec, v interface{}) []validation.ValidationError {
	selected, ok := boolMap(v)
	if !ok || !f.Required {
		return nil
	}
	for _, on := range selected {
		if on {
			return nil
		}
	}
	return []validation.ValidationError{issue(f, validation.CodeRequired, "Please select at least one option")}
}

func urlRule(f FieldSpec, v interface{}) []validation.ValidationError {
	s, ok := stringValue(v)
	if !ok {
		return nil
	}
	if s == "" {
		if f.Required {
			return []validation.ValidationError{requiredIssue(f)}
		}
		return nil
	}
	if !validation.ValidateURL(s) {
		return []validation.ValidationError{issue(f, validation.CodeInvalidURL, "Link must start with http:// or https://")}
	}
	return nil
}

func uploadRule(f FieldSpec, v interface{}) []validation.ValidationError {
	s, ok := stringValue(v)
	if !ok {
		return nil
	}
	if f.Required && s == "" {
		return []validation.ValidationError{issue(f, validation.CodeRequired, "Please upload a file")}
	}
	return nil
}

// ==========================
// "other" detection
// ==========================

// boolMap reads a string-keyed boolean map. Nil counts as an empty map.
func boolMap(v interface{}) (map[string]bool, bool) {
	switch m := v.(type) {
	case nil:
		return map[string]bool{}, true
	case map[string]bool:
		return m, true
	case map[string]interface{}:
		out := make(map[string]bool, len(m))
		for k, raw := range m {
			b, ok := raw.(bool)
			if !ok {
				return nil, false
			}
			out[k] = b
		}
		return out, true
	default:
		return nil, false
	}
}

func boolMapOtherSelected(v interface{}) bool {
	m, ok := boolMap(v)
	return ok && m[models.OtherOptionValue]
}

func stringOtherSelected(v interface{}) bool {
	s, ok := v.(string)
	return ok && strings.EqualFold(s, models.OtherOptionValue)
}
