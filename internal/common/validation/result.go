package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// Issue codes attached to validation errors.
const (
	CodeRequired        = "REQUIRED_FIELD_MISSING"
	CodeInvalidType     = "INVALID_TYPE"
	CodeInvalidOption   = "INVALID_OPTION"
	CodeInvalidURL      = "INVALID_URL"
	CodeWordLimit       = "WORD_LIMIT_EXCEEDED"
	CodeOtherRequired   = "OTHER_TEXT_REQUIRED"
	CodeSchemaViolation = "SCHEMA_VIOLATION"
)

// ValidationResult holds every issue found for one document.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one issue attached to a dot-delimited field path.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewResult builds a result from a list of issues.
func NewResult(errs []ValidationError) *ValidationResult {
	return &ValidationResult{
		Valid:  len(errs) == 0,
		Errors: errs,
	}
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = err.Error()
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// GetErrorsForField returns errors for a field and anything nested below it.
func (vr *ValidationResult) GetErrorsForField(field string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}

// Filter keeps the issues whose field satisfies keep.
func (vr *ValidationResult) Filter(keep func(field string) bool) *ValidationResult {
	var out []ValidationError
	for _, err := range vr.Errors {
		if keep(err.Field) {
			out = append(out, err)
		}
	}
	return NewResult(out)
}

// Tree nests the issues by path segment so that the error for
// "basicInfo.email" sits at tree["basicInfo"]["email"]. The first issue for a
// path wins; an issue never replaces an existing subtree.
func (vr *ValidationResult) Tree() map[string]interface{} {
	root := map[string]interface{}{}
	for _, err := range vr.Errors {
		placeIssue(root, strings.Split(err.Field, "."), err)
	}
	return root
}

func placeIssue(node map[string]interface{}, segs []string, err ValidationError) {
	for _, seg := range segs[:len(segs)-1] {
		existing, exists := node[seg]
		if !exists {
			next := map[string]interface{}{}
			node[seg] = next
			node = next
			continue
		}
		next, ok := existing.(map[string]interface{})
		if !ok {
			return
		}
		node = next
	}
	last := segs[len(segs)-1]
	if _, exists := node[last]; !exists {
		node[last] = err
	}
}

var urlPattern = regexp.MustCompile(`^https?://`)

// ValidateURL reports whether s starts with an http(s) scheme.
func ValidateURL(s string) bool {
	return urlPattern.MatchString(s)
}

// CountWords counts whitespace-separated words.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
