// internal/models/question.go
package models

import (
	"slices"
	"strings"
	"unicode"
)

// Section names a page of the application form as stored in the question metadata.
type Section string

const (
	SectionWelcome            Section = "Welcome"
	SectionBasicInfo          Section = "BasicInfo"
	SectionSkills             Section = "Skills"
	SectionQuestionnaire      Section = "Questionnaire"
	SectionTermsAndConditions Section = "TermsAndConditions"
)

// FormSections lists the sections in the order the form presents them.
var FormSections = []Section{
	SectionWelcome,
	SectionBasicInfo,
	SectionSkills,
	SectionQuestionnaire,
	SectionTermsAndConditions,
}

// QuestionType is the closed set of question kinds an operator can configure.
type QuestionType string

const (
	QuestionTypeShortAnswer    QuestionType = "Short Answer"
	QuestionTypeLongAnswer     QuestionType = "Long Answer"
	QuestionTypeMultipleChoice QuestionType = "Multiple Choice"
	QuestionTypeSelectAll      QuestionType = "Select All"
	QuestionTypeDropdown       QuestionType = "Dropdown"
	QuestionTypeFullLegalName  QuestionType = "Full Legal Name"
	QuestionTypePortfolio      QuestionType = "Portfolio"
	QuestionTypeCountry        QuestionType = "Country"
	QuestionTypeSchool         QuestionType = "School"
	QuestionTypeMajor          QuestionType = "Major"

	// Override types only produced by fan-out registry entries.
	QuestionTypeURL    QuestionType = "URL"
	QuestionTypeUpload QuestionType = "Upload"
)

// OtherOptionValue is the literal stored when an applicant picks "other".
const OtherOptionValue = "other"

// QuestionDefinition is one operator-edited question record.
type QuestionDefinition struct {
	ID          string       `json:"_id" yaml:"id"`
	Title       string       `json:"title" yaml:"title"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Type        QuestionType `json:"type" yaml:"type"`
	FormInput   string       `json:"formInput,omitempty" yaml:"formInput,omitempty"`
	Options     []string     `json:"options,omitempty" yaml:"options,omitempty"`
	Other       bool         `json:"other,omitempty" yaml:"other,omitempty"`
	Required    bool         `json:"required,omitempty" yaml:"required,omitempty"`
	MaxWords    string       `json:"maxWords,omitempty" yaml:"maxWords,omitempty"`
	Position    int          `json:"position,omitempty" yaml:"position,omitempty"`
}

// QuestionSet buckets question definitions by section.
type QuestionSet map[Section][]QuestionDefinition

// Sections returns the sections present in the set, in form order first and
// unknown sections afterwards in name order.
func (s QuestionSet) Sections() []Section {
	out := make([]Section, 0, len(s))
	seen := make(map[Section]bool, len(s))
	for _, sec := range FormSections {
		if _, ok := s[sec]; ok {
			out = append(out, sec)
			seen[sec] = true
		}
	}
	var rest []Section
	for sec := range s {
		if !seen[sec] {
			rest = append(rest, sec)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

// OptionKey converts an option label into its boolean-map key:
// "Red" -> "red", "Computer Science" -> "computerScience".
func OptionKey(label string) string {
	words := strings.FieldsFunc(label, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for i, w := range words {
		lower := strings.ToLower(w)
		if i == 0 {
			b.WriteString(lower)
			continue
		}
		runes := []rune(lower)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}
