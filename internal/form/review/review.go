// Package review turns stored answers back into display strings for the
// review screen, the search index and the confirmation email.
package review

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"portal-workers/internal/form/fieldpath"
	"portal-workers/internal/form/registry"
	"portal-workers/internal/models"
)

// NotAnswered is shown for every question without a usable answer.
const NotAnswered = "Not answered"

// Formatter renders one question's answer. An empty result is shown as
// NotAnswered.
type Formatter func(section models.Section, q models.QuestionDefinition, d models.ApplicantDraft) string

var (
	formattersMu sync.RWMutex
	formatters   = map[models.QuestionType]Formatter{}
)

func init() {
	for _, t := range []models.QuestionType{
		models.QuestionTypeShortAnswer,
		models.QuestionTypeLongAnswer,
		models.QuestionTypeCountry,
		models.QuestionTypeSchool,
	} {
		formatters[t] = formatText
	}
	formatters[models.QuestionTypeMultipleChoice] = formatSingleChoice
	formatters[models.QuestionTypeDropdown] = formatSingleChoice
	formatters[models.QuestionTypeSelectAll] = formatMultiSelect
	formatters[models.QuestionTypeMajor] = formatMajor
	formatters[models.QuestionTypeFullLegalName] = formatFullLegalName
	formatters[models.QuestionTypePortfolio] = formatPortfolio
}

// RegisterFormatter installs or replaces the formatter for a question type.
func RegisterFormatter(t models.QuestionType, f Formatter) {
	formattersMu.Lock()
	defer formattersMu.Unlock()
	formatters[t] = f
}

// FormatAnswer never panics: a missing or malformed answer, or an unknown
// question type without a value, yields NotAnswered.
func FormatAnswer(section models.Section, q models.QuestionDefinition, d models.ApplicantDraft) (out string) {
	defer func() {
		if recover() != nil {
			out = NotAnswered
		}
	}()

	formattersMu.RLock()
	f, ok := formatters[q.Type]
	formattersMu.RUnlock()
	if !ok {
		f = formatText
	}

	out = strings.TrimSpace(f(section, q, d))
	if out == "" {
		return NotAnswered
	}
	return out
}

// Entry is one row of an application summary.
type Entry struct {
	Section    models.Section `json:"section"`
	QuestionID string         `json:"questionId"`
	Title      string         `json:"title"`
	Answer     string         `json:"answer"`
}

// Summarize formats every question of set in form order. Welcome content is
// not an answer and is left out.
func Summarize(set models.QuestionSet, d models.ApplicantDraft) []Entry {
	var out []Entry
	for _, section := range set.Sections() {
		if section == models.SectionWelcome {
			continue
		}
		for _, q := range set[section] {
			out = append(out, Entry{
				Section:    section,
				QuestionID: q.ID,
				Title:      q.Title,
				Answer:     FormatAnswer(section, q, d),
			})
		}
	}
	return out
}

// ==========================
// Formatters
// ==========================

func mainValue(section models.Section, q models.QuestionDefinition, d models.ApplicantDraft) (interface{}, bool) {
	path, ok := registry.MainPath(section, q)
	if !ok {
		return nil, false
	}
	return fieldpath.GetValueAtPath(d, path)
}

func otherText(section models.Section, q models.QuestionDefinition, d models.ApplicantDraft) string {
	path, ok := registry.OtherPath(section, q)
	if !ok {
		return ""
	}
	return strings.TrimSpace(fieldpath.GetString(d, path))
}

func scalar(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int, int64:
		return fmt.Sprint(t)
	default:
		return ""
	}
}

func formatText(section models.Section, q models.QuestionDefinition, d models.ApplicantDraft) string {
	v, _ := mainValue(section, q, d)
	return scalar(v)
}

func formatSingleChoice(section models.Section, q models.QuestionDefinition, d models.ApplicantDraft) string {
	v, _ := mainValue(section, q, d)
	value := scalar(v)
	if strings.EqualFold(value, models.OtherOptionValue) {
		return otherText(section, q, d)
	}
	return value
}

// selectedKeys returns the keys set to true in a stored boolean map.
func selectedKeys(v interface{}) map[string]bool {
	out := map[string]bool{}
	switch m := v.(type) {
	case map[string]bool:
		for k, b := range m {
			if b {
				out[k] = true
			}
		}
	case map[string]interface{}:
		for k, raw := range m {
			if b, ok := raw.(bool); ok && b {
				out[k] = true
			}
		}
	}
	return out
}

// joinSelected lists labels for selected keys: keys in order first, then any
// remaining keys sorted, then the other text when "other" is selected. With
// withOther unset, "other" is an ordinary option key.
func joinSelected(selected map[string]bool, order []string, label func(string) string, withOther bool, other string) string {
	var parts []string
	seen := map[string]bool{}
	if withOther {
		seen[models.OtherOptionValue] = true
	}
	for _, key := range order {
		if seen[key] {
			continue
		}
		seen[key] = true
		if selected[key] {
			parts = append(parts, label(key))
		}
	}

	var rest []string
	for key := range selected {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	slices.Sort(rest)
	for _, key := range rest {
		parts = append(parts, label(key))
	}

	if withOther && selected[models.OtherOptionValue] && other != "" {
		parts = append(parts, other)
	}
	return strings.Join(parts, ", ")
}

func formatMultiSelect(section models.Section, q models.QuestionDefinition, d models.ApplicantDraft) string {
	v, _ := mainValue(section, q, d)
	labels := make(map[string]string, len(q.Options))
	order := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		key := models.OptionKey(opt)
		labels[key] = opt
		order = append(order, key)
	}
	label := func(key string) string {
		if l, ok := labels[key]; ok {
			return l
		}
		return key
	}
	return joinSelected(selectedKeys(v), order, label, q.Other, otherText(section, q, d))
}

func formatMajor(section models.Section, q models.QuestionDefinition, d models.ApplicantDraft) string {
	v, _ := mainValue(section, q, d)
	label := func(key string) string {
		if l, ok := registry.MajorLabel(key, q.Options); ok {
			return l
		}
		return key
	}

	// Older records store the major as a single key.
	if s, ok := v.(string); ok {
		if strings.EqualFold(s, models.OtherOptionValue) {
			return otherText(section, q, d)
		}
		return label(strings.TrimSpace(s))
	}

	order := slices.Clone(registry.MajorOrder)
	for _, opt := range q.Options {
		order = append(order, models.OptionKey(opt))
	}
	// The major list always offers a free-text "other".
	return joinSelected(selectedKeys(v), order, label, true, otherText(section, q, d))
}

func formatFullLegalName(_ models.Section, q models.QuestionDefinition, d models.ApplicantDraft) string {
	entry, _ := registry.Lookup(q.Type)
	var parts []string
	for _, p := range registry.FanOutPaths(entry) {
		if s := strings.TrimSpace(fieldpath.GetString(d, p)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func formatPortfolio(_ models.Section, q models.QuestionDefinition, d models.ApplicantDraft) string {
	entry, _ := registry.Lookup(q.Type)
	var parts []string
	for _, f := range entry.Fields {
		p, ok := fieldpath.BuildFieldPath(entry.Section, f.FormInput)
		if !ok {
			continue
		}
		if s := strings.TrimSpace(fieldpath.GetString(d, p)); s != "" {
			parts = append(parts, f.Label+": "+s)
		}
	}
	return strings.Join(parts, ", ")
}
