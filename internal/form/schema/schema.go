// Package schema compiles per-event question definitions into one validator
// for the applicant record, together with the per-section field lists used
// for step validation and the metadata for "other" companion fields.
package schema

import (
	"strconv"
	"strings"

	"portal-workers/internal/common/validation"
	"portal-workers/internal/form/fieldpath"
	"portal-workers/internal/form/registry"
	"portal-workers/internal/models"
)

// FieldSpec is one compiled field.
type FieldSpec struct {
	Path       fieldpath.FieldPath
	Section    models.Section
	QuestionID string
	Title      string
	Type       models.QuestionType
	Required   bool
	Options    []string
	Other      bool
	MaxWords   int
	// Known is false when Type had no registered handler.
	Known bool
}

// OtherFieldMeta links a question that offers "other" to its free-text companion.
type OtherFieldMeta struct {
	Section      models.Section
	QuestionType models.QuestionType
	MainPath     fieldpath.FieldPath
	OtherPath    fieldpath.FieldPath
}

// CompiledSchema is immutable after Compile and safe for concurrent use.
type CompiledSchema struct {
	FieldNamesBySection map[models.Section][]fieldpath.FieldPath
	OtherMeta           []OtherFieldMeta

	fields    []FieldSpec
	byPath    map[fieldpath.FieldPath]int
	structure *validation.DocumentSchema
}

// Compile builds a CompiledSchema. It never fails: questions without a
// resolvable path are skipped and unknown types accept any value.
func Compile(set models.QuestionSet) *CompiledSchema {
	cs := &CompiledSchema{
		FieldNamesBySection: map[models.Section][]fieldpath.FieldPath{},
		byPath:              map[fieldpath.FieldPath]int{},
	}

	for _, section := range set.Sections() {
		if section == models.SectionWelcome {
			continue
		}
		for _, q := range set[section] {
			cs.addQuestion(section, q)
		}
	}

	// A document schema built from our own fragments always compiles; if it
	// somehow does not, validation falls back to the value rules alone.
	cs.structure, _ = validation.CompileDocumentSchema(cs.document())
	return cs
}

func (cs *CompiledSchema) addQuestion(section models.Section, q models.QuestionDefinition) {
	if entry, ok := registry.Lookup(q.Type); ok && entry.Kind == registry.KindFanOut {
		for _, f := range entry.Fields {
			path, ok := fieldpath.BuildFieldPath(entry.Section, f.FormInput)
			if !ok {
				continue
			}
			t := registry.FieldType(f, q.Type)
			_, known := HandlerFor(t)
			title := f.Label
			if title == "" {
				title = q.Title
			}
			cs.addField(FieldSpec{
				Path:       path,
				Section:    entry.Section,
				QuestionID: q.ID,
				Title:      title,
				Type:       t,
				Required:   registry.ResolveRequired(f, q.Required),
				Known:      known,
			})
		}
		return
	}

	sec, input, ok := registry.EffectiveInput(section, q)
	if !ok {
		return
	}
	path, ok := fieldpath.BuildFieldPath(sec, input)
	if !ok {
		return
	}
	_, known := HandlerFor(q.Type)
	if !cs.addField(FieldSpec{
		Path:       path,
		Section:    sec,
		QuestionID: q.ID,
		Title:      q.Title,
		Type:       q.Type,
		Required:   q.Required,
		Options:    q.Options,
		Other:      q.Other,
		MaxWords:   parseMaxWords(q.MaxWords),
		Known:      known,
	}) {
		return
	}

	if q.Other {
		otherPath, ok := fieldpath.BuildOtherFieldPath(sec, input)
		if ok {
			cs.OtherMeta = append(cs.OtherMeta, OtherFieldMeta{
				Section:      sec,
				QuestionType: q.Type,
				MainPath:     path,
				OtherPath:    otherPath,
			})
		}
	}
}

// addField registers f unless its path is already owned by another question.
func (cs *CompiledSchema) addField(f FieldSpec) bool {
	if _, dup := cs.byPath[f.Path]; dup {
		return false
	}
	cs.byPath[f.Path] = len(cs.fields)
	cs.fields = append(cs.fields, f)
	cs.FieldNamesBySection[f.Section] = append(cs.FieldNamesBySection[f.Section], f.Path)
	return true
}

func parseMaxWords(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

// Fields returns the compiled fields in compile order.
func (cs *CompiledSchema) Fields() []FieldSpec {
	out := make([]FieldSpec, len(cs.fields))
	copy(out, cs.fields)
	return out
}

// Field returns the compiled field stored at path.
func (cs *CompiledSchema) Field(path fieldpath.FieldPath) (FieldSpec, bool) {
	i, ok := cs.byPath[path]
	if !ok {
		return FieldSpec{}, false
	}
	return cs.fields[i], true
}

// IsRequired reports whether the field at path must be answered.
func (cs *CompiledSchema) IsRequired(path fieldpath.FieldPath) bool {
	f, ok := cs.Field(path)
	return ok && f.Required
}

// OtherMetaFor returns the "other" metadata whose main path is path.
func (cs *CompiledSchema) OtherMetaFor(path fieldpath.FieldPath) (OtherFieldMeta, bool) {
	for _, m := range cs.OtherMeta {
		if m.MainPath == path {
			return m, true
		}
	}
	return OtherFieldMeta{}, false
}

// ==========================
// Validation
// ==========================

// Validate checks the whole draft. Issues come back in a stable order:
// structural type issues, then field rules in compile order, then the
// "other" companion rule.
func (cs *CompiledSchema) Validate(draft models.ApplicantDraft) *validation.ValidationResult {
	if draft == nil {
		draft = models.ApplicantDraft{}
	}
	var issues []validation.ValidationError

	structural := cs.structuralIssues(draft)
	issues = append(issues, structural...)

	for _, f := range cs.fields {
		value, _ := fieldpath.GetValueAtPath(map[string]interface{}(draft), f.Path)
		h, _ := HandlerFor(f.Type)
		issues = append(issues, h.Rule(f, value)...)
	}

	issues = append(issues, cs.otherIssues(draft)...)
	return validation.NewResult(issues)
}

// ValidateSection validates the draft and keeps only the issues belonging to
// one section's fields and their "other" companions.
func (cs *CompiledSchema) ValidateSection(draft models.ApplicantDraft, section models.Section) *validation.ValidationResult {
	return cs.Validate(draft).Filter(cs.SectionFilter(section))
}

// SectionFilter reports whether an issue's field belongs to section. An issue
// on the section's whole bucket (a bucket that is not an object) belongs to it
// too.
func (cs *CompiledSchema) SectionFilter(section models.Section) func(field string) bool {
	owned := map[string]bool{}
	if bucket, ok := fieldpath.BucketFor(section); ok {
		owned[bucket] = true
	}
	for _, p := range cs.FieldNamesBySection[section] {
		owned[p.String()] = true
	}
	for _, m := range cs.OtherMeta {
		if m.Section == section {
			owned[m.OtherPath.String()] = true
		}
	}
	return func(field string) bool { return owned[field] }
}

func (cs *CompiledSchema) structuralIssues(draft models.ApplicantDraft) []validation.ValidationError {
	if cs.structure == nil {
		return nil
	}
	// The document store hands back plain JSON documents, but local patches
	// may carry typed maps; gojsonschema marshals both the same way.
	issues, err := cs.structure.Validate(map[string]interface{}(draft))
	if err != nil {
		return nil
	}
	for i := range issues {
		issues[i].Field = cs.ownerOf(issues[i].Field)
	}
	return issues
}

// ownerOf maps a nested structural path such as "basicInfo.favColor.red" to
// the compiled field that owns it so the issue lands where bindings look.
func (cs *CompiledSchema) ownerOf(field string) string {
	for p := fieldpath.FieldPath(field); p != ""; {
		if _, ok := cs.byPath[p]; ok {
			return p.String()
		}
		i := strings.LastIndex(string(p), ".")
		if i < 0 {
			break
		}
		p = p[:i]
	}
	return field
}

func (cs *CompiledSchema) otherIssues(draft models.ApplicantDraft) []validation.ValidationError {
	if draft == nil {
		return nil
	}
	var issues []validation.ValidationError
	root := map[string]interface{}(draft)
	for _, m := range cs.OtherMeta {
		main, _ := fieldpath.GetValueAtPath(root, m.MainPath)
		h, _ := HandlerFor(m.QuestionType)
		selected := stringOtherSelected
		if h.OtherSelected != nil {
			selected = h.OtherSelected
		}
		if !selected(main) {
			continue
		}
		if strings.TrimSpace(fieldpath.GetString(root, m.OtherPath)) != "" {
			continue
		}
		issues = append(issues, validation.ValidationError{
			Field:   m.OtherPath.String(),
			Code:    validation.CodeOtherRequired,
			Message: "Please specify your other answer",
		})
	}
	return issues
}
