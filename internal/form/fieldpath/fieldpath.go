// Package fieldpath maps form sections and question inputs to dot-delimited
// addresses inside an applicant record and reads values back from them.
// The same addressing is used for draft values and for validation error trees.
package fieldpath

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"portal-workers/internal/models"
)

// FieldPath is a dot-delimited address such as "basicInfo.email".
type FieldPath string

const separator = "."

var buckets = map[models.Section]string{
	models.SectionBasicInfo:          "basicInfo",
	models.SectionSkills:             "skills",
	models.SectionQuestionnaire:      "questionnaire",
	models.SectionTermsAndConditions: "termsAndConditions",
}

// BucketFor returns the draft bucket that stores answers for a section.
func BucketFor(section models.Section) (string, bool) {
	b, ok := buckets[section]
	return b, ok
}

// SectionForBucket is the inverse of BucketFor.
func SectionForBucket(bucket string) (models.Section, bool) {
	for sec, b := range buckets {
		if b == bucket {
			return sec, true
		}
	}
	return "", false
}

// BuildFieldPath returns "<bucket>.<formInput>". It reports false when the
// section has no draft bucket (e.g. Welcome) or formInput is empty.
func BuildFieldPath(section models.Section, formInput string) (FieldPath, bool) {
	bucket, ok := buckets[section]
	if !ok || formInput == "" {
		return "", false
	}
	return FieldPath(bucket + separator + formInput), true
}

// BuildOtherFieldPath returns the companion free-text path for formInput:
// "favColor" in basicInfo becomes "basicInfo.otherFavColor".
func BuildOtherFieldPath(section models.Section, formInput string) (FieldPath, bool) {
	bucket, ok := buckets[section]
	if !ok || formInput == "" {
		return "", false
	}
	return FieldPath(bucket + separator + OtherKey(formInput)), true
}

// OtherKey prefixes the capitalised key with "other".
func OtherKey(formInput string) string {
	if formInput == "" {
		return "other"
	}
	r, size := utf8.DecodeRuneInString(formInput)
	return "other" + string(unicode.ToUpper(r)) + formInput[size:]
}

// Segments splits the path on dots.
func (p FieldPath) Segments() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), separator)
}

// Bucket returns the first segment.
func (p FieldPath) Bucket() string {
	segs := p.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[0]
}

// Key returns the last segment.
func (p FieldPath) Key() string {
	segs := p.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

func (p FieldPath) String() string { return string(p) }

// GetValueAtPath walks root along the dot segments of path. It reports false
// when any intermediate is nil, not an object, or missing; it never panics.
func GetValueAtPath(root interface{}, path FieldPath) (interface{}, bool) {
	segs := path.Segments()
	if len(segs) == 0 {
		return nil, false
	}
	cur := root
	for _, seg := range segs {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case models.ApplicantDraft:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]bool:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]string:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

// GetString returns the value at path when it is a string.
func GetString(root interface{}, path FieldPath) string {
	v, _ := GetValueAtPath(root, path)
	s, _ := v.(string)
	return s
}

// SetValueAtPath builds the nested partial {bucket: {key: value}} for path.
func SetValueAtPath(path FieldPath, value interface{}) map[string]interface{} {
	segs := path.Segments()
	if len(segs) == 0 {
		return map[string]interface{}{}
	}
	var out interface{} = value
	for i := len(segs) - 1; i >= 0; i-- {
		out = map[string]interface{}{segs[i]: out}
	}
	return out.(map[string]interface{})
}
