package draft

import "portal-workers/internal/models"

// Merge returns dst with partial deep-merged into it. Nested objects merge key
// by key with partial winning at each level; arrays and scalars replace.
// Neither argument is modified: every object on a merged path is copied.
func Merge(dst, partial map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(dst)+len(partial))
	for k, v := range dst {
		out[k] = v
	}
	for k, pv := range partial {
		pObj, pIsObj := asObject(pv)
		if !pIsObj {
			out[k] = pv
			continue
		}
		if dObj, ok := asObject(out[k]); ok {
			out[k] = Merge(dObj, pObj)
			continue
		}
		out[k] = Merge(nil, pObj)
	}
	return out
}

// asObject normalises the map shapes a draft may hold into a generic object.
func asObject(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case models.ApplicantDraft:
		return map[string]interface{}(m), true
	case map[string]bool:
		out := make(map[string]interface{}, len(m))
		for k, b := range m {
			out[k] = b
		}
		return out, true
	case map[string]string:
		out := make(map[string]interface{}, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// Clone deep-copies every object level of a draft. Arrays are shared.
func Clone(d models.ApplicantDraft) models.ApplicantDraft {
	if d == nil {
		return nil
	}
	return models.ApplicantDraft(Merge(nil, map[string]interface{}(d)))
}
