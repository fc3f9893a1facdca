package schema

import "portal-workers/internal/form/fieldpath"

// JSONSchema returns a JSON Schema (draft-07) describing the shape of the
// applicant record the compiled questions write into. A fresh document is
// built on each call so callers may modify it.
func (cs *CompiledSchema) JSONSchema() map[string]interface{} {
	return cs.document()
}

func (cs *CompiledSchema) document() map[string]interface{} {
	buckets := map[string]map[string]interface{}{}
	bucketProps := func(path fieldpath.FieldPath) map[string]interface{} {
		b := path.Bucket()
		props, ok := buckets[b]
		if !ok {
			props = map[string]interface{}{}
			buckets[b] = props
		}
		return props
	}

	for _, f := range cs.fields {
		h, _ := HandlerFor(f.Type)
		frag := h.Fragment(f)
		if f.Title != "" {
			frag["title"] = f.Title
		}
		bucketProps(f.Path)[f.Path.Key()] = frag
	}
	for _, m := range cs.OtherMeta {
		props := bucketProps(m.OtherPath)
		if _, exists := props[m.OtherPath.Key()]; !exists {
			props[m.OtherPath.Key()] = stringFragment(FieldSpec{})
		}
	}

	properties := map[string]interface{}{}
	for name, props := range buckets {
		properties[name] = map[string]interface{}{
			"type":       []interface{}{"object", "null"},
			"properties": props,
		}
	}

	return map[string]interface{}{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": properties,
	}
}
