package docstore

// Apply computes the stored document after writing data over existing.
// Merge writes replace top-level fields and keep the rest; nested maps are
// merged recursively.
func Apply(existing, data Document, opts SetOptions) Document {
	if !opts.Merge || existing == nil {
		return deepCopy(data)
	}
	out := deepCopy(existing)
	for k, v := range data {
		if nv, ok := asMap(v); ok {
			if ov, ok := asMap(out[k]); ok {
				out[k] = map[string]any(Apply(ov, nv, opts))
				continue
			}
		}
		out[k] = copyValue(v)
	}
	return out
}

func asMap(v any) (Document, bool) {
	switch m := v.(type) {
	case Document:
		return m, true
	case map[string]any:
		return Document(m), true
	}
	return nil, false
}

func deepCopy(d Document) Document {
	if d == nil {
		return Document{}
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case Document:
		return map[string]any(deepCopy(t))
	case map[string]any:
		return map[string]any(deepCopy(t))
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = map[string]any(deepCopy(t[i]))
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}
	return v
}
