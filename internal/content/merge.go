package content

// Merge overlays overlay onto base and returns a new value; neither input
// is modified.
//
// When both sides are objects the result keeps every key of base and
// replaces or recursively merges the keys present in overlay. Keys that
// overlay omits are never removed. For any other combination overlay wins
// wholesale, so arrays are replaced rather than spliced.
func Merge(base, overlay Value) Value {
	if overlay == nil {
		return Clone(base)
	}
	baseObj, ok := base.(Object)
	if !ok {
		return Clone(overlay)
	}
	overObj, ok := overlay.(Object)
	if !ok {
		return Clone(overlay)
	}

	out := make(Object, len(baseObj)+len(overObj))
	for k, v := range baseObj {
		out[k] = Clone(v)
	}
	for k, v := range overObj {
		if existing, ok := out[k]; ok {
			out[k] = Merge(existing, v)
			continue
		}
		out[k] = Clone(v)
	}
	return out
}

// MergeAt overlays overlay onto the value stored under key in obj and
// returns the updated copy of obj. A missing key behaves like an absent
// base.
func MergeAt(obj Object, key string, overlay Value) Object {
	out := obj.Clone()
	if out == nil {
		out = Object{}
	}
	out[key] = Merge(out[key], overlay)
	return out
}
