// Package document provides generic helpers for nested key/value trees as
// persisted by the document store: deep cloning, dotted-path access, change
// document merging, and deletion-key semantics. A change document is a nested
// (or dotted-path keyed) map whose "-="-prefixed keys instruct the merge to
// remove the named field instead of leaving it unset.
package document

import "strings"

// DeletionPrefix marks a key in a change document as a field removal.
const DeletionPrefix = "-="

// Clone returns a deep copy of the provided tree. Nested map[string]any and
// []any values are copied recursively; all other values are copied by value.
func Clone(obj map[string]any) map[string]any {
	if obj == nil {
		return nil
	}
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a single value: maps and slices recursively, all
// other values by value.
func CloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return Clone(tv)
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}

// GetProperty resolves a dotted path against the tree. The boolean reports
// whether every segment resolved.
func GetProperty(obj map[string]any, path string) (any, bool) {
	if obj == nil || path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	cur := any(obj)
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// HasProperty reports whether the dotted path resolves on the tree.
func HasProperty(obj map[string]any, path string) bool {
	_, ok := GetProperty(obj, path)
	return ok
}

// SetProperty writes a value at a dotted path, creating intermediate objects
// as needed. An existing non-object intermediate value is replaced.
func SetProperty(obj map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := obj
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// DeleteProperty removes the value at a dotted path. It returns true when a
// value was present and removed.
func DeleteProperty(obj map[string]any, path string) bool {
	parts := strings.Split(path, ".")
	cur := obj
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			return false
		}
		cur = next
	}
	last := parts[len(parts)-1]
	if _, ok := cur[last]; !ok {
		return false
	}
	delete(cur, last)
	return true
}

// Expand converts dotted-path keys in a change document into nested objects.
// Non-dotted keys are copied through; nested maps are expanded recursively.
func Expand(changes map[string]any) map[string]any {
	out := make(map[string]any, len(changes))
	for k, v := range changes {
		if m, ok := v.(map[string]any); ok {
			v = Expand(m)
		}
		if strings.Contains(k, ".") {
			SetProperty(out, k, v)
			continue
		}
		mergeKey(out, k, v)
	}
	return out
}

func mergeKey(dest map[string]any, key string, value any) {
	existing, ok := dest[key].(map[string]any)
	incoming, isMap := value.(map[string]any)
	if ok && isMap {
		for k, v := range incoming {
			mergeKey(existing, k, v)
		}
		return
	}
	dest[key] = value
}

// Flatten converts a nested tree into a single-level map keyed by dotted
// paths. Arrays and non-object leaves are kept whole.
func Flatten(obj map[string]any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, "", obj)
	return out
}

func flattenInto(out map[string]any, prefix string, obj map[string]any) {
	for k, v := range obj {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if m, ok := v.(map[string]any); ok && len(m) > 0 {
			flattenInto(out, path, m)
			continue
		}
		out[path] = v
	}
}

// MergeObject applies a change document onto dest in place. Dotted keys are
// expanded first. Plain nested objects merge recursively, any other value
// (arrays included) replaces the destination wholesale, and keys carrying the
// deletion prefix remove the named field.
func MergeObject(dest, changes map[string]any) {
	applyMerge(dest, Expand(changes))
}

func applyMerge(dest, changes map[string]any) {
	// Deletion markers apply before sets so a change document carrying both
	// "-=k" and "k" resolves the same way regardless of iteration order: the
	// set wins.
	for k := range changes {
		if strings.HasPrefix(k, DeletionPrefix) {
			delete(dest, strings.TrimPrefix(k, DeletionPrefix))
		}
	}
	for k, v := range changes {
		if strings.HasPrefix(k, DeletionPrefix) {
			continue
		}
		incoming, isMap := v.(map[string]any)
		existing, destIsMap := dest[k].(map[string]any)
		if isMap && destIsMap {
			applyMerge(existing, incoming)
			continue
		}
		if isMap {
			fresh := make(map[string]any)
			applyMerge(fresh, incoming)
			dest[k] = fresh
			continue
		}
		dest[k] = CloneValue(v)
	}
}
