// Package linking implements the derivation reconciliation engine: structural
// diffing between base records and their derived copies, keep-list
// resolution, the live derivation registry, the mutation interception state
// machine, embedded-collection synchronization, and the bulk move/relink and
// migration operations built on top of them.
package linking

import (
	"strings"

	"linkcore/pkg/document"
)

// DiffProperties returns the minimal nested change document that, applied to
// source, aligns it with target on every path outside keep. Keep paths are
// removed from both trees before comparison, so they are neither diffed nor
// deleted. Nested plain objects are compared recursively; arrays are treated
// as atomic values and replaced wholesale on any difference.
func DiffProperties(source, target map[string]any, keep []string) map[string]any {
	src := document.Clone(source)
	dst := document.Clone(target)
	for _, path := range keep {
		document.DeleteProperty(src, path)
		document.DeleteProperty(dst, path)
	}
	return diffObjects(src, dst)
}

func diffObjects(source, target map[string]any) map[string]any {
	out := make(map[string]any)
	for k, tv := range target {
		sv, present := source[k]
		if !present {
			out[k] = document.CloneValue(tv)
			continue
		}
		tm, tIsMap := tv.(map[string]any)
		sm, sIsMap := sv.(map[string]any)
		if tIsMap && sIsMap {
			nested := diffObjects(sm, tm)
			if len(nested) > 0 {
				out[k] = nested
			}
			continue
		}
		if !valuesEqual(sv, tv) {
			out[k] = document.CloneValue(tv)
		}
	}
	return out
}

// DeletionKeys returns a change document of deletion markers for every path
// present in source but absent in target. Recurses into nested plain objects
// only; arrays are atomic. Keep paths are removed from both trees first, so
// a kept field absent from the target is never marked for deletion.
func DeletionKeys(source, target map[string]any, keep []string) map[string]any {
	src := document.Clone(source)
	dst := document.Clone(target)
	for _, path := range keep {
		document.DeleteProperty(src, path)
		document.DeleteProperty(dst, path)
	}
	return deletionMarkers(src, dst)
}

func deletionMarkers(source, target map[string]any) map[string]any {
	out := make(map[string]any)
	for k, sv := range source {
		tv, present := target[k]
		if !present {
			out[document.DeletionPrefix+k] = nil
			continue
		}
		sm, sIsMap := sv.(map[string]any)
		tm, tIsMap := tv.(map[string]any)
		if sIsMap && tIsMap {
			nested := deletionMarkers(sm, tm)
			if len(nested) > 0 {
				out[k] = nested
			}
		}
	}
	return out
}

// ChangesFor combines deletions and the diff into one change document: the
// full set of writes that brings a derivation's tree in line with its base
// outside the keep list.
func ChangesFor(derived, base map[string]any, keep []string) map[string]any {
	changes := DeletionKeys(derived, base, keep)
	merge := DiffProperties(derived, base, keep)
	for k, v := range merge {
		if existing, ok := changes[k].(map[string]any); ok {
			if incoming, isMap := v.(map[string]any); isMap {
				mergeChangeDocs(existing, incoming)
				continue
			}
		}
		changes[k] = v
	}
	return changes
}

// mergeChangeDocs folds incoming into dest with incoming taking precedence.
// A key and its deletion twin never coexist in the result: an incoming set of
// k drops a pending "-=k" in dest and vice versa.
func mergeChangeDocs(dest, incoming map[string]any) {
	for k, v := range incoming {
		if strings.HasPrefix(k, document.DeletionPrefix) {
			delete(dest, strings.TrimPrefix(k, document.DeletionPrefix))
		} else {
			delete(dest, document.DeletionPrefix+k)
		}
		if existing, ok := dest[k].(map[string]any); ok {
			if m, isMap := v.(map[string]any); isMap {
				mergeChangeDocs(existing, m)
				continue
			}
		}
		dest[k] = v
	}
}

func valuesEqual(a, b any) bool {
	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	if aIsMap && bIsMap {
		if len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !valuesEqual(av, bv) {
				return false
			}
		}
		return true
	}
	if aIsMap != bIsMap {
		return false
	}
	as, aIsSlice := a.([]any)
	bs, bIsSlice := b.([]any)
	if aIsSlice && bIsSlice {
		if len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !valuesEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	if aIsSlice != bIsSlice {
		return false
	}
	return a == b
}
