package document

import (
	"reflect"
	"testing"
)

func TestCloneIsDeep(t *testing.T) {
	src := map[string]any{
		"a": map[string]any{"b": 1},
		"c": []any{1, map[string]any{"d": "x"}},
	}
	cp := Clone(src)
	cp["a"].(map[string]any)["b"] = 2
	cp["c"].([]any)[1].(map[string]any)["d"] = "y"
	if src["a"].(map[string]any)["b"] != 1 {
		t.Fatal("nested map shared between clone and source")
	}
	if src["c"].([]any)[1].(map[string]any)["d"] != "x" {
		t.Fatal("nested slice element shared between clone and source")
	}
	if Clone(nil) != nil {
		t.Fatal("clone of nil should be nil")
	}
}

func TestGetSetDeleteProperty(t *testing.T) {
	obj := map[string]any{}
	SetProperty(obj, "system.uses.value", 3)
	got, ok := GetProperty(obj, "system.uses.value")
	if !ok || got != 3 {
		t.Fatalf("GetProperty = %v, %v", got, ok)
	}
	if HasProperty(obj, "system.uses.max") {
		t.Fatal("unexpected property")
	}
	if !DeleteProperty(obj, "system.uses.value") {
		t.Fatal("expected deletion")
	}
	if DeleteProperty(obj, "system.uses.value") {
		t.Fatal("double deletion reported success")
	}
	if _, ok := GetProperty(obj, "system.uses.value"); ok {
		t.Fatal("property survived deletion")
	}
}

func TestExpandDottedKeys(t *testing.T) {
	changes := map[string]any{
		"system.damage.base": "1d8",
		"system":             map[string]any{"weight": 3},
		"name":               "Sword",
	}
	got := Expand(changes)
	want := map[string]any{
		"system": map[string]any{
			"damage": map[string]any{"base": "1d8"},
			"weight": 3,
		},
		"name": "Sword",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expand = %#v, want %#v", got, want)
	}
}

func TestMergeObjectDeletionMarkers(t *testing.T) {
	dest := map[string]any{
		"system": map[string]any{
			"uses":   map[string]any{"value": 2, "max": 3},
			"weight": 1,
		},
	}
	MergeObject(dest, map[string]any{
		"system": map[string]any{
			DeletionPrefix + "weight": nil,
			"uses":                    map[string]any{"value": 5},
		},
	})
	sys := dest["system"].(map[string]any)
	if _, present := sys["weight"]; present {
		t.Fatal("deletion marker did not remove field")
	}
	uses := sys["uses"].(map[string]any)
	if uses["value"] != 5 || uses["max"] != 3 {
		t.Fatalf("merge result %#v", uses)
	}
}

func TestMergeObjectSetBeatsDeletionTwin(t *testing.T) {
	for i := 0; i < 40; i++ {
		dest := map[string]any{
			"system": map[string]any{"weight": 1},
		}
		MergeObject(dest, map[string]any{
			"system": map[string]any{
				DeletionPrefix + "weight": nil,
				"weight":                  4,
			},
		})
		sys := dest["system"].(map[string]any)
		if sys["weight"] != 4 {
			t.Fatalf("run %d: set lost to its deletion twin, got %#v", i, sys)
		}
	}
}

func TestMergeObjectArraysReplaceWholesale(t *testing.T) {
	dest := map[string]any{"effects": []any{"a", "b"}}
	MergeObject(dest, map[string]any{"effects": []any{"c"}})
	got := dest["effects"].([]any)
	if len(got) != 1 || got[0] != "c" {
		t.Fatalf("array merge = %#v", got)
	}
}

func TestFlattenRoundTrip(t *testing.T) {
	obj := map[string]any{
		"system": map[string]any{"uses": map[string]any{"value": 1}},
		"name":   "Bow",
	}
	flat := Flatten(obj)
	if flat["system.uses.value"] != 1 || flat["name"] != "Bow" {
		t.Fatalf("Flatten = %#v", flat)
	}
	rebuilt := Expand(flat)
	if !reflect.DeepEqual(rebuilt, obj) {
		t.Fatalf("Expand(Flatten(x)) = %#v, want %#v", rebuilt, obj)
	}
}
