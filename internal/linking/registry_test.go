package linking

import (
	"testing"

	"linkcore/pkg/domain"
)

type fakeView struct {
	items   []domain.Item
	actors  []domain.Actor
	packs   []domain.Compendium
	scenes  []domain.Scene
	folders []domain.Folder
}

func (v fakeView) FindItem(id domain.Identity) (domain.Item, bool) { return domain.Item{}, false }
func (v fakeView) FindActor(id string) (domain.Actor, bool)        { return domain.Actor{}, false }
func (v fakeView) FindCompendium(pack string) (domain.Compendium, bool) {
	return domain.Compendium{}, false
}
func (v fakeView) FindFolder(id string) (domain.Folder, bool) { return domain.Folder{}, false }
func (v fakeView) ListWorldItems() []domain.Item              { return v.items }
func (v fakeView) ListActors() []domain.Actor                 { return v.actors }
func (v fakeView) ListCompendiums() []domain.Compendium       { return v.packs }
func (v fakeView) ListScenes() []domain.Scene                 { return v.scenes }
func (v fakeView) ListFolders() []domain.Folder               { return v.folders }
func (v fakeView) Setting(key string) (any, bool)             { return nil, false }

func linkedItem(id, base string) domain.Item {
	return domain.Item{
		Base: domain.Base{ID: id},
		Flags: map[string]map[string]any{
			domain.FlagScope: {"isLinked": true, "baseItem": base},
		},
	}
}

func TestFindDerivedScansAllContainers(t *testing.T) {
	base := "Compendium.world.weapons.Item.sword"
	view := fakeView{
		items: []domain.Item{
			linkedItem("w1", base),
			{Base: domain.Base{ID: "plain"}},
		},
		actors: []domain.Actor{{
			Base:  domain.Base{ID: "a1"},
			Items: []domain.Item{linkedItem("i1", base)},
		}},
		scenes: []domain.Scene{{
			Base: domain.Base{ID: "s1"},
			Tokens: []domain.Token{
				{ID: "t1", Linked: false, DeltaItems: []domain.Item{linkedItem("d1", base)}},
				{ID: "t2", Linked: true, DeltaItems: []domain.Item{linkedItem("d2", base)}},
			},
		}},
	}
	derived := FindDerived(view)[domain.Identity(base)]
	if len(derived) != 3 {
		t.Fatalf("expected 3 derivations, got %d: %#v", len(derived), derived)
	}
	seen := map[domain.Identity]bool{}
	for _, d := range derived {
		seen[d.Identity] = true
	}
	for _, want := range []domain.Identity{
		"Item.w1",
		"Actor.a1.Item.i1",
		"Scene.s1.Token.t1.Item.d1",
	} {
		if !seen[want] {
			t.Errorf("missing derivation %s", want)
		}
	}
	if seen["Scene.s1.Token.t2.Item.d2"] {
		t.Error("linked token delta item must be excluded")
	}
}

func TestFindDerivedExcludesCompendiumContents(t *testing.T) {
	view := fakeView{
		packs: []domain.Compendium{{
			Name:  "world.weapons",
			Items: []domain.Item{linkedItem("x", "Compendium.world.other.Item.y")},
		}},
	}
	if got := FindDerived(view); len(got) != 0 {
		t.Fatalf("compendium contents scanned as derivations: %#v", got)
	}
}

func TestRegistryRegisterReplacesBase(t *testing.T) {
	r := NewRegistry()
	d := domain.Identity("Item.d")
	r.Register(d, "Compendium.a.b.Item.1")
	r.Register(d, "Compendium.a.b.Item.2")

	base, ok := r.BaseOf(d)
	if !ok || base != "Compendium.a.b.Item.2" {
		t.Fatalf("BaseOf = %s, %v", base, ok)
	}
	if got := r.DerivationsOf("Compendium.a.b.Item.1"); len(got) != 0 {
		t.Fatalf("stale base association survived: %v", got)
	}
	if got := r.DerivationsOf("Compendium.a.b.Item.2"); len(got) != 1 || got[0] != d {
		t.Fatalf("DerivationsOf = %v", got)
	}
}

func TestRegistryUnregisterAndInvalidate(t *testing.T) {
	r := NewRegistry()
	r.Register("Item.a", "Compendium.x.y.Item.1")
	r.Register("Item.b", "Compendium.x.y.Item.1")

	r.Unregister("Item.a")
	if _, ok := r.BaseOf("Item.a"); ok {
		t.Fatal("unregistered derivation still mapped")
	}
	if got := r.DerivationsOf("Compendium.x.y.Item.1"); len(got) != 1 {
		t.Fatalf("DerivationsOf after unregister = %v", got)
	}

	r.Invalidate()
	if _, ok := r.BaseOf("Item.b"); ok {
		t.Fatal("invalidated registry still mapped")
	}
}
