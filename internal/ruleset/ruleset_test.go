package ruleset

import (
	"errors"
	"reflect"
	"testing"
)

type stubRuleset struct {
	name   string
	keep   []string
	err    error
	embeds []string
}

func (s stubRuleset) Name() string    { return s.name }
func (s stubRuleset) Version() string { return "0.0.1" }
func (s stubRuleset) Register(r Registry) error {
	if s.err != nil {
		return s.err
	}
	r.RegisterKeepProperties(s.keep...)
	for _, e := range s.embeds {
		r.RegisterEmbeddedCollection(e)
	}
	return nil
}

func TestInstallAndResolve(t *testing.T) {
	rs := stubRuleset{
		name:   "test-system",
		keep:   []string{"charges.value", "ammo", "charges.value", ""},
		embeds: []string{"effects", ""},
	}
	if err := Install(rs); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := Install(rs); err == nil {
		t.Fatal("duplicate install accepted")
	}

	got, err := Resolve("test-system")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(got.KeepProperties, []string{"ammo", "charges.value"}) {
		t.Fatalf("keep properties = %v", got.KeepProperties)
	}
	if !reflect.DeepEqual(got.EmbeddedCollections, []string{"effects"}) {
		t.Fatalf("embedded collections = %v", got.EmbeddedCollections)
	}
}

func TestResolveUnknownIsEmpty(t *testing.T) {
	got, err := Resolve("no-such-system")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got.KeepProperties) != 0 || len(got.EmbeddedCollections) != 0 {
		t.Fatalf("unknown ruleset contributed %+v", got)
	}
}

func TestResolveSurfacesRegistrationErrors(t *testing.T) {
	boom := errors.New("boom")
	if err := Install(stubRuleset{name: "broken-system", err: boom}); err != nil {
		t.Fatalf("install: %v", err)
	}
	if _, err := Resolve("broken-system"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped registration error, got %v", err)
	}
}
