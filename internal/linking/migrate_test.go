package linking

import (
	"context"
	"log/slog"
	"testing"

	"linkcore/pkg/domain"
)

func TestMigrateRewritesLegacyCompendiumAddresses(t *testing.T) {
	store, _ := newTestEngine(t, nil)
	legacy := mustCreateItem(t, store, domain.WorldContainer(), domain.Item{
		Name: "Old Sword", Type: "weapon", System: map[string]any{},
		Flags: map[string]map[string]any{
			domain.FlagScope: {"isLinked": true, "baseItem": "Compendium.world.weapons.sword"},
		},
	})
	modern := mustCreateItem(t, store, domain.WorldContainer(), domain.Item{
		Name: "New Sword", Type: "weapon", System: map[string]any{},
		Flags: map[string]map[string]any{
			domain.FlagScope: {"isLinked": true, "baseItem": "Compendium.world.weapons.Item.sword"},
		},
	})

	if err := Migrate(context.Background(), store, slog.New(slog.DiscardHandler)); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	flags := mustResolve(t, store, legacy).LinkFlags()
	if flags.BaseItem == nil || *flags.BaseItem != "Compendium.world.weapons.Item.sword" {
		t.Fatalf("legacy address not rewritten: %+v", flags)
	}
	flags = mustResolve(t, store, modern).LinkFlags()
	if flags.BaseItem == nil || *flags.BaseItem != "Compendium.world.weapons.Item.sword" {
		t.Fatalf("modern address mangled: %+v", flags)
	}
	if got := SchemaVersion(store); got != CurrentSchemaVersion {
		t.Fatalf("counter = %d, want %d", got, CurrentSchemaVersion)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store, _ := newTestEngine(t, nil)
	ctx := context.Background()
	if err := Migrate(ctx, store, nil); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := Migrate(ctx, store, nil); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if got := SchemaVersion(store); got != CurrentSchemaVersion {
		t.Fatalf("counter = %d", got)
	}
}

func TestSchemaVersionToleratesJSONNumbers(t *testing.T) {
	store, _ := newTestEngine(t, nil)
	if err := store.PutSetting(context.Background(), UpdateCounterKey, float64(1)); err != nil {
		t.Fatalf("put setting: %v", err)
	}
	if got := SchemaVersion(store); got != 1 {
		t.Fatalf("float counter read as %d", got)
	}
}

func TestFixLegacyAddress(t *testing.T) {
	cases := []struct {
		in    domain.Identity
		want  domain.Identity
		fixed bool
	}{
		{"Compendium.world.weapons.sword", "Compendium.world.weapons.Item.sword", true},
		{"Compendium.world.weapons.Item.sword", "Compendium.world.weapons.Item.sword", false},
		{"Item.sword", "Item.sword", false},
		{"Actor.a.Item.i", "Actor.a.Item.i", false},
	}
	for _, tc := range cases {
		got, fixed := fixLegacyAddress(tc.in)
		if got != tc.want || fixed != tc.fixed {
			t.Errorf("fixLegacyAddress(%s) = %s, %v; want %s, %v", tc.in, got, fixed, tc.want, tc.fixed)
		}
	}
}
