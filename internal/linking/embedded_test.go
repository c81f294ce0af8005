package linking

import (
	"context"
	"testing"

	"linkcore/internal/config"
	"linkcore/pkg/domain"
)

func effectByID(item domain.Item, id string) (domain.Effect, bool) {
	for _, e := range item.Effects {
		if e.ID == id {
			return e, true
		}
	}
	return domain.Effect{}, false
}

func actorEffectByID(actor domain.Actor, id string) (domain.Effect, bool) {
	for _, e := range actor.Effects {
		if e.ID == id {
			return e, true
		}
	}
	return domain.Effect{}, false
}

func TestLinkSyncPropagatesEffectsWithIDAndOrigin(t *testing.T) {
	store, rec := newTestEngine(t, nil)
	mustCreatePack(t, store, testPack)
	baseID := seedBase(t, store, testPack)
	ctx := context.Background()

	_, _, err := store.CreateEffects(ctx, baseID, []domain.Effect{
		{ID: "fx1", Name: "Glow", Icon: "glow.png", Origin: baseID},
	}, domain.MutationOptions{KeepID: true})
	if err != nil {
		t.Fatalf("seed base effect: %v", err)
	}

	derivedID := mustCreateItem(t, store, domain.WorldContainer(), domain.Item{
		Name: "Sword", Type: "weapon", System: map[string]any{},
	})
	mustLink(t, rec, derivedID, baseID)

	live := mustResolve(t, store, derivedID)
	fx, ok := effectByID(live, "fx1")
	if !ok {
		t.Fatalf("propagated effect missing, have %#v", live.Effects)
	}
	if fx.Origin != derivedID {
		t.Fatalf("origin not rewritten: %s", fx.Origin)
	}
	from, propagated := fx.Flags[domain.FlagScope]["baseItem"].(string)
	if !propagated || from != string(baseID) {
		t.Fatalf("back-reference missing: %#v", fx.Flags)
	}
}

func TestBaseEffectCreateFansOut(t *testing.T) {
	store, rec := newTestEngine(t, nil)
	mustCreatePack(t, store, testPack)
	baseID := seedBase(t, store, testPack)
	derivedID := mustCreateItem(t, store, domain.WorldContainer(), domain.Item{
		Name: "Sword", Type: "weapon", System: map[string]any{},
	})
	mustLink(t, rec, derivedID, baseID)
	ctx := context.Background()

	_, _, err := store.CreateEffects(ctx, baseID, []domain.Effect{
		{ID: "fx2", Name: "Sharpness"},
	}, domain.MutationOptions{KeepID: true})
	if err != nil {
		t.Fatalf("base effect create: %v", err)
	}

	live := mustResolve(t, store, derivedID)
	if _, ok := effectByID(live, "fx2"); !ok {
		t.Fatalf("effect not fanned out, have %#v", live.Effects)
	}
}

func TestBaseEffectCreateWithoutPresetIDKeepsCopiesCorrelated(t *testing.T) {
	store, rec := newTestEngine(t, nil)
	mustCreatePack(t, store, testPack)
	baseID := seedBase(t, store, testPack)
	derivedID := mustCreateItem(t, store, domain.WorldContainer(), domain.Item{
		Name: "Sword", Type: "weapon", System: map[string]any{},
	})
	mustLink(t, rec, derivedID, baseID)
	ctx := context.Background()

	created, _, err := store.CreateEffects(ctx, baseID, []domain.Effect{
		{Name: "Keen"},
	}, domain.MutationOptions{})
	if err != nil {
		t.Fatalf("base effect create: %v", err)
	}
	if len(created) != 1 || created[0].ID == "" {
		t.Fatalf("expected one effect with a minted id, got %#v", created)
	}
	fxID := created[0].ID

	// The derived copy must carry the same id as the base effect so later
	// base-side updates addressed by id reach it.
	live := mustResolve(t, store, derivedID)
	if _, ok := effectByID(live, fxID); !ok {
		t.Fatalf("derived copy id differs from base id %s, have %#v", fxID, live.Effects)
	}

	if _, err := store.UpdateEffects(ctx, baseID, []domain.EffectUpdate{
		{ID: fxID, Changes: map[string]any{"name": "Keener"}},
	}, domain.MutationOptions{}); err != nil {
		t.Fatalf("base effect update: %v", err)
	}
	live = mustResolve(t, store, derivedID)
	fx, ok := effectByID(live, fxID)
	if !ok || fx.Name != "Keener" {
		t.Fatalf("id-addressed update did not reach derivation: %#v", fx)
	}
}

func TestBaseEffectUpdateFansOutOnlyToPropagatedCopies(t *testing.T) {
	store, rec := newTestEngine(t, nil)
	mustCreatePack(t, store, testPack)
	baseID := seedBase(t, store, testPack)
	derivedID := mustCreateItem(t, store, domain.WorldContainer(), domain.Item{
		Name: "Sword", Type: "weapon", System: map[string]any{},
	})
	mustLink(t, rec, derivedID, baseID)
	ctx := context.Background()

	if _, _, err := store.CreateEffects(ctx, baseID, []domain.Effect{
		{ID: "fx3", Name: "Before"},
	}, domain.MutationOptions{KeepID: true}); err != nil {
		t.Fatalf("base effect create: %v", err)
	}
	if _, err := store.UpdateEffects(ctx, baseID, []domain.EffectUpdate{
		{ID: "fx3", Changes: map[string]any{"name": "After"}},
	}, domain.MutationOptions{}); err != nil {
		t.Fatalf("base effect update: %v", err)
	}

	live := mustResolve(t, store, derivedID)
	fx, ok := effectByID(live, "fx3")
	if !ok || fx.Name != "After" {
		t.Fatalf("update not fanned out: %#v", fx)
	}
	// The rewritten origin survives the update.
	if fx.Origin != derivedID {
		t.Fatalf("origin clobbered by fan-out: %s", fx.Origin)
	}
}

func TestBaseEffectDeleteSparesUserAuthoredEffects(t *testing.T) {
	store, rec := newTestEngine(t, nil)
	mustCreatePack(t, store, testPack)
	baseID := seedBase(t, store, testPack)
	derivedID := mustCreateItem(t, store, domain.WorldContainer(), domain.Item{
		Name: "Sword", Type: "weapon", System: map[string]any{},
	})
	mustLink(t, rec, derivedID, baseID)
	ctx := context.Background()

	if _, _, err := store.CreateEffects(ctx, baseID, []domain.Effect{
		{ID: "fx4", Name: "Inherited"},
	}, domain.MutationOptions{KeepID: true}); err != nil {
		t.Fatalf("base effect create: %v", err)
	}
	// A user-authored effect on the derivation, outside any base sync.
	if _, _, err := store.CreateEffects(ctx, derivedID, []domain.Effect{
		{ID: "mine", Name: "Hand Made"},
	}, domain.MutationOptions{KeepID: true}); err != nil {
		t.Fatalf("derivation effect create: %v", err)
	}

	if _, err := store.DeleteEffects(ctx, baseID, []string{"fx4"}, domain.MutationOptions{}); err != nil {
		t.Fatalf("base effect delete: %v", err)
	}

	live := mustResolve(t, store, derivedID)
	if _, ok := effectByID(live, "fx4"); ok {
		t.Fatal("propagated effect survived base deletion")
	}
	if _, ok := effectByID(live, "mine"); !ok {
		t.Fatal("user-authored effect deleted collaterally")
	}
}

func TestUserEffectsSurviveResync(t *testing.T) {
	store, rec := newTestEngine(t, nil)
	mustCreatePack(t, store, testPack)
	baseID := seedBase(t, store, testPack)
	derivedID := mustCreateItem(t, store, domain.WorldContainer(), domain.Item{
		Name: "Sword", Type: "weapon", System: map[string]any{},
	})
	mustLink(t, rec, derivedID, baseID)
	ctx := context.Background()

	if _, _, err := store.CreateEffects(ctx, derivedID, []domain.Effect{
		{ID: "mine", Name: "Hand Made"},
	}, domain.MutationOptions{KeepID: true}); err != nil {
		t.Fatalf("derivation effect create: %v", err)
	}

	// A base write forces a full sync pass over the effect collections.
	if _, _, err := store.UpdateItem(ctx, baseID, map[string]any{
		"system": map[string]any{"weight": 9},
	}, domain.MutationOptions{}); err != nil {
		t.Fatalf("base update: %v", err)
	}

	live := mustResolve(t, store, derivedID)
	if _, ok := effectByID(live, "mine"); !ok {
		t.Fatal("user-authored effect removed by sync")
	}
}

func TestActorMirroringWithCollateralGuard(t *testing.T) {
	settings := config.Default()
	settings.SetEnforceActorEffects(true)
	store, rec := newTestEngine(t, settings)
	mustCreatePack(t, store, testPack)
	baseID := seedBase(t, store, testPack)
	ctx := context.Background()

	if _, _, err := store.CreateEffects(ctx, baseID, []domain.Effect{
		{ID: "aura", Name: "Aura"},
	}, domain.MutationOptions{KeepID: true}); err != nil {
		t.Fatalf("base effect create: %v", err)
	}

	actorID := mustCreateActor(t, store, domain.Actor{Name: "Hero", Type: domain.ActorCharacter})
	itemID := mustCreateItem(t, store, domain.ActorContainer(actorID), domain.Item{
		Name: "Sword", Type: "weapon", System: map[string]any{},
	})
	mustLink(t, rec, itemID, baseID)

	actor, _ := store.GetActor(actorID)
	mirrored, ok := actorEffectByID(actor, "aura")
	if !ok {
		t.Fatalf("effect not mirrored to actor, have %#v", actor.Effects)
	}
	if _, propagated := mirrored.Flags[domain.FlagScope]["baseItem"].(string); !propagated {
		t.Fatal("mirrored effect missing back-reference")
	}

	// A user-authored actor effect sharing an id with a base effect must not
	// be deleted when the base copy goes away.
	if _, _, err := store.CreateEffects(ctx, domain.ActorIdentity(actorID), []domain.Effect{
		{ID: "blessing", Name: "Blessing"},
	}, domain.MutationOptions{KeepID: true}); err != nil {
		t.Fatalf("actor effect create: %v", err)
	}
	if _, _, err := store.CreateEffects(ctx, baseID, []domain.Effect{
		{ID: "blessing", Name: "Base Blessing"},
	}, domain.MutationOptions{KeepID: true}); err != nil {
		t.Fatalf("base effect create: %v", err)
	}
	if _, err := store.DeleteEffects(ctx, baseID, []string{"blessing", "aura"}, domain.MutationOptions{}); err != nil {
		t.Fatalf("base effect delete: %v", err)
	}

	item := mustResolve(t, store, itemID)
	if _, ok := effectByID(item, "aura"); ok {
		t.Fatal("propagated item effect survived base deletion")
	}
	actor, _ = store.GetActor(actorID)
	if _, ok := actorEffectByID(actor, "aura"); ok {
		t.Fatal("mirrored actor effect survived base deletion")
	}
	if _, ok := actorEffectByID(actor, "blessing"); !ok {
		t.Fatal("user-authored actor effect deleted collaterally")
	}
}
