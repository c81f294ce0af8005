package linking

import (
	"context"

	"linkcore/internal/config"
	"linkcore/pkg/document"
	"linkcore/pkg/domain"
)

// baseEffectFlag is the back-reference stamped on propagated sub-records:
// the base item address their originating sub-record lives on. Sub-records
// without it are user-authored and never touched by synchronization.
const baseEffectFlag = "baseItem"

// EmbeddedSyncer keeps a derivation's embedded collections id-aligned with
// its base. Ids are preserved on propagated creates so base-side updates and
// deletes can be located on each derivation by id alone.
type EmbeddedSyncer struct {
	store    domain.Store
	settings *config.Settings
}

// NewEmbeddedSyncer constructs a syncer over the store.
func NewEmbeddedSyncer(store domain.Store, settings *config.Settings) *EmbeddedSyncer {
	return &EmbeddedSyncer{store: store, settings: settings}
}

// effectKeepPaths are the derivation-side effect fields propagation must not
// overwrite: the rewritten origin back-reference and this module's flag
// namespace.
var effectKeepPaths = []string{"origin", "flags." + domain.FlagScope}

func propagatedFrom(e domain.Effect) (domain.Identity, bool) {
	bag := e.Flags[domain.FlagScope]
	if bag == nil {
		return "", false
	}
	raw, ok := bag[baseEffectFlag].(string)
	if !ok || raw == "" {
		return "", false
	}
	return domain.Identity(raw), true
}

// cloneForDerivation prepares a base-side effect for a derivation: same id,
// origin rewritten to the derivation's address, back-reference stamped.
func cloneForDerivation(base domain.Effect, baseID, derivationID domain.Identity) domain.Effect {
	clone := base.Clone()
	clone.Origin = derivationID
	if clone.Flags == nil {
		clone.Flags = map[string]map[string]any{}
	}
	bag := clone.Flags[domain.FlagScope]
	if bag == nil {
		bag = map[string]any{}
		clone.Flags[domain.FlagScope] = bag
	}
	bag[baseEffectFlag] = string(baseID)
	return clone
}

// SyncEffects three-way diffs the derivation's effect collection against the
// base's and issues the create/update/delete batches, all tagged as
// propagation writes. When the enforce-actor-effects policy is on and the
// derivation is embedded on an actor, propagated effects are mirrored onto
// the owning actor so they apply to the character sheet, not just the
// inventory entry.
func (s *EmbeddedSyncer) SyncEffects(ctx context.Context, derivationID, baseID domain.Identity, derived, base domain.Item) (domain.Result, error) {
	var result domain.Result

	baseByID := make(map[string]domain.Effect, len(base.Effects))
	for _, e := range base.Effects {
		baseByID[e.ID] = e
	}
	derivedByID := make(map[string]domain.Effect, len(derived.Effects))
	for _, e := range derived.Effects {
		derivedByID[e.ID] = e
	}

	var creates []domain.Effect
	var updates []domain.EffectUpdate
	var deletes []string
	for _, e := range base.Effects {
		if _, exists := derivedByID[e.ID]; exists {
			updates = append(updates, domain.EffectUpdate{
				ID:      e.ID,
				Changes: effectAlignment(derivedByID[e.ID], e, derivationID, baseID),
			})
			continue
		}
		creates = append(creates, cloneForDerivation(e, baseID, derivationID))
	}
	for _, e := range derived.Effects {
		if _, exists := baseByID[e.ID]; exists {
			continue
		}
		// User-authored extras survive; only propagated leftovers go.
		if _, propagated := propagatedFrom(e); propagated {
			deletes = append(deletes, e.ID)
		}
	}

	opts := domain.MutationOptions{KeepID: true, LinkedUpdate: true}
	if len(creates) > 0 {
		_, res, err := s.store.CreateEffects(ctx, derivationID, creates, opts)
		result.Merge(res)
		if err != nil {
			return result, err
		}
	}
	var liveUpdates []domain.EffectUpdate
	for _, u := range updates {
		if len(u.Changes) > 0 {
			liveUpdates = append(liveUpdates, u)
		}
	}
	if len(liveUpdates) > 0 {
		res, err := s.store.UpdateEffects(ctx, derivationID, liveUpdates, opts)
		result.Merge(res)
		if err != nil {
			return result, err
		}
	}
	if len(deletes) > 0 {
		res, err := s.store.DeleteEffects(ctx, derivationID, deletes, opts)
		result.Merge(res)
		if err != nil {
			return result, err
		}
	}

	if s.settings.EnforceActorEffects() {
		res, err := s.mirrorToActor(ctx, derivationID, creates, liveUpdates, deletes)
		result.Merge(res)
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// effectAlignment computes the propagation change document for one effect,
// keeping the derivation-side origin and module flags.
func effectAlignment(derived, base domain.Effect, derivationID, baseID domain.Identity) map[string]any {
	target := cloneForDerivation(base, baseID, derivationID)
	return ChangesFor(derived.SourceObject(), target.SourceObject(), []string{"_id"})
}

// mirrorToActor repeats the effect batches on the owning actor when the
// derivation lives in an actor's inventory.
func (s *EmbeddedSyncer) mirrorToActor(ctx context.Context, derivationID domain.Identity, creates []domain.Effect, updates []domain.EffectUpdate, deletes []string) (domain.Result, error) {
	var result domain.Result
	parsed, err := derivationID.Parse()
	if err != nil || parsed.Container.Kind != domain.ContainerActor {
		return result, nil
	}
	actorID := domain.ActorIdentity(parsed.Container.Actor)
	actor, ok := s.store.GetActor(parsed.Container.Actor)
	if !ok {
		return result, nil
	}
	actorByID := make(map[string]domain.Effect, len(actor.Effects))
	for _, e := range actor.Effects {
		actorByID[e.ID] = e
	}
	opts := domain.MutationOptions{KeepID: true, LinkedUpdate: true}
	var actorCreates []domain.Effect
	for _, e := range creates {
		if _, exists := actorByID[e.ID]; !exists {
			actorCreates = append(actorCreates, e)
		}
	}
	if len(actorCreates) > 0 {
		_, res, err := s.store.CreateEffects(ctx, actorID, actorCreates, opts)
		result.Merge(res)
		if err != nil {
			return result, err
		}
	}
	var actorUpdates []domain.EffectUpdate
	for _, u := range updates {
		existing, exists := actorByID[u.ID]
		if !exists {
			continue
		}
		if _, propagated := propagatedFrom(existing); !propagated {
			continue
		}
		actorUpdates = append(actorUpdates, u)
	}
	if len(actorUpdates) > 0 {
		res, err := s.store.UpdateEffects(ctx, actorID, actorUpdates, opts)
		result.Merge(res)
		if err != nil {
			return result, err
		}
	}
	var actorDeletes []string
	for _, id := range deletes {
		existing, exists := actorByID[id]
		if !exists {
			continue
		}
		// Collateral guard: an actor effect with the same id but no
		// back-reference is user-authored and must survive.
		if _, propagated := propagatedFrom(existing); !propagated {
			continue
		}
		actorDeletes = append(actorDeletes, id)
	}
	if len(actorDeletes) > 0 {
		res, err := s.store.DeleteEffects(ctx, actorID, actorDeletes, opts)
		result.Merge(res)
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// FanOutEffectChange propagates a single base-side effect mutation to one
// derivation: creates preserve the base id and rewrite the origin, updates
// reapply the same change document, deletes remove only propagated copies.
func (s *EmbeddedSyncer) FanOutEffectChange(ctx context.Context, action domain.Action, baseID, derivationID domain.Identity, effect domain.Effect, changes map[string]any) (domain.Result, error) {
	var result domain.Result
	derived, ok := s.store.ResolveItem(derivationID)
	if !ok {
		return result, domain.NotFoundError{Entity: domain.EntityItem, Identity: derivationID}
	}
	var existing *domain.Effect
	for i := range derived.Effects {
		if derived.Effects[i].ID == effect.ID {
			existing = &derived.Effects[i]
			break
		}
	}
	opts := domain.MutationOptions{KeepID: true, LinkedUpdate: true}
	switch action {
	case domain.ActionCreate:
		if existing != nil {
			return result, nil
		}
		clone := cloneForDerivation(effect, baseID, derivationID)
		_, res, err := s.store.CreateEffects(ctx, derivationID, []domain.Effect{clone}, opts)
		result.Merge(res)
		if s.settings.EnforceActorEffects() && err == nil {
			mres, merr := s.mirrorToActor(ctx, derivationID, []domain.Effect{clone}, nil, nil)
			result.Merge(mres)
			if merr != nil {
				return result, merr
			}
		}
		return result, err
	case domain.ActionUpdate:
		if existing == nil {
			return result, nil
		}
		if _, propagated := propagatedFrom(*existing); !propagated {
			return result, nil
		}
		upd := []domain.EffectUpdate{{ID: effect.ID, Changes: pruneEffectChanges(changes)}}
		res, err := s.store.UpdateEffects(ctx, derivationID, upd, opts)
		result.Merge(res)
		if s.settings.EnforceActorEffects() && err == nil {
			mres, merr := s.mirrorToActor(ctx, derivationID, nil, upd, nil)
			result.Merge(mres)
			if merr != nil {
				return result, merr
			}
		}
		return result, err
	case domain.ActionDelete:
		if existing == nil {
			return result, nil
		}
		if _, propagated := propagatedFrom(*existing); !propagated {
			return result, nil
		}
		res, err := s.store.DeleteEffects(ctx, derivationID, []string{effect.ID}, opts)
		result.Merge(res)
		if s.settings.EnforceActorEffects() && err == nil {
			mres, merr := s.mirrorToActor(ctx, derivationID, nil, nil, []string{effect.ID})
			result.Merge(mres)
			if merr != nil {
				return result, merr
			}
		}
		return result, err
	}
	return result, nil
}

// pruneEffectChanges strips derivation-kept paths from a fanned-out effect
// change document so the base's origin or flag state never overwrites the
// derivation's rewritten values.
func pruneEffectChanges(changes map[string]any) map[string]any {
	pruned := document.Expand(document.Clone(changes))
	for _, p := range effectKeepPaths {
		document.DeleteProperty(pruned, p)
	}
	return pruned
}
