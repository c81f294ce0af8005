package linking

import (
	"sync"

	"linkcore/pkg/domain"
)

// Derivation pairs a live derived record with its address.
type Derivation struct {
	Identity domain.Identity
	Item     domain.Item
}

// FindDerived scans every record reachable from the live object graph
// (world items, actor items, and token delta items, which are the primary
// per-placement instances) and groups the linked ones by base identity.
// O(total records); invoked on user-triggered mutation events, not hot
// paths. This scan is the authoritative registry truth.
func FindDerived(view domain.TransactionView) map[domain.Identity][]Derivation {
	out := make(map[domain.Identity][]Derivation)
	ForEachItem(view, func(id domain.Identity, item domain.Item) {
		flags := item.LinkFlags()
		if !flags.IsLinked || flags.BaseItem == nil {
			return
		}
		out[*flags.BaseItem] = append(out[*flags.BaseItem], Derivation{Identity: id, Item: item})
	})
	return out
}

// ForEachItem visits every world, actor, and token-delta item with its
// address. Compendium contents are excluded: they are bases, never
// derivations.
func ForEachItem(view domain.TransactionView, fn func(domain.Identity, domain.Item)) {
	for _, item := range view.ListWorldItems() {
		fn(domain.WorldContainer().ItemIdentity(item.ID), item)
	}
	for _, actor := range view.ListActors() {
		c := domain.ActorContainer(actor.ID)
		for _, item := range actor.Items {
			fn(c.ItemIdentity(item.ID), item)
		}
	}
	for _, scene := range view.ListScenes() {
		for _, token := range scene.Tokens {
			if token.Linked {
				continue
			}
			c := domain.TokenContainer(scene.ID, token.ID)
			for _, item := range token.DeltaItems {
				fn(c.ItemIdentity(item.ID), item)
			}
		}
	}
}

// Registry is the optional memoization layer over FindDerived: a
// bidirectional base/derivation map maintained opportunistically by the
// reconciler. Never authoritative; Invalidate drops it wholesale and the
// next consumer falls back to the live scan.
type Registry struct {
	mu           sync.RWMutex
	byBase       map[domain.Identity]map[domain.Identity]struct{}
	byDerivation map[domain.Identity]domain.Identity
}

// NewRegistry returns an empty memoization registry.
func NewRegistry() *Registry {
	return &Registry{
		byBase:       make(map[domain.Identity]map[domain.Identity]struct{}),
		byDerivation: make(map[domain.Identity]domain.Identity),
	}
}

// Register records derivation as linked to base, replacing any previous
// base association so a record never appears under two bases.
func (r *Registry) Register(derivation, base domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(derivation)
	set, ok := r.byBase[base]
	if !ok {
		set = make(map[domain.Identity]struct{})
		r.byBase[base] = set
	}
	set[derivation] = struct{}{}
	r.byDerivation[derivation] = base
}

// Unregister drops the derivation from the map.
func (r *Registry) Unregister(derivation domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(derivation)
}

func (r *Registry) removeLocked(derivation domain.Identity) {
	base, ok := r.byDerivation[derivation]
	if !ok {
		return
	}
	delete(r.byDerivation, derivation)
	if set, ok := r.byBase[base]; ok {
		delete(set, derivation)
		if len(set) == 0 {
			delete(r.byBase, base)
		}
	}
}

// BaseOf returns the memoized base for a derivation.
func (r *Registry) BaseOf(derivation domain.Identity) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	base, ok := r.byDerivation[derivation]
	return base, ok
}

// DerivationsOf returns the memoized derivation set for a base.
func (r *Registry) DerivationsOf(base domain.Identity) []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Identity, 0, len(r.byBase[base]))
	for d := range r.byBase[base] {
		out = append(out, d)
	}
	return out
}

// Invalidate drops all memoized associations.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byBase = make(map[domain.Identity]map[domain.Identity]struct{})
	r.byDerivation = make(map[domain.Identity]domain.Identity)
}
