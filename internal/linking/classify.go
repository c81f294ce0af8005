package linking

import (
	"context"
	"fmt"

	"linkcore/pkg/domain"
)

// ItemResolver resolves an address to a live record on committed state.
type ItemResolver interface {
	ResolveItem(id domain.Identity) (domain.Item, bool)
}

// IsLinked reports a live link: the record declares one and the base
// resolves.
func IsLinked(item domain.Item, resolver ItemResolver) bool {
	flags := item.LinkFlags()
	if !flags.IsLinked || flags.BaseItem == nil {
		return false
	}
	_, ok := resolver.ResolveItem(*flags.BaseItem)
	return ok
}

// IsBrokenLink reports a declared link whose base does not resolve.
// Tolerated: propagation degrades to a no-op and the state is surfaced, not
// raised.
func IsBrokenLink(item domain.Item, resolver ItemResolver) bool {
	flags := item.LinkFlags()
	if !flags.IsLinked {
		return false
	}
	if flags.BaseItem == nil {
		return true
	}
	_, ok := resolver.ResolveItem(*flags.BaseItem)
	return !ok
}

// IsUnlinked reports a record that still remembers a base but has linking
// switched off.
func IsUnlinked(item domain.Item) bool {
	flags := item.LinkFlags()
	return !flags.IsLinked && flags.BaseItem != nil
}

// IsNotLinked reports a record with no linking state at all.
func IsNotLinked(item domain.Item) bool {
	flags := item.LinkFlags()
	return !flags.IsLinked && flags.BaseItem == nil
}

// RetrieveLinkedItem resolves the record's base, if it declares one.
func RetrieveLinkedItem(resolver ItemResolver, item domain.Item) (domain.Item, bool) {
	flags := item.LinkFlags()
	if flags.BaseItem == nil {
		return domain.Item{}, false
	}
	return resolver.ResolveItem(*flags.BaseItem)
}

// maxChainDepth bounds base-chain walks against flag cycles in host data.
const maxChainDepth = 16

// ResolveBaseIdentity canonicalizes a base reference: if ref addresses a
// record that is itself linked, the chain is walked to the ultimate base so
// stored links never point at a derivation. Unresolvable refs and cycles
// error.
func ResolveBaseIdentity(resolver ItemResolver, ref domain.Identity) (domain.Identity, error) {
	current := ref
	for depth := 0; depth < maxChainDepth; depth++ {
		item, ok := resolver.ResolveItem(current)
		if !ok {
			return "", domain.NotFoundError{Entity: domain.EntityItem, Identity: current}
		}
		flags := item.LinkFlags()
		if !flags.IsLinked || flags.BaseItem == nil {
			return current, nil
		}
		current = *flags.BaseItem
	}
	return "", fmt.Errorf("base chain from %s exceeds depth %d", ref, maxChainDepth)
}

// SetLinkedItem establishes a link from the addressed record to baseRef.
// The reference is canonicalized through ResolveBaseIdentity, and linking a
// record that is itself a base for others is rejected so no derivation
// chain can form. The flag write is a plain update; the reconciler's
// re-link transition performs the full resync.
func (r *Reconciler) SetLinkedItem(ctx context.Context, id domain.Identity, baseRef domain.Identity) (domain.Item, error) {
	if _, ok := r.store.ResolveItem(id); !ok {
		return domain.Item{}, domain.NotFoundError{Entity: domain.EntityItem, Identity: id}
	}
	base, err := ResolveBaseIdentity(r.store, baseRef)
	if err != nil {
		return domain.Item{}, err
	}
	if base == id {
		return domain.Item{}, fmt.Errorf("cannot link %s to itself", id)
	}
	var derived bool
	_ = r.store.View(ctx, func(view domain.TransactionView) error {
		_, derived = FindDerived(view)[id]
		return nil
	})
	if derived {
		return domain.Item{}, fmt.Errorf("cannot link %s: it is a base for other records", id)
	}
	changes := map[string]any{
		"flags": map[string]any{
			domain.FlagScope: map[string]any{
				"isLinked": true,
				"baseItem": string(base),
			},
		},
	}
	updated, _, err := r.store.UpdateItem(ctx, id, changes, domain.MutationOptions{})
	if err != nil {
		return domain.Item{}, err
	}
	r.registry.Register(id, base)
	return updated, nil
}
