package linking

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"linkcore/internal/config"
	"linkcore/pkg/document"
	"linkcore/pkg/domain"
)

// Observer receives timing signals for propagation fan-outs and bulk
// operations.
type Observer interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// NopObserver discards all signals.
type NopObserver struct{}

// Observe implements Observer.
func (NopObserver) Observe(context.Context, string, bool, time.Duration) {}

// Reconciler drives mutation interception: it decides whether an incoming
// write is a propagation write (apply verbatim), a user write on a
// derivation (veto and replace with a base-aligned merge), or a base write
// (fan out to every derivation post-commit), and keeps the registry and
// embedded collections consistent across create/update/delete.
type Reconciler struct {
	store    domain.Store
	registry *Registry
	keep     *KeepListResolver
	embedded *EmbeddedSyncer
	settings *config.Settings
	logger   *slog.Logger
	observer Observer
	userFn   func() domain.User
}

// NewReconciler wires a reconciler over the store and registers its hook
// handlers. The acting user defaults to a privileged one until a provider
// is set.
func NewReconciler(store domain.Store, settings *config.Settings, logger *slog.Logger) (*Reconciler, error) {
	keep, err := NewKeepListResolver(settings)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		store:    store,
		registry: NewRegistry(),
		keep:     keep,
		embedded: NewEmbeddedSyncer(store, settings),
		settings: settings,
		logger:   logger,
		observer: NopObserver{},
		userFn:   func() domain.User { return domain.User{Name: "system", GM: true} },
	}
	r.bind()
	return r, nil
}

// SetObserver installs a metrics observer.
func (r *Reconciler) SetObserver(o Observer) {
	if o != nil {
		r.observer = o
	}
}

// SetUserProvider installs the acting-user source used for keep-list
// authorization.
func (r *Reconciler) SetUserProvider(fn func() domain.User) {
	if fn != nil {
		r.userFn = fn
	}
}

// Registry exposes the memoization registry.
func (r *Reconciler) Registry() *Registry { return r.registry }

// KeepResolver exposes the keep-list resolver.
func (r *Reconciler) KeepResolver() *KeepListResolver { return r.keep }

// Syncer exposes the embedded-collection synchronizer.
func (r *Reconciler) Syncer() *EmbeddedSyncer { return r.embedded }

func (r *Reconciler) bind() {
	hooks := r.store.Hooks()
	hooks.OnPreCreateItem(r.preCreateItem)
	hooks.OnPostCreateItem(r.postCreateItem)
	hooks.OnPreUpdateItem(r.preUpdateItem)
	hooks.OnPostUpdateItem(r.postUpdateItem)
	hooks.OnPreDeleteItem(r.preDeleteItem)
	hooks.OnPreEffect(r.preEffect)
}

// preCreateItem computes link flags at creation: a record instantiated from
// a compendium source auto-links to it; a plain new record stays unlinked.
// Records created inside compendiums are bases and never auto-link.
func (r *Reconciler) preCreateItem(_ context.Context, ev *domain.ItemCreateEvent) error {
	if ev.Options.LinkedUpdate {
		return nil
	}
	if ev.Container.Kind == domain.ContainerCompendium {
		return nil
	}
	flags := ev.Item.LinkFlags()
	if flags.IsLinked && flags.BaseItem != nil {
		return nil
	}
	src, ok := ev.Item.SourceID()
	if !ok || !src.InCompendium() {
		return nil
	}
	if _, resolvable := ev.View.FindItem(src); !resolvable {
		return nil
	}
	flags.IsLinked = true
	flags.BaseItem = &src
	if ev.Item.Flags == nil {
		ev.Item.Flags = map[string]map[string]any{}
	}
	ev.Item.Flags[domain.FlagScope] = flags.Encode()
	return nil
}

// postCreateItem registers fresh derivations and schedules their first full
// resync against the base.
func (r *Reconciler) postCreateItem(_ context.Context, ev *domain.ItemCreatedEvent) {
	if ev.Options.LinkedUpdate {
		return
	}
	flags := ev.Item.LinkFlags()
	if !flags.IsLinked || flags.BaseItem == nil {
		return
	}
	r.registry.Register(ev.Identity, *flags.BaseItem)
	id := ev.Identity
	ev.Queue.Defer(func(ctx context.Context) (domain.Result, error) {
		return r.resyncDerivation(ctx, id)
	})
}

// preUpdateItem is the state machine over a pending write.
func (r *Reconciler) preUpdateItem(_ context.Context, ev *domain.ItemUpdateEvent) error {
	if ev.Options.LinkedUpdate {
		return nil
	}
	chg := document.Expand(ev.Changes)
	cur := ev.Item.LinkFlags()
	incoming, touchesFlags := flagChanges(chg)
	if touchesFlags {
		r.pruneStaleFlagKeys(ev.Item, incoming)
		ev.Changes = chg
	}
	next := nextFlags(cur, incoming)

	// Unlink: allowed unconditionally; the resolved base view is folded into
	// the write so the record keeps its inherited values as own values.
	if touchesFlags && cur.IsLinked && !next.IsLinked {
		r.materializeUnlink(ev, chg, cur)
		r.registry.Unregister(ev.Identity)
		return nil
	}

	// Re-link or base change: the flag write passes; a full resync against
	// the new base runs after commit.
	if touchesFlags && next.IsLinked && next.BaseItem != nil &&
		(!cur.IsLinked || cur.BaseItem == nil || *cur.BaseItem != *next.BaseItem) {
		r.registry.Register(ev.Identity, *next.BaseItem)
		id := ev.Identity
		ev.Queue.Defer(func(ctx context.Context) (domain.Result, error) {
			return r.resyncDerivation(ctx, id)
		})
		return nil
	}

	// User write on a derivation: writes confined to the keep list pass
	// untouched; anything else is vetoed and replaced by a merge of the
	// user's changes with the base alignment. Broken links fail open.
	if cur.IsLinked {
		if cur.BaseItem == nil {
			return nil
		}
		if _, ok := ev.View.FindItem(*cur.BaseItem); !ok {
			return nil
		}
		keep := r.keep.KeepList(ev.Item, r.userFn(), KeepListOptions{KeepEmbedded: true})
		if withinKeepList(chg, keep) {
			return nil
		}
		id := ev.Identity
		userChanges := document.Clone(chg)
		ev.Queue.Defer(func(ctx context.Context) (domain.Result, error) {
			return r.replaceDerivationWrite(ctx, id, userChanges)
		})
		return domain.ErrVetoed
	}
	return nil
}

// postUpdateItem keeps registry bookkeeping current and fans a base write
// out to its derivations after commit.
func (r *Reconciler) postUpdateItem(_ context.Context, ev *domain.ItemUpdatedEvent) {
	if ev.Options.LinkedUpdate {
		return
	}
	flags := ev.After.LinkFlags()
	if flags.IsLinked && flags.BaseItem != nil {
		r.registry.Register(ev.Identity, *flags.BaseItem)
	} else {
		r.registry.Unregister(ev.Identity)
	}
	id := ev.Identity
	ev.Queue.Defer(func(ctx context.Context) (domain.Result, error) {
		return r.propagateBaseWrite(ctx, id)
	})
}

// preDeleteItem drops registry state. Deleting a base never cascades; its
// derivations degrade to broken links.
func (r *Reconciler) preDeleteItem(_ context.Context, ev *domain.ItemDeleteEvent) error {
	if ev.Options.LinkedUpdate {
		return nil
	}
	r.registry.Unregister(ev.Identity)
	return nil
}

// preEffect fans a user-authored effect mutation on a base record out to
// every derivation after the triggering mutation commits.
func (r *Reconciler) preEffect(_ context.Context, ev *domain.EffectEvent) error {
	if ev.Options.LinkedUpdate {
		return nil
	}
	parsed, err := ev.Parent.Parse()
	if err != nil || parsed.ActorOnly {
		return nil
	}
	if ev.Action == domain.ActionCreate && (ev.Effect.ID == "" || !ev.Options.KeepID) {
		// Fan-out correlates base and derived copies by effect id, so the
		// id must be fixed before the store mints its own.
		ev.Effect.ID = uuid.NewString()
		ev.Options.KeepID = true
	}
	parent := ev.Parent
	action := ev.Action
	effect := ev.Effect.Clone()
	changes := document.Clone(ev.Changes)
	ev.Queue.Defer(func(ctx context.Context) (domain.Result, error) {
		return r.fanOutEffect(ctx, action, parent, effect, changes)
	})
	return nil
}

func (r *Reconciler) fanOutEffect(ctx context.Context, action domain.Action, base domain.Identity, effect domain.Effect, changes map[string]any) (domain.Result, error) {
	var result domain.Result
	derivations := r.derivationsOf(ctx, base)
	for _, d := range derivations {
		res, err := r.embedded.FanOutEffectChange(ctx, action, base, d.Identity, effect, changes)
		result.Merge(res)
		if err != nil {
			r.logger.Warn("effect fan-out failed",
				"base", base, "derivation", d.Identity, "action", action, "error", err)
			result.Violations = append(result.Violations, domain.Violation{
				Rule:     "effect-fan-out",
				Severity: domain.SeverityWarn,
				Message:  err.Error(),
				Entity:   domain.EntityEffect,
				Identity: d.Identity,
			})
		}
	}
	return result, nil
}

func (r *Reconciler) derivationsOf(ctx context.Context, base domain.Identity) []Derivation {
	var out []Derivation
	_ = r.store.View(ctx, func(view domain.TransactionView) error {
		out = FindDerived(view)[base]
		return nil
	})
	return out
}

// resyncDerivation brings one derivation fully in line with its base:
// property alignment plus embedded-collection sync. A broken link is a
// no-op.
func (r *Reconciler) resyncDerivation(ctx context.Context, id domain.Identity) (domain.Result, error) {
	var result domain.Result
	derived, ok := r.store.ResolveItem(id)
	if !ok {
		return result, nil
	}
	flags := derived.LinkFlags()
	if !flags.IsLinked || flags.BaseItem == nil {
		return result, nil
	}
	base, ok := r.store.ResolveItem(*flags.BaseItem)
	if !ok {
		r.logger.Debug("resync skipped, broken link", "derivation", id, "base", *flags.BaseItem)
		return result, nil
	}
	keep := r.keep.KeepList(derived, r.userFn(), KeepListOptions{KeepEmbedded: true})
	changes := ChangesFor(derived.SourceObject(), base.SourceObject(), keep)
	if len(changes) > 0 {
		_, res, err := r.store.UpdateItem(ctx, id, changes, domain.MutationOptions{LinkedUpdate: true})
		result.Merge(res)
		if err != nil {
			return result, err
		}
	}
	derived, _ = r.store.ResolveItem(id)
	res, err := r.embedded.SyncEffects(ctx, id, *flags.BaseItem, derived, base)
	result.Merge(res)
	return result, err
}

// replaceDerivationWrite runs the replacement sequence for a vetoed state-4
// write: the user's original changes are applied together with the delta
// that snaps inherited fields back to the base, so concurrent keep-field
// edits survive while linked fields cannot drift.
func (r *Reconciler) replaceDerivationWrite(ctx context.Context, id domain.Identity, userChanges map[string]any) (domain.Result, error) {
	started := time.Now()
	var result domain.Result
	derived, ok := r.store.ResolveItem(id)
	if !ok {
		return result, nil
	}
	flags := derived.LinkFlags()
	combined := document.Clone(userChanges)
	if flags.IsLinked && flags.BaseItem != nil {
		if base, resolved := r.store.ResolveItem(*flags.BaseItem); resolved {
			keep := r.keep.KeepList(derived, r.userFn(), KeepListOptions{KeepEmbedded: true})
			afterUser := domain.ApplyItemChange(derived, userChanges)
			alignment := ChangesFor(afterUser.SourceObject(), base.SourceObject(), keep)
			mergeChangeDocs(combined, alignment)
		}
	}
	_, res, err := r.store.UpdateItem(ctx, id, combined, domain.MutationOptions{LinkedUpdate: true})
	result.Merge(res)
	if err != nil {
		r.observer.Observe(ctx, "derivation_replace", false, time.Since(started))
		return result, err
	}
	if flags.IsLinked && flags.BaseItem != nil {
		if base, resolved := r.store.ResolveItem(*flags.BaseItem); resolved {
			fresh, _ := r.store.ResolveItem(id)
			sres, serr := r.embedded.SyncEffects(ctx, id, *flags.BaseItem, fresh, base)
			result.Merge(sres)
			if serr != nil {
				r.observer.Observe(ctx, "derivation_replace", false, time.Since(started))
				return result, serr
			}
		}
	}
	r.observer.Observe(ctx, "derivation_replace", true, time.Since(started))
	return result, nil
}

// propagateBaseWrite fans a committed base write out to every derivation.
// Failures are per-derivation: logged, surfaced as warnings, and the loop
// continues.
func (r *Reconciler) propagateBaseWrite(ctx context.Context, base domain.Identity) (domain.Result, error) {
	var result domain.Result
	derivations := r.derivationsOf(ctx, base)
	if len(derivations) == 0 {
		return result, nil
	}
	started := time.Now()
	baseItem, ok := r.store.ResolveItem(base)
	if !ok {
		return result, nil
	}
	failed := 0
	for _, d := range derivations {
		keep := r.keep.KeepList(d.Item, r.userFn(), KeepListOptions{KeepEmbedded: true})
		changes := ChangesFor(d.Item.SourceObject(), baseItem.SourceObject(), keep)
		if len(changes) > 0 {
			if _, res, err := r.store.UpdateItem(ctx, d.Identity, changes, domain.MutationOptions{LinkedUpdate: true}); err != nil {
				result.Merge(res)
				failed++
				r.logger.Warn("propagation failed", "base", base, "derivation", d.Identity, "error", err)
				result.Violations = append(result.Violations, domain.Violation{
					Rule:     "propagation",
					Severity: domain.SeverityWarn,
					Message:  err.Error(),
					Entity:   domain.EntityItem,
					Identity: d.Identity,
				})
				continue
			} else {
				result.Merge(res)
			}
		}
		fresh, _ := r.store.ResolveItem(d.Identity)
		sres, serr := r.embedded.SyncEffects(ctx, d.Identity, base, fresh, baseItem)
		result.Merge(sres)
		if serr != nil {
			failed++
			r.logger.Warn("embedded sync failed", "base", base, "derivation", d.Identity, "error", serr)
			result.Violations = append(result.Violations, domain.Violation{
				Rule:     "embedded-sync",
				Severity: domain.SeverityWarn,
				Message:  serr.Error(),
				Entity:   domain.EntityItem,
				Identity: d.Identity,
			})
		}
	}
	r.observer.Observe(ctx, "base_propagation", failed == 0, time.Since(started))
	r.logger.Debug("base write propagated", "base", base, "derivations", len(derivations), "failed", failed)
	return result, nil
}

// materializeUnlink folds the resolved base view into the pending unlink
// write so inherited values become own values instead of reverting.
func (r *Reconciler) materializeUnlink(ev *domain.ItemUpdateEvent, chg map[string]any, cur domain.LinkFlags) {
	if cur.BaseItem == nil {
		return
	}
	base, ok := ev.View.FindItem(*cur.BaseItem)
	if !ok {
		return
	}
	keep := r.keep.KeepList(ev.Item, r.userFn(), KeepListOptions{KeepEmbedded: true})
	afterUser := domain.ApplyItemChange(ev.Item, chg)
	materialized := ChangesFor(afterUser.SourceObject(), base.SourceObject(), keep)
	// User-requested changes win over materialized base values.
	mergeChangeDocs(materialized, chg)
	ev.Changes = materialized
}

// pruneStaleFlagKeys drops unknown flag sub-paths from a pending write when
// they are absent on the live record, so stale cached flag state cannot be
// resurrected.
func (r *Reconciler) pruneStaleFlagKeys(item domain.Item, incoming map[string]any) {
	known := map[string]struct{}{
		"isLinked":               {},
		"baseItem":               {},
		"overrideOwnerUser":      {},
		"linkPropertyExceptions": {},
	}
	live := item.Flags[domain.FlagScope]
	for k := range incoming {
		key := strings.TrimPrefix(k, document.DeletionPrefix)
		if _, ok := known[key]; ok {
			continue
		}
		if _, present := live[key]; !present {
			delete(incoming, k)
		}
	}
}

// flagChanges extracts the module flag sub-document from an expanded change
// document.
func flagChanges(chg map[string]any) (map[string]any, bool) {
	flags, ok := chg["flags"].(map[string]any)
	if !ok {
		return nil, false
	}
	bag, ok := flags[domain.FlagScope].(map[string]any)
	if !ok {
		return nil, false
	}
	return bag, true
}

// nextFlags applies a pending flag sub-document onto the current flags.
func nextFlags(cur domain.LinkFlags, incoming map[string]any) domain.LinkFlags {
	if incoming == nil {
		return cur
	}
	bag := cur.Encode()
	document.MergeObject(bag, incoming)
	return domain.DecodeLinkFlags(bag)
}

// withinKeepList reports whether every path the change document touches is
// covered by the keep list, so the write edits only per-instance state.
func withinKeepList(chg map[string]any, keep []string) bool {
	for _, path := range changePaths(chg, "") {
		if !coveredBy(path, keep) {
			return false
		}
	}
	return true
}

func changePaths(chg map[string]any, prefix string) []string {
	var out []string
	for k, v := range chg {
		key := strings.TrimPrefix(k, document.DeletionPrefix)
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if m, ok := v.(map[string]any); ok && len(m) > 0 && !strings.HasPrefix(k, document.DeletionPrefix) {
			out = append(out, changePaths(m, path)...)
			continue
		}
		out = append(out, path)
	}
	return out
}

func coveredBy(path string, keep []string) bool {
	for _, k := range keep {
		if path == k || strings.HasPrefix(path, k+".") {
			return true
		}
	}
	return false
}
