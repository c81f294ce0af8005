package domain

import "context"

// MutationOptions is the options bag accepted by every CRUD operation.
type MutationOptions struct {
	// KeepID preserves the proposed id on create instead of minting one.
	KeepID bool
	// LinkedUpdate tags the mutation as an internally generated propagation
	// write; the reconciliation hooks pass those through untouched.
	LinkedUpdate bool
	// Render asks the UI layer to refresh after the mutation. The core only
	// records it.
	Render bool
}

// Followup is a deferred operation scheduled by a hook. Followups run
// sequentially after the triggering mutation's transaction has completed
// (committed or vetoed), so a veto can still schedule a replacement write.
type Followup func(ctx context.Context) (Result, error)

// FollowupQueue collects deferred operations during hook dispatch.
type FollowupQueue struct {
	fns []Followup
}

// Defer schedules fn to run after the current mutation completes.
func (q *FollowupQueue) Defer(fn Followup) {
	if fn != nil {
		q.fns = append(q.fns, fn)
	}
}

// Drain removes and returns all scheduled followups.
func (q *FollowupQueue) Drain() []Followup {
	fns := q.fns
	q.fns = nil
	return fns
}

// ItemCreateEvent is dispatched before an item is created. Hooks may mutate
// the proposed item in place. Hooks must not call back into the store; reads
// go through View and writes through Queue.Defer.
type ItemCreateEvent struct {
	Container Container
	Item      *Item
	Options   MutationOptions
	View      TransactionView
	Queue     *FollowupQueue
	Result    *Result
}

// ItemUpdateEvent is dispatched before an item update commits. Changes is the
// pending change document; hooks may narrow or rewrite it. Returning
// ErrVetoed cancels the write.
type ItemUpdateEvent struct {
	Identity Identity
	Item     Item
	Changes  map[string]any
	Options  MutationOptions
	View     TransactionView
	Queue    *FollowupQueue
	Result   *Result
}

// ItemDeleteEvent is dispatched before an item is deleted.
type ItemDeleteEvent struct {
	Identity Identity
	Item     Item
	Options  MutationOptions
	View     TransactionView
	Queue    *FollowupQueue
	Result   *Result
}

// ItemCreatedEvent is dispatched after a create commits.
type ItemCreatedEvent struct {
	Identity Identity
	Item     Item
	Options  MutationOptions
	Queue    *FollowupQueue
	Result   *Result
}

// ItemUpdatedEvent is dispatched after an update commits.
type ItemUpdatedEvent struct {
	Identity Identity
	Before   Item
	After    Item
	Changes  map[string]any
	Options  MutationOptions
	Queue    *FollowupQueue
	Result   *Result
}

// ItemDeletedEvent is dispatched after a delete commits.
type ItemDeletedEvent struct {
	Identity Identity
	Item     Item
	Options  MutationOptions
	Queue    *FollowupQueue
	Result   *Result
}

// EffectEvent is dispatched before a mutation on an embedded effect. For
// creates Effect is the proposed sub-record (mutable); for updates Changes is
// the pending change document; for deletes both describe the current state.
type EffectEvent struct {
	Action  Action
	Parent  Identity
	Effect  *Effect
	Changes map[string]any
	Options MutationOptions
	View    TransactionView
	Queue   *FollowupQueue
	Result  *Result
}

// Hooks is the store's interception surface. The reconciliation engine
// registers handlers here instead of patching store internals. A pre-hook
// error aborts the mutation; ErrVetoed does so without surfacing a failure
// to the caller.
type Hooks struct {
	preCreateItem  []func(ctx context.Context, ev *ItemCreateEvent) error
	preUpdateItem  []func(ctx context.Context, ev *ItemUpdateEvent) error
	preDeleteItem  []func(ctx context.Context, ev *ItemDeleteEvent) error
	postCreateItem []func(ctx context.Context, ev *ItemCreatedEvent)
	postUpdateItem []func(ctx context.Context, ev *ItemUpdatedEvent)
	postDeleteItem []func(ctx context.Context, ev *ItemDeletedEvent)
	preEffect      []func(ctx context.Context, ev *EffectEvent) error
}

// NewHooks constructs an empty hook bus.
func NewHooks() *Hooks { return &Hooks{} }

// OnPreCreateItem registers a pre-create interceptor.
func (h *Hooks) OnPreCreateItem(fn func(ctx context.Context, ev *ItemCreateEvent) error) {
	h.preCreateItem = append(h.preCreateItem, fn)
}

// OnPreUpdateItem registers a pre-update interceptor.
func (h *Hooks) OnPreUpdateItem(fn func(ctx context.Context, ev *ItemUpdateEvent) error) {
	h.preUpdateItem = append(h.preUpdateItem, fn)
}

// OnPreDeleteItem registers a pre-delete interceptor.
func (h *Hooks) OnPreDeleteItem(fn func(ctx context.Context, ev *ItemDeleteEvent) error) {
	h.preDeleteItem = append(h.preDeleteItem, fn)
}

// OnPostCreateItem registers a post-create observer.
func (h *Hooks) OnPostCreateItem(fn func(ctx context.Context, ev *ItemCreatedEvent)) {
	h.postCreateItem = append(h.postCreateItem, fn)
}

// OnPostUpdateItem registers a post-update observer.
func (h *Hooks) OnPostUpdateItem(fn func(ctx context.Context, ev *ItemUpdatedEvent)) {
	h.postUpdateItem = append(h.postUpdateItem, fn)
}

// OnPostDeleteItem registers a post-delete observer.
func (h *Hooks) OnPostDeleteItem(fn func(ctx context.Context, ev *ItemDeletedEvent)) {
	h.postDeleteItem = append(h.postDeleteItem, fn)
}

// OnPreEffect registers a pre-mutation interceptor for embedded effects.
func (h *Hooks) OnPreEffect(fn func(ctx context.Context, ev *EffectEvent) error) {
	h.preEffect = append(h.preEffect, fn)
}

// PreCreateItem dispatches registered pre-create interceptors in order.
func (h *Hooks) PreCreateItem(ctx context.Context, ev *ItemCreateEvent) error {
	for _, fn := range h.preCreateItem {
		if err := fn(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// PreUpdateItem dispatches registered pre-update interceptors in order.
func (h *Hooks) PreUpdateItem(ctx context.Context, ev *ItemUpdateEvent) error {
	for _, fn := range h.preUpdateItem {
		if err := fn(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// PreDeleteItem dispatches registered pre-delete interceptors in order.
func (h *Hooks) PreDeleteItem(ctx context.Context, ev *ItemDeleteEvent) error {
	for _, fn := range h.preDeleteItem {
		if err := fn(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// PostCreateItem dispatches post-create observers.
func (h *Hooks) PostCreateItem(ctx context.Context, ev *ItemCreatedEvent) {
	for _, fn := range h.postCreateItem {
		fn(ctx, ev)
	}
}

// PostUpdateItem dispatches post-update observers.
func (h *Hooks) PostUpdateItem(ctx context.Context, ev *ItemUpdatedEvent) {
	for _, fn := range h.postUpdateItem {
		fn(ctx, ev)
	}
}

// PostDeleteItem dispatches post-delete observers.
func (h *Hooks) PostDeleteItem(ctx context.Context, ev *ItemDeletedEvent) {
	for _, fn := range h.postDeleteItem {
		fn(ctx, ev)
	}
}

// PreEffect dispatches registered effect interceptors in order.
func (h *Hooks) PreEffect(ctx context.Context, ev *EffectEvent) error {
	for _, fn := range h.preEffect {
		if err := fn(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
