package memory

import (
	"context"
	"errors"

	"linkcore/pkg/domain"
)

// drainFollowups runs scheduled followups sequentially until the queue is
// empty. Followups may schedule further followups; those run in the same
// drain. Followup failures degrade to warnings instead of failing the
// triggering operation.
func (s *Store) drainFollowups(ctx context.Context, queue *domain.FollowupQueue, result *domain.Result) {
	for {
		fns := queue.Drain()
		if len(fns) == 0 {
			return
		}
		for _, fn := range fns {
			res, err := fn(ctx)
			result.Merge(res)
			if err != nil && !errors.Is(err, domain.ErrVetoed) {
				result.Violations = append(result.Violations, domain.Violation{
					Rule:     "followup",
					Severity: domain.SeverityWarn,
					Message:  err.Error(),
				})
			}
		}
	}
}

// CreateItem creates an item in the container with full hook interception.
func (s *Store) CreateItem(ctx context.Context, c domain.Container, item domain.Item, opts domain.MutationOptions) (domain.Item, domain.Result, error) {
	queue := &domain.FollowupQueue{}
	var result domain.Result
	var created domain.Item
	vetoed := false

	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		ev := &domain.ItemCreateEvent{
			Container: c,
			Item:      &item,
			Options:   opts,
			View:      tx.Snapshot(),
			Queue:     queue,
			Result:    &result,
		}
		if err := s.hooks.PreCreateItem(ctx, ev); err != nil {
			if errors.Is(err, domain.ErrVetoed) {
				vetoed = true
			}
			return err
		}
		var err error
		created, err = tx.CreateItem(c, *ev.Item, ev.Options)
		return err
	})
	if err != nil && !vetoed {
		return domain.Item{}, result, err
	}
	if err == nil {
		s.hooks.PostCreateItem(ctx, &domain.ItemCreatedEvent{
			Identity: c.ItemIdentity(created.ID),
			Item:     created,
			Options:  opts,
			Queue:    queue,
			Result:   &result,
		})
	}
	s.drainFollowups(ctx, queue, &result)
	if vetoed {
		return domain.Item{}, result, domain.ErrVetoed
	}
	return created, result, nil
}

// UpdateItem applies a change document to the addressed item with full hook
// interception. Pre-hooks may narrow or rewrite the pending changes, veto the
// write, and schedule replacement writes that run after this one resolves.
func (s *Store) UpdateItem(ctx context.Context, id domain.Identity, changes map[string]any, opts domain.MutationOptions) (domain.Item, domain.Result, error) {
	queue := &domain.FollowupQueue{}
	var result domain.Result
	var before, after domain.Item
	var applied map[string]any
	vetoed := false

	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		current, ok := view.FindItem(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityItem, Identity: id}
		}
		before = current
		ev := &domain.ItemUpdateEvent{
			Identity: id,
			Item:     current,
			Changes:  changes,
			Options:  opts,
			View:     view,
			Queue:    queue,
			Result:   &result,
		}
		if err := s.hooks.PreUpdateItem(ctx, ev); err != nil {
			if errors.Is(err, domain.ErrVetoed) {
				vetoed = true
			}
			return err
		}
		applied = ev.Changes
		var err error
		after, err = tx.UpdateItem(id, ev.Changes, ev.Options)
		return err
	})
	if err != nil && !vetoed {
		return domain.Item{}, result, err
	}
	if err == nil {
		s.hooks.PostUpdateItem(ctx, &domain.ItemUpdatedEvent{
			Identity: id,
			Before:   before,
			After:    after,
			Changes:  applied,
			Options:  opts,
			Queue:    queue,
			Result:   &result,
		})
	}
	s.drainFollowups(ctx, queue, &result)
	if vetoed {
		return domain.Item{}, result, domain.ErrVetoed
	}
	return after, result, nil
}

// DeleteItem removes the addressed item with full hook interception.
func (s *Store) DeleteItem(ctx context.Context, id domain.Identity, opts domain.MutationOptions) (domain.Result, error) {
	queue := &domain.FollowupQueue{}
	var result domain.Result
	var deleted domain.Item
	vetoed := false

	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		current, ok := view.FindItem(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityItem, Identity: id}
		}
		deleted = current
		ev := &domain.ItemDeleteEvent{
			Identity: id,
			Item:     current,
			Options:  opts,
			View:     view,
			Queue:    queue,
			Result:   &result,
		}
		if err := s.hooks.PreDeleteItem(ctx, ev); err != nil {
			if errors.Is(err, domain.ErrVetoed) {
				vetoed = true
			}
			return err
		}
		return tx.DeleteItem(id, opts)
	})
	if err != nil && !vetoed {
		return result, err
	}
	if err == nil {
		s.hooks.PostDeleteItem(ctx, &domain.ItemDeletedEvent{
			Identity: id,
			Item:     deleted,
			Options:  opts,
			Queue:    queue,
			Result:   &result,
		})
	}
	s.drainFollowups(ctx, queue, &result)
	if vetoed {
		return result, domain.ErrVetoed
	}
	return result, nil
}

// CreateEffects creates embedded effects on the parent in one transaction.
// Individually vetoed effects are skipped; the remainder still commit.
func (s *Store) CreateEffects(ctx context.Context, parent domain.Identity, effects []domain.Effect, opts domain.MutationOptions) ([]domain.Effect, domain.Result, error) {
	queue := &domain.FollowupQueue{}
	var result domain.Result
	var created []domain.Effect

	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for i := range effects {
			effect := effects[i].Clone()
			ev := &domain.EffectEvent{
				Action:  domain.ActionCreate,
				Parent:  parent,
				Effect:  &effect,
				Options: opts,
				View:    tx.Snapshot(),
				Queue:   queue,
				Result:  &result,
			}
			if err := s.hooks.PreEffect(ctx, ev); err != nil {
				if errors.Is(err, domain.ErrVetoed) {
					continue
				}
				return err
			}
			out, err := tx.CreateEffect(parent, effect, ev.Options)
			if err != nil {
				return err
			}
			created = append(created, out)
		}
		return nil
	})
	if err != nil {
		return nil, result, err
	}
	s.drainFollowups(ctx, queue, &result)
	return created, result, nil
}

// UpdateEffects applies change documents to embedded effects in one
// transaction, skipping individually vetoed updates.
func (s *Store) UpdateEffects(ctx context.Context, parent domain.Identity, updates []domain.EffectUpdate, opts domain.MutationOptions) (domain.Result, error) {
	queue := &domain.FollowupQueue{}
	var result domain.Result

	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, upd := range updates {
			ev := &domain.EffectEvent{
				Action:  domain.ActionUpdate,
				Parent:  parent,
				Effect:  &domain.Effect{ID: upd.ID},
				Changes: upd.Changes,
				Options: opts,
				View:    tx.Snapshot(),
				Queue:   queue,
				Result:  &result,
			}
			if err := s.hooks.PreEffect(ctx, ev); err != nil {
				if errors.Is(err, domain.ErrVetoed) {
					continue
				}
				return err
			}
			if _, err := tx.UpdateEffect(parent, upd.ID, ev.Changes, ev.Options); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}
	s.drainFollowups(ctx, queue, &result)
	return result, nil
}

// DeleteEffects removes embedded effects in one transaction, skipping
// individually vetoed deletions.
func (s *Store) DeleteEffects(ctx context.Context, parent domain.Identity, ids []string, opts domain.MutationOptions) (domain.Result, error) {
	queue := &domain.FollowupQueue{}
	var result domain.Result

	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, id := range ids {
			ev := &domain.EffectEvent{
				Action:  domain.ActionDelete,
				Parent:  parent,
				Effect:  &domain.Effect{ID: id},
				Options: opts,
				View:    tx.Snapshot(),
				Queue:   queue,
				Result:  &result,
			}
			if err := s.hooks.PreEffect(ctx, ev); err != nil {
				if errors.Is(err, domain.ErrVetoed) {
					continue
				}
				return err
			}
			if err := tx.DeleteEffect(parent, id, ev.Options); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}
	s.drainFollowups(ctx, queue, &result)
	return result, nil
}

// ResolveItem looks an item up by address on committed state.
func (s *Store) ResolveItem(id domain.Identity) (domain.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, _, ok := findItemIn(&s.state, id)
	if !ok {
		return domain.Item{}, false
	}
	return item.Clone(), true
}

// ResolveItemCtx is the suspension-point resolution variant.
func (s *Store) ResolveItemCtx(ctx context.Context, id domain.Identity) (domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return domain.Item{}, err
	}
	item, ok := s.ResolveItem(id)
	if !ok {
		return domain.Item{}, domain.NotFoundError{Entity: domain.EntityItem, Identity: id}
	}
	return item, nil
}

// GetActor returns the committed actor with the given id.
func (s *Store) GetActor(id string) (domain.Actor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actor, ok := s.state.actors[id]
	if !ok {
		return domain.Actor{}, false
	}
	return cloneActor(actor), true
}

// ListActors returns all committed actors.
func (s *Store) ListActors() []domain.Actor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Actor, 0, len(s.state.actors))
	for _, actor := range s.state.actors {
		out = append(out, cloneActor(actor))
	}
	return out
}

// GetCompendium returns the committed pack with the given name.
func (s *Store) GetCompendium(pack string) (domain.Compendium, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.compendiums[pack]
	if !ok {
		return domain.Compendium{}, false
	}
	return cloneCompendium(c), true
}

// ListCompendiums returns all committed packs.
func (s *Store) ListCompendiums() []domain.Compendium {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Compendium, 0, len(s.state.compendiums))
	for _, pack := range s.state.compendiums {
		out = append(out, cloneCompendium(pack))
	}
	return out
}

// ListWorldItems returns all committed world-level items.
func (s *Store) ListWorldItems() []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Item, 0, len(s.state.items))
	for _, item := range s.state.items {
		out = append(out, item.Clone())
	}
	return out
}

// ListScenes returns all committed scenes.
func (s *Store) ListScenes() []domain.Scene {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Scene, 0, len(s.state.scenes))
	for _, scene := range s.state.scenes {
		out = append(out, cloneScene(scene))
	}
	return out
}

// ListFolders returns all committed folders.
func (s *Store) ListFolders() []domain.Folder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Folder, 0, len(s.state.folders))
	for _, folder := range s.state.folders {
		out = append(out, cloneFolder(folder))
	}
	return out
}

// GetSetting returns a committed module setting.
func (s *Store) GetSetting(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.state.settings[key]
	return val, ok
}

// PutSetting persists a module setting.
func (s *Store) PutSetting(ctx context.Context, key string, value any) error {
	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		tx.SetSetting(key, value)
		return nil
	})
	return err
}
