// Package memory implements the authoritative in-memory document store: a
// mutex-guarded object graph with clone-on-write transactions, pre/post hook
// interception on item and effect mutations, and snapshot import/export for
// the durable backends.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"linkcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

type memoryState struct {
	items       map[string]domain.Item
	actors      map[string]domain.Actor
	compendiums map[string]domain.Compendium
	scenes      map[string]domain.Scene
	folders     map[string]domain.Folder
	settings    map[string]any
}

func newMemoryState() memoryState {
	return memoryState{
		items:       make(map[string]domain.Item),
		actors:      make(map[string]domain.Actor),
		compendiums: make(map[string]domain.Compendium),
		scenes:      make(map[string]domain.Scene),
		folders:     make(map[string]domain.Folder),
		settings:    make(map[string]any),
	}
}

// Snapshot is the serializable full-state form persisted by the SQL backends.
type Snapshot struct {
	Items       []domain.Item       `json:"items"`
	Actors      []domain.Actor      `json:"actors"`
	Compendiums []domain.Compendium `json:"compendiums"`
	Scenes      []domain.Scene      `json:"scenes"`
	Folders     []domain.Folder     `json:"folders"`
	Settings    map[string]any      `json:"settings"`
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	snap := Snapshot{Settings: make(map[string]any, len(state.settings))}
	for _, item := range state.items {
		snap.Items = append(snap.Items, item.Clone())
	}
	for _, actor := range state.actors {
		snap.Actors = append(snap.Actors, cloneActor(actor))
	}
	for _, pack := range state.compendiums {
		snap.Compendiums = append(snap.Compendiums, cloneCompendium(pack))
	}
	for _, scene := range state.scenes {
		snap.Scenes = append(snap.Scenes, cloneScene(scene))
	}
	for _, folder := range state.folders {
		snap.Folders = append(snap.Folders, cloneFolder(folder))
	}
	for k, v := range state.settings {
		snap.Settings[k] = v
	}
	return snap
}

func memoryStateFromSnapshot(snap Snapshot) memoryState {
	state := newMemoryState()
	for _, item := range snap.Items {
		state.items[item.ID] = item.Clone()
	}
	for _, actor := range snap.Actors {
		state.actors[actor.ID] = cloneActor(actor)
	}
	for _, pack := range snap.Compendiums {
		state.compendiums[pack.Name] = cloneCompendium(pack)
	}
	for _, scene := range snap.Scenes {
		state.scenes[scene.ID] = cloneScene(scene)
	}
	for _, folder := range snap.Folders {
		state.folders[folder.ID] = cloneFolder(folder)
	}
	for k, v := range snap.Settings {
		state.settings[k] = v
	}
	return state
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.items {
		cloned.items[k] = v.Clone()
	}
	for k, v := range s.actors {
		cloned.actors[k] = cloneActor(v)
	}
	for k, v := range s.compendiums {
		cloned.compendiums[k] = cloneCompendium(v)
	}
	for k, v := range s.scenes {
		cloned.scenes[k] = cloneScene(v)
	}
	for k, v := range s.folders {
		cloned.folders[k] = cloneFolder(v)
	}
	for k, v := range s.settings {
		cloned.settings[k] = v
	}
	return cloned
}

func cloneActor(a domain.Actor) domain.Actor {
	cp := a
	if a.Folder != nil {
		folder := *a.Folder
		cp.Folder = &folder
	}
	if a.Items != nil {
		cp.Items = make([]domain.Item, len(a.Items))
		for i, item := range a.Items {
			cp.Items[i] = item.Clone()
		}
	}
	if a.Effects != nil {
		cp.Effects = make([]domain.Effect, len(a.Effects))
		for i, e := range a.Effects {
			cp.Effects[i] = e.Clone()
		}
	}
	return cp
}

func cloneCompendium(c domain.Compendium) domain.Compendium {
	cp := c
	cp.Folders = append([]string(nil), c.Folders...)
	if c.Items != nil {
		cp.Items = make([]domain.Item, len(c.Items))
		for i, item := range c.Items {
			cp.Items[i] = item.Clone()
		}
	}
	return cp
}

func cloneScene(s domain.Scene) domain.Scene {
	cp := s
	if s.Tokens != nil {
		cp.Tokens = make([]domain.Token, len(s.Tokens))
		for i, t := range s.Tokens {
			tc := t
			if t.DeltaItems != nil {
				tc.DeltaItems = make([]domain.Item, len(t.DeltaItems))
				for j, item := range t.DeltaItems {
					tc.DeltaItems[j] = item.Clone()
				}
			}
			cp.Tokens[i] = tc
		}
	}
	return cp
}

func cloneFolder(f domain.Folder) domain.Folder {
	cp := f
	if f.Parent != nil {
		parent := *f.Parent
		cp.Parent = &parent
	}
	return cp
}

// Store is the in-memory document store.
type Store struct {
	mu      sync.RWMutex
	state   memoryState
	hooks   *domain.Hooks
	nowFn   func() time.Time
	persist func(Snapshot) error
}

// NewStore constructs an empty in-memory store with the provided hook bus.
func NewStore(hooks *domain.Hooks) *Store {
	if hooks == nil {
		hooks = domain.NewHooks()
	}
	return &Store{
		state: newMemoryState(),
		hooks: hooks,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func newID() string {
	return uuid.NewString()
}

// Hooks exposes the interception surface for engine registration.
func (s *Store) Hooks() *domain.Hooks {
	return s.hooks
}

// NowFunc returns the time provider used by the store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider, for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// SetPersistFn installs a callback invoked with the committed state after
// every successful transaction. The durable backends use it to snapshot; a
// persist failure surfaces as the transaction error after the in-memory
// commit.
func (s *Store) SetPersistFn(fn func(Snapshot) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist = fn
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// Close releases nothing for the in-memory store. It exists so the store
// satisfies domain.PersistentStore alongside the durable backends.
func (s *Store) Close() error { return nil }

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snap)
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []domain.Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) domain.TransactionView {
	return transactionView{state: state}
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The copy is committed only when fn returns nil.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	s.state = tx.state
	if s.persist != nil {
		if err := s.persist(snapshotFromMemoryState(s.state)); err != nil {
			return domain.Result{}, err
		}
	}
	return domain.Result{}, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() domain.TransactionView {
	return newTransactionView(&tx.state)
}

// state accessors shared by transaction and view ----------------------------

func findItemIn(state *memoryState, id domain.Identity) (domain.Item, domain.ParsedIdentity, bool) {
	parsed, err := id.Parse()
	if err != nil || parsed.ActorOnly {
		return domain.Item{}, parsed, false
	}
	switch parsed.Container.Kind {
	case domain.ContainerWorld:
		item, ok := state.items[parsed.ItemID]
		return item, parsed, ok
	case domain.ContainerActor:
		actor, ok := state.actors[parsed.Container.Actor]
		if !ok {
			return domain.Item{}, parsed, false
		}
		for _, item := range actor.Items {
			if item.ID == parsed.ItemID {
				return item, parsed, true
			}
		}
	case domain.ContainerCompendium:
		pack, ok := state.compendiums[parsed.Container.Pack]
		if !ok {
			return domain.Item{}, parsed, false
		}
		for _, item := range pack.Items {
			if item.ID == parsed.ItemID {
				return item, parsed, true
			}
		}
	case domain.ContainerToken:
		scene, ok := state.scenes[parsed.Container.Scene]
		if !ok {
			return domain.Item{}, parsed, false
		}
		for _, token := range scene.Tokens {
			if token.ID != parsed.Container.Token {
				continue
			}
			for _, item := range token.DeltaItems {
				if item.ID == parsed.ItemID {
					return item, parsed, true
				}
			}
		}
	}
	return domain.Item{}, parsed, false
}

func storeItemIn(state *memoryState, parsed domain.ParsedIdentity, item domain.Item) error {
	switch parsed.Container.Kind {
	case domain.ContainerWorld:
		state.items[item.ID] = item
		return nil
	case domain.ContainerActor:
		actor, ok := state.actors[parsed.Container.Actor]
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityActor, Identity: domain.ActorIdentity(parsed.Container.Actor)}
		}
		for i := range actor.Items {
			if actor.Items[i].ID == item.ID {
				actor.Items[i] = item
				state.actors[actor.ID] = actor
				return nil
			}
		}
		actor.Items = append(actor.Items, item)
		state.actors[actor.ID] = actor
		return nil
	case domain.ContainerCompendium:
		pack, ok := state.compendiums[parsed.Container.Pack]
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityCompendium, Identity: domain.Identity("Compendium." + parsed.Container.Pack)}
		}
		for i := range pack.Items {
			if pack.Items[i].ID == item.ID {
				pack.Items[i] = item
				state.compendiums[pack.Name] = pack
				return nil
			}
		}
		pack.Items = append(pack.Items, item)
		state.compendiums[pack.Name] = pack
		return nil
	case domain.ContainerToken:
		scene, ok := state.scenes[parsed.Container.Scene]
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityScene, Identity: domain.Identity("Scene." + parsed.Container.Scene)}
		}
		for ti := range scene.Tokens {
			if scene.Tokens[ti].ID != parsed.Container.Token {
				continue
			}
			token := &scene.Tokens[ti]
			for i := range token.DeltaItems {
				if token.DeltaItems[i].ID == item.ID {
					token.DeltaItems[i] = item
					state.scenes[scene.ID] = scene
					return nil
				}
			}
			token.DeltaItems = append(token.DeltaItems, item)
			state.scenes[scene.ID] = scene
			return nil
		}
		return domain.NotFoundError{Entity: domain.EntityScene, Identity: domain.Identity("Scene." + parsed.Container.Scene + ".Token." + parsed.Container.Token)}
	}
	return fmt.Errorf("unsupported container kind %q", parsed.Container.Kind)
}

func removeItemIn(state *memoryState, parsed domain.ParsedIdentity) bool {
	switch parsed.Container.Kind {
	case domain.ContainerWorld:
		if _, ok := state.items[parsed.ItemID]; !ok {
			return false
		}
		delete(state.items, parsed.ItemID)
		return true
	case domain.ContainerActor:
		actor, ok := state.actors[parsed.Container.Actor]
		if !ok {
			return false
		}
		for i := range actor.Items {
			if actor.Items[i].ID == parsed.ItemID {
				actor.Items = append(actor.Items[:i], actor.Items[i+1:]...)
				state.actors[actor.ID] = actor
				return true
			}
		}
	case domain.ContainerCompendium:
		pack, ok := state.compendiums[parsed.Container.Pack]
		if !ok {
			return false
		}
		for i := range pack.Items {
			if pack.Items[i].ID == parsed.ItemID {
				pack.Items = append(pack.Items[:i], pack.Items[i+1:]...)
				state.compendiums[pack.Name] = pack
				return true
			}
		}
	case domain.ContainerToken:
		scene, ok := state.scenes[parsed.Container.Scene]
		if !ok {
			return false
		}
		for ti := range scene.Tokens {
			if scene.Tokens[ti].ID != parsed.Container.Token {
				continue
			}
			token := &scene.Tokens[ti]
			for i := range token.DeltaItems {
				if token.DeltaItems[i].ID == parsed.ItemID {
					token.DeltaItems = append(token.DeltaItems[:i], token.DeltaItems[i+1:]...)
					state.scenes[scene.ID] = scene
					return true
				}
			}
		}
	}
	return false
}

// view methods --------------------------------------------------------------

func (v transactionView) FindItem(id domain.Identity) (domain.Item, bool) {
	item, _, ok := findItemIn(v.state, id)
	if !ok {
		return domain.Item{}, false
	}
	return item.Clone(), true
}

func (v transactionView) FindActor(id string) (domain.Actor, bool) {
	actor, ok := v.state.actors[id]
	if !ok {
		return domain.Actor{}, false
	}
	return cloneActor(actor), true
}

func (v transactionView) FindCompendium(pack string) (domain.Compendium, bool) {
	c, ok := v.state.compendiums[pack]
	if !ok {
		return domain.Compendium{}, false
	}
	return cloneCompendium(c), true
}

func (v transactionView) FindFolder(id string) (domain.Folder, bool) {
	f, ok := v.state.folders[id]
	if !ok {
		return domain.Folder{}, false
	}
	return cloneFolder(f), true
}

func (v transactionView) ListWorldItems() []domain.Item {
	out := make([]domain.Item, 0, len(v.state.items))
	for _, item := range v.state.items {
		out = append(out, item.Clone())
	}
	return out
}

func (v transactionView) ListActors() []domain.Actor {
	out := make([]domain.Actor, 0, len(v.state.actors))
	for _, actor := range v.state.actors {
		out = append(out, cloneActor(actor))
	}
	return out
}

func (v transactionView) ListCompendiums() []domain.Compendium {
	out := make([]domain.Compendium, 0, len(v.state.compendiums))
	for _, pack := range v.state.compendiums {
		out = append(out, cloneCompendium(pack))
	}
	return out
}

func (v transactionView) ListScenes() []domain.Scene {
	out := make([]domain.Scene, 0, len(v.state.scenes))
	for _, scene := range v.state.scenes {
		out = append(out, cloneScene(scene))
	}
	return out
}

func (v transactionView) ListFolders() []domain.Folder {
	out := make([]domain.Folder, 0, len(v.state.folders))
	for _, folder := range v.state.folders {
		out = append(out, cloneFolder(folder))
	}
	return out
}

func (v transactionView) Setting(key string) (any, bool) {
	val, ok := v.state.settings[key]
	return val, ok
}

// transaction mutations ------------------------------------------------------

// CreateItem stores a new item inside the container. A fresh id is minted
// unless KeepID is set and the proposed item carries one.
func (tx *transaction) CreateItem(c domain.Container, item domain.Item, opts domain.MutationOptions) (domain.Item, error) {
	if item.ID == "" || !opts.KeepID {
		item.ID = newID()
	}
	identity := c.ItemIdentity(item.ID)
	if _, _, exists := findItemIn(&tx.state, identity); exists {
		return domain.Item{}, fmt.Errorf("item %q already exists", identity)
	}
	item.CreatedAt = tx.now
	item.UpdatedAt = tx.now
	if item.System == nil {
		item.System = map[string]any{}
	}
	parsed, err := identity.Parse()
	if err != nil {
		return domain.Item{}, err
	}
	if err := storeItemIn(&tx.state, parsed, item.Clone()); err != nil {
		return domain.Item{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityItem, Action: domain.ActionCreate, Identity: identity, After: item.Clone()})
	return item.Clone(), nil
}

// UpdateItem merges a change document onto the addressed item.
func (tx *transaction) UpdateItem(id domain.Identity, changes map[string]any, opts domain.MutationOptions) (domain.Item, error) {
	current, parsed, ok := findItemIn(&tx.state, id)
	if !ok {
		return domain.Item{}, domain.NotFoundError{Entity: domain.EntityItem, Identity: id}
	}
	before := current.Clone()
	updated := domain.ApplyItemChange(current, changes)
	updated.UpdatedAt = tx.now
	if err := storeItemIn(&tx.state, parsed, updated.Clone()); err != nil {
		return domain.Item{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityItem, Action: domain.ActionUpdate, Identity: id, Before: before, After: updated.Clone()})
	return updated.Clone(), nil
}

// DeleteItem removes the addressed item.
func (tx *transaction) DeleteItem(id domain.Identity, _ domain.MutationOptions) error {
	current, parsed, ok := findItemIn(&tx.state, id)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityItem, Identity: id}
	}
	removeItemIn(&tx.state, parsed)
	tx.recordChange(domain.Change{Entity: domain.EntityItem, Action: domain.ActionDelete, Identity: id, Before: current.Clone()})
	return nil
}

func (tx *transaction) effectParent(parent domain.Identity) (*[]domain.Effect, func() error, error) {
	parsed, err := parent.Parse()
	if err != nil {
		return nil, nil, err
	}
	if parsed.ActorOnly {
		actor, ok := tx.state.actors[parsed.Container.Actor]
		if !ok {
			return nil, nil, domain.NotFoundError{Entity: domain.EntityActor, Identity: parent}
		}
		store := func() error {
			tx.state.actors[actor.ID] = actor
			return nil
		}
		return &actor.Effects, store, nil
	}
	item, itemParsed, ok := findItemIn(&tx.state, parent)
	if !ok {
		return nil, nil, domain.NotFoundError{Entity: domain.EntityItem, Identity: parent}
	}
	store := func() error {
		item.UpdatedAt = tx.now
		return storeItemIn(&tx.state, itemParsed, item)
	}
	return &item.Effects, store, nil
}

// CreateEffect appends an effect to the parent's embedded collection.
func (tx *transaction) CreateEffect(parent domain.Identity, effect domain.Effect, opts domain.MutationOptions) (domain.Effect, error) {
	effects, commit, err := tx.effectParent(parent)
	if err != nil {
		return domain.Effect{}, err
	}
	if effect.ID == "" || !opts.KeepID {
		effect.ID = newID()
	}
	for _, e := range *effects {
		if e.ID == effect.ID {
			return domain.Effect{}, fmt.Errorf("effect %q already exists on %s", effect.ID, parent)
		}
	}
	*effects = append(*effects, effect.Clone())
	if err := commit(); err != nil {
		return domain.Effect{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityEffect, Action: domain.ActionCreate, Identity: parent, After: effect.Clone()})
	return effect.Clone(), nil
}

// UpdateEffect merges a change document onto an embedded effect.
func (tx *transaction) UpdateEffect(parent domain.Identity, effectID string, changes map[string]any, _ domain.MutationOptions) (domain.Effect, error) {
	effects, commit, err := tx.effectParent(parent)
	if err != nil {
		return domain.Effect{}, err
	}
	for i := range *effects {
		if (*effects)[i].ID != effectID {
			continue
		}
		before := (*effects)[i].Clone()
		updated := domain.ApplyEffectChange((*effects)[i], changes)
		(*effects)[i] = updated.Clone()
		if err := commit(); err != nil {
			return domain.Effect{}, err
		}
		tx.recordChange(domain.Change{Entity: domain.EntityEffect, Action: domain.ActionUpdate, Identity: parent, Before: before, After: updated.Clone()})
		return updated, nil
	}
	return domain.Effect{}, domain.NotFoundError{Entity: domain.EntityEffect, Identity: parent}
}

// DeleteEffect removes an embedded effect.
func (tx *transaction) DeleteEffect(parent domain.Identity, effectID string, _ domain.MutationOptions) error {
	effects, commit, err := tx.effectParent(parent)
	if err != nil {
		return err
	}
	for i := range *effects {
		if (*effects)[i].ID != effectID {
			continue
		}
		before := (*effects)[i].Clone()
		*effects = append((*effects)[:i], (*effects)[i+1:]...)
		if err := commit(); err != nil {
			return err
		}
		tx.recordChange(domain.Change{Entity: domain.EntityEffect, Action: domain.ActionDelete, Identity: parent, Before: before})
		return nil
	}
	return domain.NotFoundError{Entity: domain.EntityEffect, Identity: parent}
}

// CreateActor stores a new actor.
func (tx *transaction) CreateActor(a domain.Actor) (domain.Actor, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	if _, exists := tx.state.actors[a.ID]; exists {
		return domain.Actor{}, fmt.Errorf("actor %q already exists", a.ID)
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.actors[a.ID] = cloneActor(a)
	tx.recordChange(domain.Change{Entity: domain.EntityActor, Action: domain.ActionCreate, Identity: domain.ActorIdentity(a.ID), After: cloneActor(a)})
	return cloneActor(a), nil
}

// UpdateActor mutates an actor using the provided mutator function.
func (tx *transaction) UpdateActor(id string, mutator func(*domain.Actor) error) (domain.Actor, error) {
	current, ok := tx.state.actors[id]
	if !ok {
		return domain.Actor{}, domain.NotFoundError{Entity: domain.EntityActor, Identity: domain.ActorIdentity(id)}
	}
	before := cloneActor(current)
	if err := mutator(&current); err != nil {
		return domain.Actor{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.actors[id] = cloneActor(current)
	tx.recordChange(domain.Change{Entity: domain.EntityActor, Action: domain.ActionUpdate, Identity: domain.ActorIdentity(id), Before: before, After: cloneActor(current)})
	return cloneActor(current), nil
}

// DeleteActor removes an actor and its embedded collections.
func (tx *transaction) DeleteActor(id string) error {
	current, ok := tx.state.actors[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityActor, Identity: domain.ActorIdentity(id)}
	}
	delete(tx.state.actors, id)
	tx.recordChange(domain.Change{Entity: domain.EntityActor, Action: domain.ActionDelete, Identity: domain.ActorIdentity(id), Before: cloneActor(current)})
	return nil
}

// CreateCompendium stores a new pack.
func (tx *transaction) CreateCompendium(c domain.Compendium) (domain.Compendium, error) {
	if c.Name == "" {
		return domain.Compendium{}, errors.New("compendium pack name is required")
	}
	if _, exists := tx.state.compendiums[c.Name]; exists {
		return domain.Compendium{}, fmt.Errorf("compendium %q already exists", c.Name)
	}
	tx.state.compendiums[c.Name] = cloneCompendium(c)
	tx.recordChange(domain.Change{Entity: domain.EntityCompendium, Action: domain.ActionCreate, Identity: domain.Identity("Compendium." + c.Name), After: cloneCompendium(c)})
	return cloneCompendium(c), nil
}

// UpdateCompendium mutates a pack using the provided mutator function.
func (tx *transaction) UpdateCompendium(name string, mutator func(*domain.Compendium) error) (domain.Compendium, error) {
	current, ok := tx.state.compendiums[name]
	if !ok {
		return domain.Compendium{}, domain.NotFoundError{Entity: domain.EntityCompendium, Identity: domain.Identity("Compendium." + name)}
	}
	before := cloneCompendium(current)
	if err := mutator(&current); err != nil {
		return domain.Compendium{}, err
	}
	current.Name = name
	tx.state.compendiums[name] = cloneCompendium(current)
	tx.recordChange(domain.Change{Entity: domain.EntityCompendium, Action: domain.ActionUpdate, Identity: domain.Identity("Compendium." + name), Before: before, After: cloneCompendium(current)})
	return cloneCompendium(current), nil
}

// DeleteCompendium removes a pack and every base record inside it.
func (tx *transaction) DeleteCompendium(name string) error {
	current, ok := tx.state.compendiums[name]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityCompendium, Identity: domain.Identity("Compendium." + name)}
	}
	delete(tx.state.compendiums, name)
	tx.recordChange(domain.Change{Entity: domain.EntityCompendium, Action: domain.ActionDelete, Identity: domain.Identity("Compendium." + name), Before: cloneCompendium(current)})
	return nil
}

// CreateScene stores a new scene.
func (tx *transaction) CreateScene(sc domain.Scene) (domain.Scene, error) {
	if sc.ID == "" {
		sc.ID = newID()
	}
	if _, exists := tx.state.scenes[sc.ID]; exists {
		return domain.Scene{}, fmt.Errorf("scene %q already exists", sc.ID)
	}
	sc.CreatedAt = tx.now
	sc.UpdatedAt = tx.now
	tx.state.scenes[sc.ID] = cloneScene(sc)
	tx.recordChange(domain.Change{Entity: domain.EntityScene, Action: domain.ActionCreate, Identity: domain.Identity("Scene." + sc.ID), After: cloneScene(sc)})
	return cloneScene(sc), nil
}

// UpdateScene mutates a scene using the provided mutator function.
func (tx *transaction) UpdateScene(id string, mutator func(*domain.Scene) error) (domain.Scene, error) {
	current, ok := tx.state.scenes[id]
	if !ok {
		return domain.Scene{}, domain.NotFoundError{Entity: domain.EntityScene, Identity: domain.Identity("Scene." + id)}
	}
	before := cloneScene(current)
	if err := mutator(&current); err != nil {
		return domain.Scene{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.scenes[id] = cloneScene(current)
	tx.recordChange(domain.Change{Entity: domain.EntityScene, Action: domain.ActionUpdate, Identity: domain.Identity("Scene." + id), Before: before, After: cloneScene(current)})
	return cloneScene(current), nil
}

// CreateFolder stores a new directory folder.
func (tx *transaction) CreateFolder(f domain.Folder) (domain.Folder, error) {
	if f.ID == "" {
		f.ID = newID()
	}
	if _, exists := tx.state.folders[f.ID]; exists {
		return domain.Folder{}, fmt.Errorf("folder %q already exists", f.ID)
	}
	tx.state.folders[f.ID] = cloneFolder(f)
	tx.recordChange(domain.Change{Entity: domain.EntityFolder, Action: domain.ActionCreate, Identity: domain.Identity("Folder." + f.ID), After: cloneFolder(f)})
	return cloneFolder(f), nil
}

// SetSetting writes a module setting within the transaction.
func (tx *transaction) SetSetting(key string, value any) {
	tx.state.settings[key] = value
}
