package domain

import "context"

// EffectUpdate pairs an embedded effect id with its pending change document
// for batched update calls.
type EffectUpdate struct {
	ID      string
	Changes map[string]any
}

// TransactionView provides read-only access to snapshot data for hooks and
// registry scans.
type TransactionView interface {
	FindItem(id Identity) (Item, bool)
	FindActor(id string) (Actor, bool)
	FindCompendium(pack string) (Compendium, bool)
	FindFolder(id string) (Folder, bool)
	ListWorldItems() []Item
	ListActors() []Actor
	ListCompendiums() []Compendium
	ListScenes() []Scene
	ListFolders() []Folder
	Setting(key string) (any, bool)
}

// Transaction exposes the raw mutations a persistence implementation must
// support within an atomic scope. Transaction methods do not dispatch hooks;
// interception happens in the Store operation wrappers.
type Transaction interface {
	Snapshot() TransactionView
	CreateItem(c Container, item Item, opts MutationOptions) (Item, error)
	UpdateItem(id Identity, changes map[string]any, opts MutationOptions) (Item, error)
	DeleteItem(id Identity, opts MutationOptions) error
	CreateEffect(parent Identity, effect Effect, opts MutationOptions) (Effect, error)
	UpdateEffect(parent Identity, effectID string, changes map[string]any, opts MutationOptions) (Effect, error)
	DeleteEffect(parent Identity, effectID string, opts MutationOptions) error
	CreateActor(Actor) (Actor, error)
	UpdateActor(id string, mutator func(*Actor) error) (Actor, error)
	DeleteActor(id string) error
	CreateCompendium(Compendium) (Compendium, error)
	UpdateCompendium(name string, mutator func(*Compendium) error) (Compendium, error)
	DeleteCompendium(name string) error
	CreateScene(Scene) (Scene, error)
	UpdateScene(id string, mutator func(*Scene) error) (Scene, error)
	CreateFolder(Folder) (Folder, error)
	SetSetting(key string, value any)
}

// PersistentStore is a Store whose state survives process restarts and
// whose resources must be released on shutdown.
type PersistentStore interface {
	Store
	Close() error
}

// Store is the host persistence collaborator: transactional document CRUD
// with hook interception, identity resolution, and module settings storage.
type Store interface {
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	Hooks() *Hooks

	// Intercepted operations. Each runs in its own transaction, dispatches
	// pre/post hooks, and then drains scheduled followups sequentially.
	CreateItem(ctx context.Context, c Container, item Item, opts MutationOptions) (Item, Result, error)
	UpdateItem(ctx context.Context, id Identity, changes map[string]any, opts MutationOptions) (Item, Result, error)
	DeleteItem(ctx context.Context, id Identity, opts MutationOptions) (Result, error)
	CreateEffects(ctx context.Context, parent Identity, effects []Effect, opts MutationOptions) ([]Effect, Result, error)
	UpdateEffects(ctx context.Context, parent Identity, updates []EffectUpdate, opts MutationOptions) (Result, error)
	DeleteEffects(ctx context.Context, parent Identity, ids []string, opts MutationOptions) (Result, error)

	// ResolveItem looks an item up by address on committed state.
	ResolveItem(id Identity) (Item, bool)
	// ResolveItemCtx is the suspension-point variant used where the host may
	// need to fetch pack contents; it honors context cancellation.
	ResolveItemCtx(ctx context.Context, id Identity) (Item, error)

	GetActor(id string) (Actor, bool)
	ListActors() []Actor
	GetCompendium(pack string) (Compendium, bool)
	ListCompendiums() []Compendium
	ListWorldItems() []Item
	ListScenes() []Scene
	ListFolders() []Folder

	// Module settings persisted alongside the document state, including the
	// schema update counter gating one-time migrations.
	GetSetting(key string) (any, bool)
	PutSetting(ctx context.Context, key string, value any) error
}
