package core

import (
	"context"
	"fmt"
	"log/slog"

	"linkcore/internal/archive"
	"linkcore/internal/config"
	"linkcore/internal/linking"
	_ "linkcore/internal/ruleset/dnd5e" // default ruleset
	"linkcore/pkg/domain"
)

// LinkState classifies a record's linking posture.
type LinkState string

const (
	StateLinked    LinkState = "linked"     // declared link, base resolves
	StateBroken    LinkState = "broken"     // declared link, base gone
	StateUnlinked  LinkState = "unlinked"   // remembered base, linking off
	StateNotLinked LinkState = "not-linked" // no linking state
)

// Service wires the persistence backend, the reconciler and the archival
// sidecar into one host-facing surface.
type Service struct {
	store    domain.PersistentStore
	settings *config.Settings
	rec      *linking.Reconciler
	archiver *archive.Archiver
	logger   *slog.Logger
}

// NewService constructs a service around an already-opened store. The
// reconciler binds its hook handlers as part of construction, so every
// intercepted operation on the store observes linking semantics from here
// on.
func NewService(store domain.PersistentStore, settings *config.Settings, logger *slog.Logger) (*Service, error) {
	if settings == nil {
		settings = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	rec, err := linking.NewReconciler(store, settings, logger)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:    store,
		settings: settings,
		rec:      rec,
		logger:   logger,
	}, nil
}

// OpenServiceFromEnv opens the storage and archive backends named by the
// environment, applies pending migrations, and returns a ready service.
func OpenServiceFromEnv(ctx context.Context) (*Service, error) {
	store, err := OpenPersistentStore(domain.NewHooks())
	if err != nil {
		return nil, err
	}
	svc, err := NewService(store, config.FromEnv(), slog.Default())
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	blobs, err := archive.OpenStoreFromEnv(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	svc.archiver = archive.New(blobs)
	if err := svc.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return svc, nil
}

// SetArchiver installs the compendium archiver used before destructive bulk
// operations. A nil archiver disables pre-operation archiving.
func (s *Service) SetArchiver(a *archive.Archiver) { s.archiver = a }

// SetObserver forwards the metrics recorder to the reconciler.
func (s *Service) SetObserver(o linking.Observer) { s.rec.SetObserver(o) }

// SetUserProvider forwards the acting-user source to the reconciler.
func (s *Service) SetUserProvider(fn func() domain.User) { s.rec.SetUserProvider(fn) }

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Settings returns the live module settings.
func (s *Service) Settings() *config.Settings { return s.settings }

// Reconciler returns the bound reconciler for callers that need its full
// surface.
func (s *Service) Reconciler() *linking.Reconciler { return s.rec }

// Close releases the storage backend.
func (s *Service) Close() error { return s.store.Close() }

// Migrate applies pending one-time schema fixes.
func (s *Service) Migrate(ctx context.Context) error {
	return linking.Migrate(ctx, s.store, s.logger)
}

// ClassifyItem reports the linking state of the addressed record.
func (s *Service) ClassifyItem(id domain.Identity) (LinkState, error) {
	item, ok := s.store.ResolveItem(id)
	if !ok {
		return "", domain.NotFoundError{Entity: domain.EntityItem, Identity: id}
	}
	switch {
	case linking.IsLinked(item, s.store):
		return StateLinked, nil
	case linking.IsBrokenLink(item, s.store):
		return StateBroken, nil
	case linking.IsUnlinked(item):
		return StateUnlinked, nil
	default:
		return StateNotLinked, nil
	}
}

// LinkedItem resolves the base record of the addressed record, if it
// declares one.
func (s *Service) LinkedItem(id domain.Identity) (domain.Item, bool, error) {
	item, ok := s.store.ResolveItem(id)
	if !ok {
		return domain.Item{}, false, domain.NotFoundError{Entity: domain.EntityItem, Identity: id}
	}
	base, ok := linking.RetrieveLinkedItem(s.store, item)
	return base, ok, nil
}

// SetLinkedItem links the addressed record to baseRef and resynchronizes it.
func (s *Service) SetLinkedItem(ctx context.Context, id, baseRef domain.Identity) (domain.Item, error) {
	return s.rec.SetLinkedItem(ctx, id, baseRef)
}

// DerivedIndex scans committed state and groups every linked record under
// its declared base address.
func (s *Service) DerivedIndex(ctx context.Context) (map[domain.Identity][]linking.Derivation, error) {
	var index map[domain.Identity][]linking.Derivation
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		index = linking.FindDerived(view)
		return nil
	})
	return index, err
}

// BrokenLinks lists every record whose declared base no longer resolves.
func (s *Service) BrokenLinks(ctx context.Context) ([]domain.Identity, error) {
	index, err := s.DerivedIndex(ctx)
	if err != nil {
		return nil, err
	}
	var broken []domain.Identity
	for _, derived := range index {
		for _, d := range derived {
			if linking.IsBrokenLink(d.Item, s.store) {
				broken = append(broken, d.Identity)
			}
		}
	}
	return broken, nil
}

// MoveItemToCompendium archives the destination pack and relocates the
// record into it. An archive failure aborts before any write.
func (s *Service) MoveItemToCompendium(ctx context.Context, id domain.Identity, destPack string, opts linking.MoveOptions) (domain.Identity, error) {
	if err := s.archivePack(ctx, destPack, "pre-move"); err != nil {
		return "", err
	}
	return s.rec.MoveToCompendium(ctx, id, destPack, opts)
}

// MoveFolderToCompendium archives the destination pack and relocates a
// directory folder's items into it.
func (s *Service) MoveFolderToCompendium(ctx context.Context, folderID, destPack string, opts linking.MoveOptions) error {
	if err := s.archivePack(ctx, destPack, "pre-move"); err != nil {
		return err
	}
	return s.rec.MoveFolderToCompendium(ctx, folderID, destPack, opts)
}

// RelinkActors archives the fallback pack, when one is configured, and runs
// the bulk relink.
func (s *Service) RelinkActors(ctx context.Context, opts linking.RelinkOptions) (linking.RelinkReport, error) {
	if opts.FallbackPack != "" {
		if err := s.archivePack(ctx, opts.FallbackPack, "pre-relink"); err != nil {
			return linking.RelinkReport{}, err
		}
	}
	return s.rec.RelinkActorsFromCompendiums(ctx, opts)
}

// ArchivePack snapshots a compendium's current contents into the archive
// store.
func (s *Service) ArchivePack(ctx context.Context, pack, reason string) error {
	if s.archiver == nil {
		return fmt.Errorf("no archive store configured")
	}
	return s.archivePack(ctx, pack, reason)
}

func (s *Service) archivePack(ctx context.Context, pack, reason string) error {
	if s.archiver == nil {
		return nil
	}
	comp, ok := s.store.GetCompendium(pack)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityCompendium, Identity: domain.Identity(pack)}
	}
	info, err := s.archiver.ArchiveCompendium(ctx, comp, reason)
	if err != nil {
		return fmt.Errorf("archive %s: %w", pack, err)
	}
	s.logger.Info("archived compendium", "pack", pack, "reason", reason, "key", info.Key)
	return nil
}
