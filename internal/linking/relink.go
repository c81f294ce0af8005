package linking

import (
	"context"
	"fmt"
	"time"

	"linkcore/pkg/domain"
)

// RelinkOptions configures the bulk actor relink operation.
type RelinkOptions struct {
	// ActorFolders are the directory folder ids whose actors are scanned.
	ActorFolders []string
	// IncludeSubfolders extends the scan to descendant folders.
	IncludeSubfolders bool
	// Packs are the compendium packs searched for link candidates, in order.
	Packs []string
	// FallbackPack, when set, receives imports of items with no candidate;
	// the imported copy then becomes the item's base.
	FallbackPack string
	Progress     ProgressFunc
}

// RelinkReport counts the outcomes of a bulk relink.
type RelinkReport struct {
	ActorsScanned int
	ItemsFound    int
	Linked        int
	AlreadyLinked int
	Broken        int
	NoMatch       int
	Imported      int
}

// RelinkActorsFromCompendiums walks the actors filed under the given
// folders and links each unlinked or broken-link item to a compendium
// candidate matched by name and type. Options are validated before any
// write. NPC actors are skipped when the ignore-npcs setting is on.
func (r *Reconciler) RelinkActorsFromCompendiums(ctx context.Context, opts RelinkOptions) (RelinkReport, error) {
	started := time.Now()
	var report RelinkReport
	if len(opts.ActorFolders) == 0 {
		return report, fmt.Errorf("no actor folders selected")
	}
	if len(opts.Packs) == 0 {
		return report, fmt.Errorf("no compendium packs selected")
	}

	var actors []domain.Actor
	candidates := make(map[string]domain.Identity)
	err := r.store.View(ctx, func(view domain.TransactionView) error {
		folderIDs := map[string]struct{}{}
		for _, f := range opts.ActorFolders {
			if _, ok := view.FindFolder(f); !ok {
				return domain.NotFoundError{Entity: domain.EntityFolder, Identity: domain.Identity("Folder." + f)}
			}
			if opts.IncludeSubfolders {
				for id := range folderTree(view, f) {
					folderIDs[id] = struct{}{}
				}
			} else {
				folderIDs[f] = struct{}{}
			}
		}
		for _, pack := range opts.Packs {
			c, ok := view.FindCompendium(pack)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityCompendium, Identity: domain.Identity("Compendium." + pack)}
			}
			container := domain.CompendiumContainer(pack)
			for _, item := range c.Items {
				key := matchKey(item)
				// First pack wins for duplicate name+type pairs.
				if _, taken := candidates[key]; !taken {
					candidates[key] = container.ItemIdentity(item.ID)
				}
			}
		}
		if opts.FallbackPack != "" {
			if _, ok := view.FindCompendium(opts.FallbackPack); !ok {
				return domain.NotFoundError{Entity: domain.EntityCompendium, Identity: domain.Identity("Compendium." + opts.FallbackPack)}
			}
		}
		for _, actor := range view.ListActors() {
			if actor.Folder == nil {
				continue
			}
			if _, in := folderIDs[*actor.Folder]; !in {
				continue
			}
			if r.settings.IgnoreNPCs() && actor.Type == domain.ActorNPC {
				continue
			}
			actors = append(actors, actor)
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	report.ActorsScanned = len(actors)
	for ai, actor := range actors {
		if opts.Progress != nil {
			opts.Progress(ai, len(actors), fmt.Sprintf("relinking %s", actor.Name))
		}
		container := domain.ActorContainer(actor.ID)
		for _, item := range actor.Items {
			report.ItemsFound++
			id := container.ItemIdentity(item.ID)
			flags := item.LinkFlags()
			switch {
			case flags.IsLinked && flags.BaseItem != nil:
				if _, ok := r.store.ResolveItem(*flags.BaseItem); ok {
					report.AlreadyLinked++
					continue
				}
				report.Broken++
			case flags.IsLinked:
				report.Broken++
			}

			base, found := candidates[matchKey(item)]
			if !found && opts.FallbackPack != "" {
				imported, err := r.importFallback(ctx, opts.FallbackPack, item)
				if err != nil {
					r.logger.Warn("fallback import failed", "item", id, "pack", opts.FallbackPack, "error", err)
					report.NoMatch++
					continue
				}
				candidates[matchKey(item)] = imported
				base = imported
				found = true
				report.Imported++
			}
			if !found {
				report.NoMatch++
				continue
			}
			if _, err := r.SetLinkedItem(ctx, id, base); err != nil {
				r.logger.Warn("relink failed", "item", id, "base", base, "error", err)
				report.NoMatch++
				continue
			}
			report.Linked++
		}
	}
	if opts.Progress != nil {
		opts.Progress(len(actors), len(actors), "done")
	}
	r.observer.Observe(ctx, "bulk_relink", true, time.Since(started))
	r.logger.Info("bulk relink finished",
		"actors", report.ActorsScanned, "items", report.ItemsFound,
		"linked", report.Linked, "already", report.AlreadyLinked,
		"broken", report.Broken, "nomatch", report.NoMatch, "imported", report.Imported)
	return report, nil
}

// importFallback copies an actor item into the fallback pack, stripping
// link flags so the import is a clean base.
func (r *Reconciler) importFallback(ctx context.Context, pack string, item domain.Item) (domain.Identity, error) {
	clone := item.Clone()
	clone.ID = ""
	if clone.Flags != nil {
		delete(clone.Flags, domain.FlagScope)
	}
	clone.Folder = nil
	created, _, err := r.store.CreateItem(ctx, domain.CompendiumContainer(pack), clone, domain.MutationOptions{LinkedUpdate: true})
	if err != nil {
		return "", err
	}
	return domain.CompendiumContainer(pack).ItemIdentity(created.ID), nil
}

func matchKey(item domain.Item) string {
	return item.Type + "\x00" + item.Name
}
