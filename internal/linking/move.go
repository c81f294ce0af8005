package linking

import (
	"context"
	"fmt"
	"time"

	"linkcore/pkg/domain"
)

// ProgressFunc receives step-by-step progress for long-running bulk
// operations.
type ProgressFunc func(step, total int, message string)

// MoveOptions configures a move to another compendium.
type MoveOptions struct {
	// Relink rewrites every known derivation's base address to the moved
	// record's new address.
	Relink   bool
	Progress ProgressFunc
}

func (o MoveOptions) report(step, total int, message string) {
	if o.Progress != nil {
		o.Progress(step, total, message)
	}
}

// MoveToCompendium relocates a record into the destination pack, keeping its
// id so the new address differs only in container. Steps run in order:
// create the copy, optionally relink derivations, delete the source.
// Validation happens up front; a failure mid-sequence reports the error but
// does not undo completed steps.
func (r *Reconciler) MoveToCompendium(ctx context.Context, id domain.Identity, destPack string, opts MoveOptions) (domain.Identity, error) {
	started := time.Now()
	item, ok := r.store.ResolveItem(id)
	if !ok {
		return "", domain.NotFoundError{Entity: domain.EntityItem, Identity: id}
	}
	dest, ok := r.store.GetCompendium(destPack)
	if !ok {
		return "", domain.NotFoundError{Entity: domain.EntityCompendium, Identity: domain.Identity("Compendium." + destPack)}
	}
	if dest.Locked {
		return "", fmt.Errorf("compendium %s is locked", destPack)
	}
	newID := domain.CompendiumContainer(destPack).ItemIdentity(item.ID)
	if newID == id {
		return id, nil
	}

	derivations := r.derivationsOf(ctx, id)
	total := 2
	if opts.Relink {
		total += len(derivations)
	}
	step := 0

	opts.report(step, total, fmt.Sprintf("copying %s to %s", item.Name, destPack))
	copied := item.Clone()
	if _, _, err := r.store.CreateItem(ctx, domain.CompendiumContainer(destPack), copied, domain.MutationOptions{KeepID: true, LinkedUpdate: true}); err != nil {
		r.observer.Observe(ctx, "move", false, time.Since(started))
		return "", fmt.Errorf("copy %s to %s: %w", id, destPack, err)
	}
	step++

	if opts.Relink {
		for _, d := range derivations {
			opts.report(step, total, fmt.Sprintf("relinking %s", d.Identity))
			changes := map[string]any{
				"flags": map[string]any{
					domain.FlagScope: map[string]any{"baseItem": string(newID)},
				},
			}
			if _, _, err := r.store.UpdateItem(ctx, d.Identity, changes, domain.MutationOptions{LinkedUpdate: true}); err != nil {
				r.logger.Warn("relink failed", "derivation", d.Identity, "base", newID, "error", err)
			} else {
				r.registry.Register(d.Identity, newID)
			}
			step++
		}
	}

	opts.report(step, total, fmt.Sprintf("removing source %s", id))
	if _, err := r.store.DeleteItem(ctx, id, domain.MutationOptions{LinkedUpdate: true}); err != nil {
		r.observer.Observe(ctx, "move", false, time.Since(started))
		return newID, fmt.Errorf("delete source %s: %w", id, err)
	}
	step++
	opts.report(step, total, "done")
	r.observer.Observe(ctx, "move", true, time.Since(started))
	return newID, nil
}

// MoveFolderToCompendium relocates every world item filed under the folder
// (and, recursively, its subfolders) into the destination pack, registering
// the folder name on the pack. Completed item moves survive a mid-sequence
// failure.
func (r *Reconciler) MoveFolderToCompendium(ctx context.Context, folderID, destPack string, opts MoveOptions) error {
	var folder domain.Folder
	var items []domain.Item
	err := r.store.View(ctx, func(view domain.TransactionView) error {
		var ok bool
		folder, ok = view.FindFolder(folderID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityFolder, Identity: domain.Identity("Folder." + folderID)}
		}
		folderIDs := folderTree(view, folderID)
		for _, item := range view.ListWorldItems() {
			if item.Folder != nil {
				if _, in := folderIDs[*item.Folder]; in {
					items = append(items, item)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if _, ok := r.store.GetCompendium(destPack); !ok {
		return domain.NotFoundError{Entity: domain.EntityCompendium, Identity: domain.Identity("Compendium." + destPack)}
	}

	if _, err := r.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateCompendium(destPack, func(c *domain.Compendium) error {
			for _, existing := range c.Folders {
				if existing == folder.Name {
					return nil
				}
			}
			c.Folders = append(c.Folders, folder.Name)
			return nil
		})
		return err
	}); err != nil {
		return fmt.Errorf("register folder %q on %s: %w", folder.Name, destPack, err)
	}

	total := len(items)
	for i, item := range items {
		id := domain.WorldContainer().ItemIdentity(item.ID)
		opts.report(i, total, fmt.Sprintf("moving %s", item.Name))
		if _, err := r.MoveToCompendium(ctx, id, destPack, MoveOptions{Relink: opts.Relink}); err != nil {
			return fmt.Errorf("move %s (%d of %d complete): %w", id, i, total, err)
		}
	}
	opts.report(total, total, "done")
	return nil
}

// folderTree collects the folder id and every descendant id.
func folderTree(view domain.TransactionView, rootID string) map[string]struct{} {
	out := map[string]struct{}{rootID: {}}
	folders := view.ListFolders()
	for changed := true; changed; {
		changed = false
		for _, f := range folders {
			if f.Parent == nil {
				continue
			}
			if _, parentIn := out[*f.Parent]; !parentIn {
				continue
			}
			if _, in := out[f.ID]; !in {
				out[f.ID] = struct{}{}
				changed = true
			}
		}
	}
	return out
}
