package linking

import (
	"context"
	"log/slog"
	"strings"

	"linkcore/pkg/domain"
)

// UpdateCounterKey is the settings key holding the schema update counter
// that gates one-time migrations.
const UpdateCounterKey = "updateCounter"

// CurrentSchemaVersion is the counter value after all known fixes ran.
const CurrentSchemaVersion = 1

// SchemaVersion reads the persisted update counter. Missing or malformed
// values read as zero.
func SchemaVersion(store domain.Store) int {
	raw, ok := store.GetSetting(UpdateCounterKey)
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		// Settings round-trip through JSON snapshots.
		return int(v)
	default:
		return 0
	}
}

// Migrate applies pending one-time fixes and advances the counter. Safe to
// call on every startup.
func Migrate(ctx context.Context, store domain.Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	version := SchemaVersion(store)
	if version >= CurrentSchemaVersion {
		return nil
	}
	if version < 1 {
		if err := fixLegacyCompendiumAddresses(ctx, store, logger); err != nil {
			return err
		}
	}
	return store.PutSetting(ctx, UpdateCounterKey, CurrentSchemaVersion)
}

// fixLegacyCompendiumAddresses rewrites base addresses in the pre-versioned
// shape Compendium.<scope>.<pack>.<id> to the current
// Compendium.<scope>.<pack>.Item.<id>.
func fixLegacyCompendiumAddresses(ctx context.Context, store domain.Store, logger *slog.Logger) error {
	type rewrite struct {
		id   domain.Identity
		base domain.Identity
	}
	var rewrites []rewrite
	err := store.View(ctx, func(view domain.TransactionView) error {
		ForEachItem(view, func(id domain.Identity, item domain.Item) {
			flags := item.LinkFlags()
			if flags.BaseItem == nil {
				return
			}
			if fixed, ok := fixLegacyAddress(*flags.BaseItem); ok {
				rewrites = append(rewrites, rewrite{id: id, base: fixed})
			}
		})
		return nil
	})
	if err != nil {
		return err
	}
	for _, rw := range rewrites {
		changes := map[string]any{
			"flags": map[string]any{
				domain.FlagScope: map[string]any{"baseItem": string(rw.base)},
			},
		}
		if _, _, err := store.UpdateItem(ctx, rw.id, changes, domain.MutationOptions{LinkedUpdate: true}); err != nil {
			return err
		}
		logger.Info("migrated legacy base address", "item", rw.id, "base", rw.base)
	}
	if len(rewrites) > 0 {
		logger.Info("legacy address migration complete", "rewritten", len(rewrites))
	}
	return nil
}

// fixLegacyAddress reports the corrected form of a legacy four-segment
// compendium address. Current addresses pass through unchanged.
func fixLegacyAddress(id domain.Identity) (domain.Identity, bool) {
	parts := strings.Split(string(id), ".")
	if len(parts) != 4 || parts[0] != "Compendium" {
		return id, false
	}
	if parts[3] == "" {
		return id, false
	}
	fixed := domain.Identity(strings.Join([]string{parts[0], parts[1], parts[2], "Item", parts[3]}, "."))
	return fixed, true
}
