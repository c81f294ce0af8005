package linking

import (
	"linkcore/internal/config"
	"linkcore/internal/ruleset"
	"linkcore/pkg/domain"
)

// bookkeepingPaths are identity and placement fields that never propagate:
// the record keeps its own id, ownership, directory position, and flag
// namespaces (this module's own plus the host's core namespace).
var bookkeepingPaths = []string{
	"_id",
	"ownership",
	"folder",
	"sort",
	"flags." + domain.FlagScope,
	"flags." + domain.CoreFlagScope,
}

// KeepListOptions selects the resolution context.
type KeepListOptions struct {
	// KeepEmbedded exempts embedded collections from the generic diff,
	// leaving them to the dedicated synchronizer.
	KeepEmbedded bool
}

// KeepListResolver computes the set of dotted property paths exempt from
// propagation for a given record. The static game-system contribution is
// resolved once at construction from the active ruleset.
type KeepListResolver struct {
	settings *config.Settings
	static   []string
	embedded []string
}

// NewKeepListResolver resolves the active ruleset and returns a resolver.
func NewKeepListResolver(settings *config.Settings) (*KeepListResolver, error) {
	contrib, err := ruleset.Resolve(settings.ActiveRuleset())
	if err != nil {
		return nil, err
	}
	r := &KeepListResolver{settings: settings, embedded: contrib.EmbeddedCollections}
	for _, p := range contrib.KeepProperties {
		r.static = append(r.static, "system."+p)
	}
	return r, nil
}

// EmbeddedCollections returns the active ruleset's embedded collection names.
func (r *KeepListResolver) EmbeddedCollections() []string {
	return append([]string(nil), r.embedded...)
}

// CanOverride reports whether user may apply the record's per-record
// exception list: privileged users always, the configured override owner,
// or anyone when no owner is configured.
func CanOverride(item domain.Item, user domain.User) bool {
	if user.GM {
		return true
	}
	owner := item.LinkFlags().OverrideOwnerUser
	return owner == "" || owner == user.Name
}

// KeepList resolves the full exemption set for the record: bookkeeping
// fields, cosmetic fields unless header linking is on, the ruleset's static
// list, the per-record exceptions (authorization gated), and the global
// exception setting (always applied). Exception entries are full dotted
// paths, e.g. "system.quantity".
func (r *KeepListResolver) KeepList(item domain.Item, user domain.User, opts KeepListOptions) []string {
	keep := append([]string(nil), bookkeepingPaths...)
	if !r.settings.LinkHeader() {
		keep = append(keep, "name", "img")
	}
	keep = append(keep, r.static...)
	if CanOverride(item, user) {
		keep = append(keep, config.ParseExceptionList(item.LinkFlags().LinkPropertyExceptions)...)
	}
	keep = append(keep, r.settings.GlobalExceptions()...)
	if opts.KeepEmbedded {
		keep = append(keep, r.embedded...)
	}
	return dedupe(keep)
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := paths[:0]
	for _, p := range paths {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
