// Package ruleset defines the pluggable per-game-system modules that supply
// the domain-specific keep list and embedded collection names. The active
// ruleset is resolved once at startup from a configured identifier; an
// unknown identifier degrades to empty contributions rather than an error.
package ruleset

import (
	"fmt"
	"sort"
	"sync"
)

// Registry accumulates a ruleset's contributions during Register.
type Registry interface {
	// RegisterKeepProperties adds system-tree paths (relative to "system.")
	// that hold per-instance state and are exempt from propagation.
	RegisterKeepProperties(paths ...string)
	// RegisterEmbeddedCollection names a sub-collection that is synchronized
	// id-aligned instead of diffed as part of the record tree.
	RegisterEmbeddedCollection(name string)
}

// Ruleset is a game-system module.
type Ruleset interface {
	Name() string
	Version() string
	Register(Registry) error
}

// Contributions is the resolved output of a ruleset registration.
type Contributions struct {
	KeepProperties      []string
	EmbeddedCollections []string
}

type collector struct {
	keep     map[string]struct{}
	embedded map[string]struct{}
}

func (c *collector) RegisterKeepProperties(paths ...string) {
	for _, p := range paths {
		if p != "" {
			c.keep[p] = struct{}{}
		}
	}
}

func (c *collector) RegisterEmbeddedCollection(name string) {
	if name != "" {
		c.embedded[name] = struct{}{}
	}
}

var (
	mu       sync.RWMutex
	rulesets = map[string]Ruleset{}
)

// Install adds a ruleset to the process-wide catalog. Duplicate names error.
func Install(rs Ruleset) error {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := rulesets[rs.Name()]; exists {
		return fmt.Errorf("ruleset %q already installed", rs.Name())
	}
	rulesets[rs.Name()] = rs
	return nil
}

// MustInstall installs a ruleset or panics; for package init use.
func MustInstall(rs Ruleset) {
	if err := Install(rs); err != nil {
		panic(err)
	}
}

// Resolve runs the named ruleset's registration and returns its
// contributions, sorted for stable iteration. An unknown name yields empty
// contributions.
func Resolve(name string) (Contributions, error) {
	mu.RLock()
	rs, ok := rulesets[name]
	mu.RUnlock()
	if !ok {
		return Contributions{}, nil
	}
	col := &collector{keep: map[string]struct{}{}, embedded: map[string]struct{}{}}
	if err := rs.Register(col); err != nil {
		return Contributions{}, fmt.Errorf("register ruleset %q: %w", name, err)
	}
	out := Contributions{
		KeepProperties:      make([]string, 0, len(col.keep)),
		EmbeddedCollections: make([]string, 0, len(col.embedded)),
	}
	for p := range col.keep {
		out.KeepProperties = append(out.KeepProperties, p)
	}
	for n := range col.embedded {
		out.EmbeddedCollections = append(out.EmbeddedCollections, n)
	}
	sort.Strings(out.KeepProperties)
	sort.Strings(out.EmbeddedCollections)
	return out, nil
}

// Installed lists the catalog names, sorted.
func Installed() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(rulesets))
	for n := range rulesets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
