// Package dnd5e is the reference game-system ruleset. Its keep list names
// the system-tree fields that hold per-instance state on an item: charges,
// quantity, equipped/attuned status, and per-copy hit points.
package dnd5e

import "linkcore/internal/ruleset"

func init() {
	ruleset.MustInstall(Ruleset{})
}

// Ruleset implements ruleset.Ruleset for the dnd5e game system.
type Ruleset struct{}

// Name returns the ruleset identifier used in configuration.
func (Ruleset) Name() string { return "dnd5e" }

// Version returns the ruleset revision.
func (Ruleset) Version() string { return "1.0.0" }

// Register contributes the static keep list and the embedded collections.
func (Ruleset) Register(reg ruleset.Registry) error {
	reg.RegisterKeepProperties(
		"uses.value",
		"recharge.charged",
		"quantity",
		"proficient",
		"identified",
		"equipped",
		"attunement",
		"hp.value",
		"hp.conditions",
	)
	reg.RegisterEmbeddedCollection("effects")
	return nil
}
