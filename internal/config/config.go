// Package config holds the module settings that shape linking behavior. The
// defaults match a fresh install; deployments override them through the
// environment, and the service mutates them at runtime through the setters.
package config

import (
	"os"
	"strings"
	"sync"
)

// Environment variables:
//   LINKCORE_LINK_HEADER=true|false            (default true)
//   LINKCORE_ENFORCE_ACTOR_EFFECTS=true|false  (default false)
//   LINKCORE_IGNORE_NPCS=true|false            (default false)
//   LINKCORE_LINK_PROPERTY_EXCEPTIONS=<comma list of system paths>
//   LINKCORE_ACTIVE_RULESET=<ruleset id>       (default dnd5e)

// Settings is the mutable runtime settings store. Safe for concurrent reads
// and writes.
type Settings struct {
	mu sync.RWMutex

	linkHeader          bool
	enforceActorEffects bool
	ignoreNPCs          bool
	exceptions          string
	activeRuleset       string
}

// Default returns settings with fresh-install values.
func Default() *Settings {
	return &Settings{
		linkHeader:    true,
		activeRuleset: "dnd5e",
	}
}

// FromEnv loads settings from the process environment on top of defaults.
func FromEnv() *Settings {
	s := Default()
	if v, ok := os.LookupEnv("LINKCORE_LINK_HEADER"); ok {
		s.linkHeader = parseBool(v)
	}
	if v, ok := os.LookupEnv("LINKCORE_ENFORCE_ACTOR_EFFECTS"); ok {
		s.enforceActorEffects = parseBool(v)
	}
	if v, ok := os.LookupEnv("LINKCORE_IGNORE_NPCS"); ok {
		s.ignoreNPCs = parseBool(v)
	}
	if v, ok := os.LookupEnv("LINKCORE_LINK_PROPERTY_EXCEPTIONS"); ok {
		s.exceptions = v
	}
	if v, ok := os.LookupEnv("LINKCORE_ACTIVE_RULESET"); ok && v != "" {
		s.activeRuleset = v
	}
	return s
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// LinkHeader reports whether name and image propagate from the base. When
// off, those cosmetic fields stay independently editable on derivations.
func (s *Settings) LinkHeader() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.linkHeader
}

// SetLinkHeader toggles name/image propagation.
func (s *Settings) SetLinkHeader(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linkHeader = v
}

// EnforceActorEffects reports whether propagated effects are mirrored onto
// the owning actor.
func (s *Settings) EnforceActorEffects() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enforceActorEffects
}

// SetEnforceActorEffects toggles actor effect mirroring.
func (s *Settings) SetEnforceActorEffects(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enforceActorEffects = v
}

// IgnoreNPCs reports whether bulk relink operations skip npc actors.
func (s *Settings) IgnoreNPCs() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ignoreNPCs
}

// SetIgnoreNPCs toggles npc exclusion for bulk relinks.
func (s *Settings) SetIgnoreNPCs(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignoreNPCs = v
}

// GlobalExceptions returns the admin-configured comma-separated list of
// system paths exempt from propagation, parsed and trimmed. Blank entries
// are dropped.
func (s *Settings) GlobalExceptions() []string {
	s.mu.RLock()
	raw := s.exceptions
	s.mu.RUnlock()
	return ParseExceptionList(raw)
}

// SetGlobalExceptions replaces the raw exception list.
func (s *Settings) SetGlobalExceptions(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exceptions = raw
}

// ActiveRuleset returns the identifier of the game-system module supplying
// the static keep list.
func (s *Settings) ActiveRuleset() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeRuleset
}

// SetActiveRuleset replaces the active ruleset identifier.
func (s *Settings) SetActiveRuleset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeRuleset = id
}

// ParseExceptionList splits a comma-separated path list, trimming whitespace
// and dropping blanks.
func ParseExceptionList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
