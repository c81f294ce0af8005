// Package domain defines the persistent document entities, mutation and
// violation vocabulary, hook bus, and persistence interfaces shared by the
// item linking core and its storage backends.
package domain

import "time"

// Ownership permission levels, mirroring the host application's scale.
const (
	OwnershipNone     = 0
	OwnershipLimited  = 1
	OwnershipObserver = 2
	OwnershipOwner    = 3
)

// Base contains common fields for all stored records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is the document the linking engine operates on. System holds the
// game-system source tree and Flags holds namespaced flag bags; both are
// arbitrary nested key/value data.
type Item struct {
	Base
	Name      string                    `json:"name"`
	Img       string                    `json:"img"`
	Type      string                    `json:"type"`
	Folder    *string                   `json:"folder"`
	Sort      int                       `json:"sort"`
	Ownership map[string]int            `json:"ownership,omitempty"`
	System    map[string]any            `json:"system"`
	Flags     map[string]map[string]any `json:"flags,omitempty"`
	Effects   []Effect                  `json:"effects,omitempty"`
}

// EffectChange is a single attribute modification carried by an effect.
type EffectChange struct {
	Key   string `json:"key"`
	Mode  int    `json:"mode"`
	Value string `json:"value"`
}

// Effect is an embedded sub-record owned by an item's or actor's "effects"
// collection. Origin points back at the document the effect was transferred
// from; propagated effects on a derivation carry the derivation's address
// there, never the base's.
type Effect struct {
	ID       string                    `json:"id"`
	Name     string                    `json:"name"`
	Icon     string                    `json:"icon"`
	Origin   Identity                  `json:"origin,omitempty"`
	Disabled bool                      `json:"disabled"`
	Changes  []EffectChange            `json:"changes,omitempty"`
	Flags    map[string]map[string]any `json:"flags,omitempty"`
}

// ActorType distinguishes player characters from NPCs for the create-time
// linking exemption.
type ActorType string

const (
	ActorCharacter ActorType = "character"
	ActorNPC       ActorType = "npc"
)

// Actor owns embedded items and effects.
type Actor struct {
	Base
	Name    string    `json:"name"`
	Type    ActorType `json:"type"`
	Folder  *string   `json:"folder"`
	Items   []Item    `json:"items,omitempty"`
	Effects []Effect  `json:"effects,omitempty"`
}

// Compendium is a canonical item library; items inside it are the base
// records derivations link against.
type Compendium struct {
	Name    string   `json:"name"` // two-segment pack collection, e.g. "world.weapons"
	Label   string   `json:"label"`
	Locked  bool     `json:"locked"`
	Folders []string `json:"folders,omitempty"`
	Items   []Item   `json:"items,omitempty"`
}

// Token is a scene placement of an actor. When Linked is false the token
// carries its own override item copies in DeltaItems; those are the only
// token-scoped items the derivation registry considers.
type Token struct {
	ID         string `json:"id"`
	ActorID    string `json:"actor_id"`
	Linked     bool   `json:"linked"`
	DeltaItems []Item `json:"delta_items,omitempty"`
}

// Scene groups token placements.
type Scene struct {
	Base
	Name   string  `json:"name"`
	Tokens []Token `json:"tokens,omitempty"`
}

// Folder organizes actors in the world directory tree.
type Folder struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Parent *string `json:"parent,omitempty"`
}

// User is the host's authorization surface for override checks.
type User struct {
	Name string `json:"name"`
	GM   bool   `json:"gm"`
}
