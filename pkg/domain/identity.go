package domain

import (
	"fmt"
	"strings"
)

// Identity is the globally unique, hierarchical address of a document:
//
//	Item.<id>                                    world item
//	Actor.<actorID>.Item.<id>                    item owned by an actor
//	Compendium.<scope>.<pack>.Item.<id>          item in a canonical library
//	Scene.<sceneID>.Token.<tokenID>.Item.<id>    per-placement override item
//	Actor.<actorID>                              actor (effect parent)
//
// Compendium pack collections are two-segment names (<scope>.<pack>).
type Identity string

// ContainerKind enumerates the storage containers an item can live in.
type ContainerKind string

const (
	ContainerWorld      ContainerKind = "world"
	ContainerActor      ContainerKind = "actor"
	ContainerCompendium ContainerKind = "compendium"
	ContainerToken      ContainerKind = "token"
)

// Container locates the parent collection of an item. The zero value is the
// world item collection.
type Container struct {
	Kind  ContainerKind `json:"kind,omitempty"`
	Actor string        `json:"actor,omitempty"`
	Pack  string        `json:"pack,omitempty"`
	Scene string        `json:"scene,omitempty"`
	Token string        `json:"token,omitempty"`
}

// WorldContainer addresses the world item collection.
func WorldContainer() Container { return Container{Kind: ContainerWorld} }

// ActorContainer addresses an actor's embedded item collection.
func ActorContainer(actorID string) Container {
	return Container{Kind: ContainerActor, Actor: actorID}
}

// CompendiumContainer addresses a compendium pack.
func CompendiumContainer(pack string) Container {
	return Container{Kind: ContainerCompendium, Pack: pack}
}

// TokenContainer addresses a token's override item collection.
func TokenContainer(sceneID, tokenID string) Container {
	return Container{Kind: ContainerToken, Scene: sceneID, Token: tokenID}
}

// ItemIdentity builds the address of an item inside the container.
func (c Container) ItemIdentity(id string) Identity {
	switch c.Kind {
	case ContainerActor:
		return Identity("Actor." + c.Actor + ".Item." + id)
	case ContainerCompendium:
		return Identity("Compendium." + c.Pack + ".Item." + id)
	case ContainerToken:
		return Identity("Scene." + c.Scene + ".Token." + c.Token + ".Item." + id)
	default:
		return Identity("Item." + id)
	}
}

// ActorIdentity builds an actor address.
func ActorIdentity(actorID string) Identity {
	return Identity("Actor." + actorID)
}

// ParsedIdentity is the decomposed form of an Identity.
type ParsedIdentity struct {
	Container Container
	ItemID    string
	ActorOnly bool
}

// Parse decomposes the identity. It returns an error for addresses the store
// cannot host.
func (id Identity) Parse() (ParsedIdentity, error) {
	parts := strings.Split(string(id), ".")
	switch {
	case len(parts) == 2 && parts[0] == "Item":
		return ParsedIdentity{Container: WorldContainer(), ItemID: parts[1]}, nil
	case len(parts) == 2 && parts[0] == "Actor":
		return ParsedIdentity{Container: ActorContainer(parts[1]), ActorOnly: true}, nil
	case len(parts) == 4 && parts[0] == "Actor" && parts[2] == "Item":
		return ParsedIdentity{Container: ActorContainer(parts[1]), ItemID: parts[3]}, nil
	case len(parts) == 5 && parts[0] == "Compendium" && parts[3] == "Item":
		return ParsedIdentity{Container: CompendiumContainer(parts[1] + "." + parts[2]), ItemID: parts[4]}, nil
	case len(parts) == 6 && parts[0] == "Scene" && parts[2] == "Token" && parts[4] == "Item":
		return ParsedIdentity{Container: TokenContainer(parts[1], parts[3]), ItemID: parts[5]}, nil
	default:
		return ParsedIdentity{}, fmt.Errorf("unresolvable identity %q", id)
	}
}

// InCompendium reports whether the identity addresses a compendium document.
func (id Identity) InCompendium() bool {
	return strings.HasPrefix(string(id), "Compendium.")
}

// ItemID returns the trailing item id segment, or "" when the identity does
// not address an item.
func (id Identity) ItemID() string {
	parsed, err := id.Parse()
	if err != nil || parsed.ActorOnly {
		return ""
	}
	return parsed.ItemID
}
