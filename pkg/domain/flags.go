package domain

// FlagScope is the flag namespace owned by the linking module. All module
// state on a record lives under it so it never collides with host or
// third-party data.
const FlagScope = "item-linking"

// CoreFlagScope is the host's own flag namespace. It carries the
// compendium-source bookkeeping (`sourceId`) the linking engine reads at
// create time, and is always exempt from propagation.
const CoreFlagScope = "core"

// SourceIDFlag is the core-namespace key recording which compendium document
// a record was instantiated from.
const SourceIDFlag = "sourceId"

// LinkFlags is the typed view of the module's flag bag on a record. A zero
// value means "unlinked, no base".
type LinkFlags struct {
	IsLinked               bool
	BaseItem               *Identity
	OverrideOwnerUser      string
	LinkPropertyExceptions string
}

// LinkFlags decodes the module flag namespace from the item. Malformed
// values degrade to the zero field, never to an error: flag bags are host
// data and arrive untyped.
func (i Item) LinkFlags() LinkFlags {
	return DecodeLinkFlags(i.Flags[FlagScope])
}

// DecodeLinkFlags builds the typed flag view from a raw flag bag.
func DecodeLinkFlags(bag map[string]any) LinkFlags {
	var flags LinkFlags
	if bag == nil {
		return flags
	}
	flags.IsLinked, _ = bag["isLinked"].(bool)
	if base, ok := bag["baseItem"].(string); ok && base != "" {
		id := Identity(base)
		flags.BaseItem = &id
	}
	flags.OverrideOwnerUser, _ = bag["overrideOwnerUser"].(string)
	flags.LinkPropertyExceptions, _ = bag["linkPropertyExceptions"].(string)
	return flags
}

// Encode renders the typed flags back into a raw flag bag.
func (f LinkFlags) Encode() map[string]any {
	bag := map[string]any{
		"isLinked": f.IsLinked,
		"baseItem": nil,
	}
	if f.BaseItem != nil {
		bag["baseItem"] = string(*f.BaseItem)
	}
	if f.OverrideOwnerUser != "" {
		bag["overrideOwnerUser"] = f.OverrideOwnerUser
	}
	if f.LinkPropertyExceptions != "" {
		bag["linkPropertyExceptions"] = f.LinkPropertyExceptions
	}
	return bag
}

// SourceID returns the host-recorded compendium origin of the item, if any.
func (i Item) SourceID() (Identity, bool) {
	core := i.Flags[CoreFlagScope]
	if core == nil {
		return "", false
	}
	raw, ok := core[SourceIDFlag].(string)
	if !ok || raw == "" {
		return "", false
	}
	return Identity(raw), true
}
