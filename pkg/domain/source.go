package domain

import (
	"linkcore/pkg/document"
)

// SourceObject materializes the item's persisted tree in the shape change
// documents address: identity and bookkeeping fields, the system tree, flag
// namespaces, and the embedded effects collection.
func (i Item) SourceObject() map[string]any {
	obj := map[string]any{
		"_id":    i.ID,
		"name":   i.Name,
		"img":    i.Img,
		"type":   i.Type,
		"sort":   i.Sort,
		"system": document.Clone(i.System),
	}
	if i.System == nil {
		obj["system"] = map[string]any{}
	}
	if i.Folder != nil {
		obj["folder"] = *i.Folder
	}
	if len(i.Ownership) > 0 {
		ownership := make(map[string]any, len(i.Ownership))
		for k, v := range i.Ownership {
			ownership[k] = v
		}
		obj["ownership"] = ownership
	}
	flags := make(map[string]any, len(i.Flags))
	for scope, bag := range i.Flags {
		flags[scope] = document.Clone(bag)
	}
	obj["flags"] = flags
	effects := make([]any, 0, len(i.Effects))
	for _, e := range i.Effects {
		effects = append(effects, e.SourceObject())
	}
	obj["effects"] = effects
	return obj
}

// SourceObject materializes the effect's persisted tree.
func (e Effect) SourceObject() map[string]any {
	obj := map[string]any{
		"_id":      e.ID,
		"name":     e.Name,
		"icon":     e.Icon,
		"disabled": e.Disabled,
	}
	if e.Origin != "" {
		obj["origin"] = string(e.Origin)
	}
	if len(e.Changes) > 0 {
		changes := make([]any, 0, len(e.Changes))
		for _, c := range e.Changes {
			changes = append(changes, map[string]any{"key": c.Key, "mode": c.Mode, "value": c.Value})
		}
		obj["changes"] = changes
	}
	if len(e.Flags) > 0 {
		flags := make(map[string]any, len(e.Flags))
		for scope, bag := range e.Flags {
			flags[scope] = document.Clone(bag)
		}
		obj["flags"] = flags
	}
	return obj
}

// Clone deep-copies the item.
func (i Item) Clone() Item {
	cp := i
	cp.System = document.Clone(i.System)
	if i.Flags != nil {
		cp.Flags = make(map[string]map[string]any, len(i.Flags))
		for scope, bag := range i.Flags {
			cp.Flags[scope] = document.Clone(bag)
		}
	}
	if i.Ownership != nil {
		cp.Ownership = make(map[string]int, len(i.Ownership))
		for k, v := range i.Ownership {
			cp.Ownership[k] = v
		}
	}
	if i.Effects != nil {
		cp.Effects = make([]Effect, len(i.Effects))
		for idx, e := range i.Effects {
			cp.Effects[idx] = e.Clone()
		}
	}
	if i.Folder != nil {
		folder := *i.Folder
		cp.Folder = &folder
	}
	return cp
}

// Clone deep-copies the effect.
func (e Effect) Clone() Effect {
	cp := e
	cp.Changes = append([]EffectChange(nil), e.Changes...)
	if e.Flags != nil {
		cp.Flags = make(map[string]map[string]any, len(e.Flags))
		for scope, bag := range e.Flags {
			cp.Flags[scope] = document.Clone(bag)
		}
	}
	return cp
}

// ItemFromSource rebuilds an item from a source tree. Unknown top-level keys
// are ignored; numeric values tolerate both int and float64 encodings.
func ItemFromSource(obj map[string]any) Item {
	item := Item{}
	item.ID, _ = obj["_id"].(string)
	item.Name, _ = obj["name"].(string)
	item.Img, _ = obj["img"].(string)
	item.Type, _ = obj["type"].(string)
	item.Sort = asInt(obj["sort"])
	if folder, ok := obj["folder"].(string); ok {
		item.Folder = &folder
	}
	if ownership, ok := obj["ownership"].(map[string]any); ok {
		item.Ownership = make(map[string]int, len(ownership))
		for k, v := range ownership {
			item.Ownership[k] = asInt(v)
		}
	}
	if system, ok := obj["system"].(map[string]any); ok {
		item.System = document.Clone(system)
	} else {
		item.System = map[string]any{}
	}
	if flags, ok := obj["flags"].(map[string]any); ok {
		item.Flags = make(map[string]map[string]any, len(flags))
		for scope, bag := range flags {
			if m, ok := bag.(map[string]any); ok {
				item.Flags[scope] = document.Clone(m)
			}
		}
	}
	if effects, ok := obj["effects"].([]any); ok {
		for _, raw := range effects {
			if m, ok := raw.(map[string]any); ok {
				item.Effects = append(item.Effects, EffectFromSource(m))
			}
		}
	}
	return item
}

// EffectFromSource rebuilds an effect from a source tree.
func EffectFromSource(obj map[string]any) Effect {
	effect := Effect{}
	effect.ID, _ = obj["_id"].(string)
	effect.Name, _ = obj["name"].(string)
	effect.Icon, _ = obj["icon"].(string)
	effect.Disabled, _ = obj["disabled"].(bool)
	if origin, ok := obj["origin"].(string); ok {
		effect.Origin = Identity(origin)
	}
	if changes, ok := obj["changes"].([]any); ok {
		for _, raw := range changes {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			change := EffectChange{Mode: asInt(m["mode"])}
			change.Key, _ = m["key"].(string)
			change.Value, _ = m["value"].(string)
			effect.Changes = append(effect.Changes, change)
		}
	}
	if flags, ok := obj["flags"].(map[string]any); ok {
		effect.Flags = make(map[string]map[string]any, len(flags))
		for scope, bag := range flags {
			if m, ok := bag.(map[string]any); ok {
				effect.Flags[scope] = document.Clone(m)
			}
		}
	}
	return effect
}

// ApplyItemChange merges a change document onto the item and returns the
// result. Identity is preserved; effects are only touched when the change
// document rewrites the whole collection.
func ApplyItemChange(item Item, changes map[string]any) Item {
	source := item.SourceObject()
	document.MergeObject(source, changes)
	updated := ItemFromSource(source)
	updated.Base = item.Base
	if updated.ID == "" {
		updated.ID = item.ID
	}
	return updated
}

// ApplyEffectChange merges a change document onto the effect.
func ApplyEffectChange(effect Effect, changes map[string]any) Effect {
	source := effect.SourceObject()
	document.MergeObject(source, changes)
	updated := EffectFromSource(source)
	if updated.ID == "" {
		updated.ID = effect.ID
	}
	return updated
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
