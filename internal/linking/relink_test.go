package linking

import (
	"context"
	"testing"

	"linkcore/internal/config"
	"linkcore/pkg/domain"
)

func seedPackItem(t *testing.T, store interface {
	CreateItem(ctx context.Context, c domain.Container, item domain.Item, opts domain.MutationOptions) (domain.Item, domain.Result, error)
}, pack, id, name, typ string) domain.Identity {
	t.Helper()
	c := domain.CompendiumContainer(pack)
	created, _, err := store.CreateItem(context.Background(), c, domain.Item{
		Base: domain.Base{ID: id}, Name: name, Type: typ, System: map[string]any{},
	}, domain.MutationOptions{KeepID: true})
	if err != nil {
		t.Fatalf("seed pack item %s: %v", name, err)
	}
	return c.ItemIdentity(created.ID)
}

func TestRelinkActorsMatchesByNameAndType(t *testing.T) {
	store, rec := newTestEngine(t, nil)
	mustCreatePack(t, store, testPack)
	swordID := seedPackItem(t, store, testPack, "sword", "Sword", "weapon")
	seedPackItem(t, store, testPack, "shield", "Shield", "equipment")

	folder := mustCreateFolder(t, store, domain.Folder{Name: "Party"})
	actorID := mustCreateActor(t, store, domain.Actor{
		Name: "Hero", Type: domain.ActorCharacter, Folder: &folder,
	})
	c := domain.ActorContainer(actorID)
	swordItem := mustCreateItem(t, store, c, domain.Item{
		Name: "Sword", Type: "weapon", System: map[string]any{},
	})
	noMatch := mustCreateItem(t, store, c, domain.Item{
		Name: "Weird Trinket", Type: "loot", System: map[string]any{},
	})

	report, err := rec.RelinkActorsFromCompendiums(context.Background(), RelinkOptions{
		ActorFolders: []string{folder},
		Packs:        []string{testPack},
	})
	if err != nil {
		t.Fatalf("relink: %v", err)
	}
	if report.ActorsScanned != 1 || report.ItemsFound != 2 {
		t.Fatalf("scan counts: %+v", report)
	}
	if report.Linked != 1 || report.NoMatch != 1 {
		t.Fatalf("outcome counts: %+v", report)
	}

	flags := mustResolve(t, store, swordItem).LinkFlags()
	if flags.BaseItem == nil || *flags.BaseItem != swordID {
		t.Fatalf("sword not linked to pack candidate: %+v", flags)
	}
	if mustResolve(t, store, noMatch).LinkFlags().IsLinked {
		t.Fatal("unmatched item linked")
	}
}

func TestRelinkCountsAlreadyLinkedAndBroken(t *testing.T) {
	store, rec := newTestEngine(t, nil)
	mustCreatePack(t, store, testPack)
	swordID := seedPackItem(t, store, testPack, "sword", "Sword", "weapon")

	folder := mustCreateFolder(t, store, domain.Folder{Name: "Party"})
	actorID := mustCreateActor(t, store, domain.Actor{
		Name: "Hero", Type: domain.ActorCharacter, Folder: &folder,
	})
	c := domain.ActorContainer(actorID)
	linked := mustCreateItem(t, store, c, domain.Item{
		Name: "Sword", Type: "weapon", System: map[string]any{},
	})
	mustLink(t, rec, linked, swordID)
	broken := mustCreateItem(t, store, c, domain.Item{
		Name: "Sword", Type: "weapon", System: map[string]any{},
		Flags: map[string]map[string]any{
			domain.FlagScope: {"isLinked": true, "baseItem": "Compendium.gone.pack.Item.x"},
		},
	})

	report, err := rec.RelinkActorsFromCompendiums(context.Background(), RelinkOptions{
		ActorFolders: []string{folder},
		Packs:        []string{testPack},
	})
	if err != nil {
		t.Fatalf("relink: %v", err)
	}
	if report.AlreadyLinked != 1 {
		t.Fatalf("AlreadyLinked = %d", report.AlreadyLinked)
	}
	if report.Broken != 1 || report.Linked != 1 {
		t.Fatalf("broken repair counts: %+v", report)
	}
	flags := mustResolve(t, store, broken).LinkFlags()
	if flags.BaseItem == nil || *flags.BaseItem != swordID {
		t.Fatalf("broken link not repaired: %+v", flags)
	}
}

func TestRelinkFallbackImport(t *testing.T) {
	store, rec := newTestEngine(t, nil)
	mustCreatePack(t, store, testPack)
	mustCreatePack(t, store, "world.custom")

	folder := mustCreateFolder(t, store, domain.Folder{Name: "Party"})
	actorID := mustCreateActor(t, store, domain.Actor{
		Name: "Hero", Type: domain.ActorCharacter, Folder: &folder,
	})
	homebrew := mustCreateItem(t, store, domain.ActorContainer(actorID), domain.Item{
		Name: "Homebrew Blade", Type: "weapon", System: map[string]any{},
	})

	report, err := rec.RelinkActorsFromCompendiums(context.Background(), RelinkOptions{
		ActorFolders: []string{folder},
		Packs:        []string{testPack},
		FallbackPack: "world.custom",
	})
	if err != nil {
		t.Fatalf("relink: %v", err)
	}
	if report.Imported != 1 || report.Linked != 1 {
		t.Fatalf("fallback counts: %+v", report)
	}

	flags := mustResolve(t, store, homebrew).LinkFlags()
	if flags.BaseItem == nil {
		t.Fatal("homebrew item not linked to imported base")
	}
	base := mustResolve(t, store, *flags.BaseItem)
	if base.Name != "Homebrew Blade" {
		t.Fatalf("imported base = %+v", base)
	}
	if !(*flags.BaseItem).InCompendium() {
		t.Fatalf("imported base outside the fallback pack: %s", *flags.BaseItem)
	}
}

func TestRelinkSkipsNPCsWhenConfigured(t *testing.T) {
	settings := config.Default()
	settings.SetIgnoreNPCs(true)
	store, rec := newTestEngine(t, settings)
	mustCreatePack(t, store, testPack)
	seedPackItem(t, store, testPack, "sword", "Sword", "weapon")

	folder := mustCreateFolder(t, store, domain.Folder{Name: "Bestiary"})
	npcID := mustCreateActor(t, store, domain.Actor{
		Name: "Goblin", Type: domain.ActorNPC, Folder: &folder,
	})
	npcItem := mustCreateItem(t, store, domain.ActorContainer(npcID), domain.Item{
		Name: "Sword", Type: "weapon", System: map[string]any{},
	})

	report, err := rec.RelinkActorsFromCompendiums(context.Background(), RelinkOptions{
		ActorFolders: []string{folder},
		Packs:        []string{testPack},
	})
	if err != nil {
		t.Fatalf("relink: %v", err)
	}
	if report.ActorsScanned != 0 {
		t.Fatalf("npc scanned despite ignore setting: %+v", report)
	}
	if mustResolve(t, store, npcItem).LinkFlags().IsLinked {
		t.Fatal("npc item linked despite ignore setting")
	}
}

func TestRelinkSubfolderScope(t *testing.T) {
	store, rec := newTestEngine(t, nil)
	mustCreatePack(t, store, testPack)
	seedPackItem(t, store, testPack, "sword", "Sword", "weapon")

	parent := mustCreateFolder(t, store, domain.Folder{Name: "Party"})
	child := mustCreateFolder(t, store, domain.Folder{Name: "Reserves", Parent: &parent})
	childActor := mustCreateActor(t, store, domain.Actor{
		Name: "Backup", Type: domain.ActorCharacter, Folder: &child,
	})
	mustCreateItem(t, store, domain.ActorContainer(childActor), domain.Item{
		Name: "Sword", Type: "weapon", System: map[string]any{},
	})

	report, err := rec.RelinkActorsFromCompendiums(context.Background(), RelinkOptions{
		ActorFolders: []string{parent},
		Packs:        []string{testPack},
	})
	if err != nil {
		t.Fatalf("relink: %v", err)
	}
	if report.ActorsScanned != 0 {
		t.Fatal("subfolder actor scanned without IncludeSubfolders")
	}

	report, err = rec.RelinkActorsFromCompendiums(context.Background(), RelinkOptions{
		ActorFolders:      []string{parent},
		IncludeSubfolders: true,
		Packs:             []string{testPack},
	})
	if err != nil {
		t.Fatalf("relink: %v", err)
	}
	if report.ActorsScanned != 1 || report.Linked != 1 {
		t.Fatalf("subfolder scan counts: %+v", report)
	}
}

func TestRelinkValidatesOptions(t *testing.T) {
	_, rec := newTestEngine(t, nil)
	if _, err := rec.RelinkActorsFromCompendiums(context.Background(), RelinkOptions{}); err == nil {
		t.Fatal("empty options accepted")
	}
	if _, err := rec.RelinkActorsFromCompendiums(context.Background(), RelinkOptions{
		ActorFolders: []string{"f"},
	}); err == nil {
		t.Fatal("missing packs accepted")
	}
}
