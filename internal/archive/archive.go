// Package archive snapshots compendium contents into artifact storage before
// destructive bulk operations, so a botched move or relink can be recovered
// by hand from the stored JSON.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"linkcore/internal/blobcore"
	blobfs "linkcore/internal/infra/blob/fs"
	blobmem "linkcore/internal/infra/blob/memory"
	blobs3 "linkcore/internal/infra/blob/s3"
	"linkcore/pkg/domain"
)

// Artifact is the stored snapshot envelope.
type Artifact struct {
	Pack       string            `json:"pack"`
	Reason     string            `json:"reason"`
	ArchivedAt time.Time         `json:"archived_at"`
	Compendium domain.Compendium `json:"compendium"`
}

// Archiver writes compendium snapshots to artifact storage.
type Archiver struct {
	blobs blobcore.Store
	nowFn func() time.Time
}

// New constructs an Archiver over the given artifact store.
func New(blobs blobcore.Store) *Archiver {
	return &Archiver{blobs: blobs, nowFn: func() time.Time { return time.Now().UTC() }}
}

// SetNowFunc overrides the time provider, for tests.
func (a *Archiver) SetNowFunc(fn func() time.Time) { a.nowFn = fn }

// ArchiveCompendium stores a JSON snapshot of the pack. Keys are namespaced
// per pack and timestamped so repeated archives never collide.
func (a *Archiver) ArchiveCompendium(ctx context.Context, pack domain.Compendium, reason string) (blobcore.Info, error) {
	now := a.nowFn()
	artifact := Artifact{Pack: pack.Name, Reason: reason, ArchivedAt: now, Compendium: pack}
	payload, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return blobcore.Info{}, fmt.Errorf("encode archive for %s: %w", pack.Name, err)
	}
	key := fmt.Sprintf("compendium/%s/%s.json", pack.Name, now.Format("20060102T150405.000000000Z0700"))
	info, err := a.blobs.Put(ctx, key, bytes.NewReader(payload), blobcore.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"pack": pack.Name, "reason": reason},
	})
	if err != nil {
		return blobcore.Info{}, fmt.Errorf("store archive for %s: %w", pack.Name, err)
	}
	return info, nil
}

// ListPackArchives returns the stored snapshots for a pack.
func (a *Archiver) ListPackArchives(ctx context.Context, pack string) ([]blobcore.Info, error) {
	return a.blobs.List(ctx, "compendium/"+pack+"/")
}

// OpenStoreFromEnv selects the artifact backend from process environment:
// LINKCORE_ARCHIVE_DRIVER=fs|s3|memory (default fs), with
// LINKCORE_ARCHIVE_FS_ROOT for the filesystem root.
func OpenStoreFromEnv(ctx context.Context) (blobcore.Store, error) {
	driver := os.Getenv("LINKCORE_ARCHIVE_DRIVER")
	if driver == "" {
		driver = string(blobcore.DriverFilesystem)
	}
	switch blobcore.Driver(driver) {
	case blobcore.DriverFilesystem:
		return blobfs.New(os.Getenv("LINKCORE_ARCHIVE_FS_ROOT"))
	case blobcore.DriverS3:
		return blobs3.OpenFromEnv(ctx)
	case blobcore.DriverMemory:
		return blobmem.New(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}
