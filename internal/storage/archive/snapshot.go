// internal/storage/archive/snapshot.go
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/newthinker/feedd/internal/core"
)

// SnapshotPath returns the archive key for a snapshot, partitioned by
// day so offline tooling can list one day at a time.
func SnapshotPath(snap core.Snapshot) string {
	t := snap.RefreshedAt.UTC()
	return fmt.Sprintf("snapshots/%04d/%02d/%02d/%d.json",
		t.Year(), t.Month(), t.Day(), t.UnixMilli())
}

// WriteSnapshot serializes a published snapshot to the given backend.
func WriteSnapshot(ctx context.Context, s Storage, snap core.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	return s.Write(ctx, SnapshotPath(snap), data)
}

// ReadSnapshot loads one archived snapshot.
func ReadSnapshot(ctx context.Context, s Storage, path string) (core.Snapshot, error) {
	data, err := s.Read(ctx, path)
	if err != nil {
		return core.Snapshot{}, err
	}
	var snap core.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return core.Snapshot{}, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return snap, nil
}

// ListDay returns the archived snapshot paths for one UTC day, oldest
// first.
func ListDay(ctx context.Context, s Storage, year int, month int, day int) ([]string, error) {
	prefix := fmt.Sprintf("snapshots/%04d/%02d/%02d", year, month, day)
	paths, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
