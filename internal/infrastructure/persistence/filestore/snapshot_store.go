package filestore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/care-attendance/attendance-bot/internal/domain/attendance"
	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
)

// SnapshotStore is an attendance.SnapshotRepository backed by one JSON file.
type SnapshotStore struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	snapshots attendance.Snapshots
	version   fileVersion
}

// OpenSnapshotStore loads path (if it exists) into memory.
func OpenSnapshotStore(path string, logger *slog.Logger) (*SnapshotStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &SnapshotStore{path: path, logger: logger, snapshots: make(attendance.Snapshots)}
	if err := s.reloadLocked(); err != nil {
		return nil, shared.WrapError("attendance", "Open", shared.ErrStorage, "failed to read snapshot file", err)
	}

	logger.Info("snapshot store loaded", "path", path, "snapshots", len(s.snapshots))
	return s, nil
}

// Get returns the snapshot for reg.
func (s *SnapshotStore) Get(_ context.Context, reg student.RegistrationNumber) (attendance.Snapshot, error) {
	if err := s.refresh(); err != nil {
		return attendance.Snapshot{}, shared.WrapError("attendance", "Get", shared.ErrStorage, "failed to reload snapshot file", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[reg]
	if !ok {
		return attendance.Snapshot{}, shared.ErrSnapshotNotFound
	}
	return snap, nil
}

// LoadAll returns a copy of every snapshot, including ones written by another
// process since the last read.
func (s *SnapshotStore) LoadAll(_ context.Context) (attendance.Snapshots, error) {
	if err := s.refresh(); err != nil {
		return nil, shared.WrapError("attendance", "LoadAll", shared.ErrStorage, "failed to reload snapshot file", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshots.Clone(), nil
}

// SetAll replaces the whole store in one file write.
func (s *SnapshotStore) SetAll(_ context.Context, snapshots attendance.Snapshots) error {
	next := snapshots.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	ver, err := writeJSONAtomic(s.path, next)
	if err != nil {
		return shared.WrapError("attendance", "SetAll", shared.ErrStorage, "failed to write snapshot file", err)
	}
	s.snapshots = next
	s.version = ver
	return nil
}

// refresh reloads the index if the file changed since it was last seen.
func (s *SnapshotStore) refresh() error {
	cur, err := statVersion(s.path)
	if err != nil {
		return err
	}
	s.mu.RLock()
	fresh := cur.same(s.version)
	s.mu.RUnlock()
	if fresh {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked()
}

// reloadLocked reads the file into the index. The version is taken before
// the read so a concurrent replacement is picked up on the next refresh.
func (s *SnapshotStore) reloadLocked() error {
	ver, err := statVersion(s.path)
	if err != nil {
		return err
	}
	if ver.same(s.version) && s.version.info != nil {
		return nil
	}

	snaps := make(attendance.Snapshots)
	if err := readJSON(s.path, &snaps); err != nil {
		return err
	}
	s.logger.Debug("snapshot store reloaded", "path", s.path, "snapshots", len(snaps))
	s.snapshots = snaps
	s.version = ver
	return nil
}
