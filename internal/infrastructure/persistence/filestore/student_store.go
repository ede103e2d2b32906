package filestore

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
)

// StudentStore is a student.Repository backed by one JSON file.
// Reads are served from the index; every Upsert flushes before it returns.
type StudentStore struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	byReg   map[student.RegistrationNumber]*student.Record
	version fileVersion
}

// OpenStudentStore loads path (if it exists) into memory.
func OpenStudentStore(path string, logger *slog.Logger) (*StudentStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &StudentStore{
		path:   path,
		logger: logger,
		byReg:  make(map[student.RegistrationNumber]*student.Record),
	}
	if err := s.reloadLocked(); err != nil {
		return nil, shared.WrapError("student", "Open", shared.ErrStorage, "failed to read student file", err)
	}

	logger.Info("student store loaded", "path", path, "records", len(s.byReg))
	return s, nil
}

// GetBySession returns the record delivered to sessionID.
func (s *StudentStore) GetBySession(_ context.Context, sessionID student.SessionID) (*student.Record, error) {
	if err := s.refresh(); err != nil {
		return nil, shared.WrapError("student", "GetBySession", shared.ErrStorage, "failed to reload student file", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.byReg {
		if r.SessionID == sessionID {
			return r.Clone(), nil
		}
	}
	return nil, shared.ErrStudentNotFound
}

// GetByRegistration returns the record with the given registration number.
func (s *StudentStore) GetByRegistration(_ context.Context, reg student.RegistrationNumber) (*student.Record, error) {
	if err := s.refresh(); err != nil {
		return nil, shared.WrapError("student", "GetByRegistration", shared.ErrStorage, "failed to reload student file", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byReg[reg]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return r.Clone(), nil
}

// Upsert inserts or replaces the record keyed by registration number.
// Any other record bound to the same session is dropped so a session maps
// to at most one record. The index only changes if the flush succeeds.
func (s *StudentStore) Upsert(_ context.Context, record *student.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadLocked(); err != nil {
		return shared.WrapError("student", "Upsert", shared.ErrStorage, "failed to reload student file", err)
	}

	now := time.Now().UTC()
	next := make(map[student.RegistrationNumber]*student.Record, len(s.byReg)+1)
	for reg, r := range s.byReg {
		if r.SessionID == record.SessionID && reg != record.RegistrationNumber {
			continue
		}
		next[reg] = r
	}

	r := record.Clone()
	if prev, ok := s.byReg[r.RegistrationNumber]; ok {
		r.CreatedAt = prev.CreatedAt
	} else if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	next[r.RegistrationNumber] = r

	ver, err := writeJSONAtomic(s.path, sortedRecords(next))
	if err != nil {
		return shared.WrapError("student", "Upsert", shared.ErrStorage, "failed to flush student file", err)
	}
	s.byReg = next
	s.version = ver

	s.logger.Debug("student upserted", "registration_number", r.RegistrationNumber, "session_id", r.SessionID)
	return nil
}

// ListAll returns copies of all records ordered by registration number,
// including records written by another process since the last read.
func (s *StudentStore) ListAll(_ context.Context) ([]*student.Record, error) {
	if err := s.refresh(); err != nil {
		return nil, shared.WrapError("student", "ListAll", shared.ErrStorage, "failed to reload student file", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := sortedRecords(s.byReg)
	for i, r := range out {
		out[i] = r.Clone()
	}
	return out, nil
}

// refresh reloads the index if the file changed since it was last seen.
func (s *StudentStore) refresh() error {
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

// reloadLocked reads the file into the index when its version changed.
func (s *StudentStore) reloadLocked() error {
	ver, err := statVersion(s.path)
	if err != nil {
		return err
	}
	if ver.same(s.version) && s.version.info != nil {
		return nil
	}

	var records []*student.Record
	if err := readJSON(s.path, &records); err != nil {
		return err
	}
	byReg := make(map[student.RegistrationNumber]*student.Record, len(records))
	for _, r := range records {
		if r == nil || r.RegistrationNumber == "" {
			continue
		}
		byReg[r.RegistrationNumber] = r
	}
	s.logger.Debug("student store reloaded", "path", s.path, "records", len(byReg))
	s.byReg = byReg
	s.version = ver
	return nil
}

func sortedRecords(m map[student.RegistrationNumber]*student.Record) []*student.Record {
	out := make([]*student.Record, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RegistrationNumber < out[j].RegistrationNumber
	})
	return out
}
