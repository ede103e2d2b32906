package redis

import (
	"context"
	"errors"
	"time"

	"github.com/care-attendance/attendance-bot/internal/domain/otp"
	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
)

// OtpStore keeps one-time code entries in Redis. Keys carry a TTL a little
// longer than the validity window so stale entries disappear on their own;
// expiry itself is still decided by the issue timestamp.
type OtpStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewOtpStore creates a store whose keys live for expiry plus a minute.
func NewOtpStore(cache *Cache, expiry time.Duration) *OtpStore {
	return &OtpStore{cache: cache, ttl: expiry + time.Minute}
}

// Put replaces the session's entry.
func (s *OtpStore) Put(ctx context.Context, entry otp.Entry) error {
	return s.cache.Set(ctx, OtpKey(entry.SessionID.String()), entry, s.ttl)
}

// Get returns the session's entry or shared.ErrOtpNotIssued.
func (s *OtpStore) Get(ctx context.Context, sessionID student.SessionID) (otp.Entry, error) {
	var entry otp.Entry
	err := s.cache.Get(ctx, OtpKey(sessionID.String()), &entry)
	if errors.Is(err, ErrCacheMiss) {
		return otp.Entry{}, shared.ErrOtpNotIssued
	}
	if err != nil {
		return otp.Entry{}, err
	}
	return entry, nil
}

// Delete removes the session's entry.
func (s *OtpStore) Delete(ctx context.Context, sessionID student.SessionID) error {
	return s.cache.Delete(ctx, OtpKey(sessionID.String()))
}
