package memory

import (
	"context"

	"github.com/care-attendance/attendance-bot/internal/domain/otp"
	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
)

// OtpStore keeps one-time code entries in process memory.
type OtpStore struct {
	entries *Map[student.SessionID, otp.Entry]
}

// NewOtpStore creates an empty OtpStore.
func NewOtpStore() *OtpStore {
	return &OtpStore{entries: NewMap[student.SessionID, otp.Entry]()}
}

// Put replaces the session's entry.
func (s *OtpStore) Put(ctx context.Context, entry otp.Entry) error {
	s.entries.Put(ctx, entry.SessionID, entry)
	return nil
}

// Get returns the session's entry or shared.ErrOtpNotIssued.
func (s *OtpStore) Get(ctx context.Context, sessionID student.SessionID) (otp.Entry, error) {
	e, ok := s.entries.Get(ctx, sessionID)
	if !ok {
		return otp.Entry{}, shared.ErrOtpNotIssued
	}
	return e, nil
}

// Delete removes the session's entry.
func (s *OtpStore) Delete(ctx context.Context, sessionID student.SessionID) error {
	s.entries.Delete(ctx, sessionID)
	return nil
}

// Len returns the number of live entries.
func (s *OtpStore) Len() int {
	return s.entries.Len()
}
