// Package otp issues and verifies one-time codes that confirm a student's
// contact during registration. Codes are kept only as bcrypt hashes.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
	"github.com/care-attendance/attendance-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TYPES
// ══════════════════════════════════════════════════════════════════════════════

// CodeLength is the number of digits in a code.
const CodeLength = 6

// DefaultExpiry is how long an issued code stays valid.
const DefaultExpiry = 5 * time.Minute

// Entry is the single live code of a session.
type Entry struct {
	SessionID          student.SessionID          `json:"session_id"`
	CodeHash           []byte                     `json:"code_hash"`
	IssuedAt           time.Time                  `json:"issued_at"`
	RegistrationNumber student.RegistrationNumber `json:"registration_number"`
	Contact            student.Contact            `json:"contact"`
}

// Store keeps at most one entry per session. Put replaces any previous entry.
type Store interface {
	Put(ctx context.Context, entry Entry) error
	// Get returns shared.ErrOtpNotIssued when the session has no entry.
	Get(ctx context.Context, sessionID student.SessionID) (Entry, error)
	Delete(ctx context.Context, sessionID student.SessionID) error
}

// Delivery is what a Deliverer sends.
type Delivery struct {
	SessionID student.SessionID
	Contact   student.Contact
	Code      string
	ValidFor  time.Duration
}

// Deliverer sends a code over an out-of-band channel (chat, email).
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery) error
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// ServiceConfig configures Service.
type ServiceConfig struct {
	Expiry     time.Duration
	BcryptCost int
	Clock      timeutil.Clock
	Logger     *slog.Logger

	// Generate overrides code generation (tests).
	Generate func() (string, error)
}

// DefaultServiceConfig returns production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Expiry:     DefaultExpiry,
		BcryptCost: bcrypt.DefaultCost,
	}
}

// Service issues, verifies and discards codes.
type Service struct {
	store     Store
	deliverer Deliverer
	config    ServiceConfig
	clock     timeutil.Clock
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(store Store, deliverer Deliverer, config ServiceConfig) *Service {
	if config.Expiry <= 0 {
		config.Expiry = DefaultExpiry
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.Generate == nil {
		config.Generate = GenerateCode
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Service{
		store:     store,
		deliverer: deliverer,
		config:    config,
		clock:     timeutil.OrSystem(config.Clock),
		logger:    config.Logger,
	}
}

// Expiry returns the validity window.
func (s *Service) Expiry() time.Duration {
	return s.config.Expiry
}

// Issue generates a fresh code, replaces the session's entry and dispatches
// the code. On dispatch failure the entry is removed and an ErrDelivery error
// is returned.
func (s *Service) Issue(ctx context.Context, sessionID student.SessionID, reg student.RegistrationNumber, contact student.Contact) error {
	code, err := s.config.Generate()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}

	entry := Entry{
		SessionID:          sessionID,
		CodeHash:           hash,
		IssuedAt:           s.clock.Now(),
		RegistrationNumber: reg,
		Contact:            contact,
	}
	if err := s.store.Put(ctx, entry); err != nil {
		return shared.WrapError("otp", "Issue", shared.ErrStorage, "failed to store code", err)
	}

	err = s.deliverer.Deliver(ctx, Delivery{
		SessionID: sessionID,
		Contact:   contact,
		Code:      code,
		ValidFor:  s.config.Expiry,
	})
	if err != nil {
		if delErr := s.store.Delete(ctx, sessionID); delErr != nil {
			s.logger.Warn("failed to discard undelivered code", "session_id", sessionID, "error", delErr)
		}
		return shared.WrapError("otp", "Issue", shared.ErrDelivery, "failed to deliver code", err)
	}

	s.logger.Info("otp issued", "session_id", sessionID, "registration_number", reg)
	return nil
}

// Verify checks input against the session's live code. Expiry is checked
// first; an expired or missing entry is removed and reported as ErrExpired.
// A wrong code leaves the entry in place and returns shared.ErrOtpMismatch.
// On success the entry is consumed.
func (s *Service) Verify(ctx context.Context, sessionID student.SessionID, input string) (Entry, error) {
	entry, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if shared.IsExpired(err) {
			return Entry{}, err
		}
		return Entry{}, shared.WrapError("otp", "Verify", shared.ErrStorage, "failed to load code", err)
	}

	if s.clock.Now().Sub(entry.IssuedAt) > s.config.Expiry {
		s.discard(ctx, sessionID)
		return Entry{}, shared.ErrOtpExpired
	}

	code := strings.TrimSpace(input)
	if !IsWellFormed(code) {
		return Entry{}, shared.ErrOtpMismatch
	}
	if bcrypt.CompareHashAndPassword(entry.CodeHash, []byte(code)) != nil {
		return Entry{}, shared.ErrOtpMismatch
	}

	s.discard(ctx, sessionID)
	return entry, nil
}

// Discard removes the session's entry, if any.
func (s *Service) Discard(ctx context.Context, sessionID student.SessionID) {
	s.discard(ctx, sessionID)
}

func (s *Service) discard(ctx context.Context, sessionID student.SessionID) {
	if err := s.store.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("failed to delete otp entry", "session_id", sessionID, "error", err)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

var codeSpace = big.NewInt(900000)

// GenerateCode returns a uniformly random code in [100000, 999999].
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// IsWellFormed reports whether s is exactly CodeLength ASCII digits.
func IsWellFormed(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
