package otp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
	"github.com/care-attendance/attendance-bot/pkg/timeutil"
)

type mapStore struct {
	mu      sync.Mutex
	entries map[student.SessionID]Entry
}

func newMapStore() *mapStore {
	return &mapStore{entries: make(map[student.SessionID]Entry)}
}

func (m *mapStore) Put(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.SessionID] = e
	return nil
}

func (m *mapStore) Get(_ context.Context, id student.SessionID) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return Entry{}, shared.ErrOtpNotIssued
	}
	return e, nil
}

func (m *mapStore) Delete(_ context.Context, id student.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

type recordingDeliverer struct {
	sent []Delivery
	err  error
}

func (r *recordingDeliverer) Deliver(_ context.Context, d Delivery) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, d)
	return nil
}

func sequence(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		c := codes[i%len(codes)]
		i++
		return c, nil
	}
}

func newTestService(store Store, d Deliverer, clock timeutil.Clock, codes ...string) *Service {
	return NewService(store, d, ServiceConfig{
		Expiry:     5 * time.Minute,
		BcryptCost: bcrypt.MinCost,
		Clock:      clock,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Generate:   sequence(codes...),
	})
}

func TestService_IssueAndVerify(t *testing.T) {
	ctx := context.Background()
	clock := timeutil.NewManualClock(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))
	store := newMapStore()
	d := &recordingDeliverer{}
	svc := newTestService(store, d, clock, "123456")

	require.NoError(t, svc.Issue(ctx, "s1", "810721104001", "9876543210"))
	require.Len(t, d.sent, 1)
	assert.Equal(t, "123456", d.sent[0].Code)
	assert.Equal(t, student.Contact("9876543210"), d.sent[0].Contact)

	stored, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.NotEqual(t, []byte("123456"), stored.CodeHash)

	_, err = svc.Verify(ctx, "s1", "654321")
	assert.ErrorIs(t, err, shared.ErrValidation)

	clock.Advance(5 * time.Minute)
	entry, err := svc.Verify(ctx, "s1", " 123456 ")
	require.NoError(t, err)
	assert.Equal(t, student.RegistrationNumber("810721104001"), entry.RegistrationNumber)

	_, err = svc.Verify(ctx, "s1", "123456")
	assert.True(t, shared.IsExpired(err), "code is consumed after success")
}

func TestService_VerifyExpired(t *testing.T) {
	ctx := context.Background()
	clock := timeutil.NewManualClock(time.Now())
	store := newMapStore()
	svc := newTestService(store, &recordingDeliverer{}, clock, "111111")

	require.NoError(t, svc.Issue(ctx, "s1", "810721104001", "9876543210"))
	clock.Advance(5*time.Minute + time.Second)

	_, err := svc.Verify(ctx, "s1", "111111")
	assert.ErrorIs(t, err, shared.ErrOtpExpired)

	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, shared.ErrOtpNotIssued)
}

func TestService_NewIssueInvalidatesPrevious(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMapStore(), &recordingDeliverer{}, timeutil.NewManualClock(time.Now()), "111111", "222222")

	require.NoError(t, svc.Issue(ctx, "s1", "810721104001", "9876543210"))
	require.NoError(t, svc.Issue(ctx, "s1", "810721104001", "9876543210"))

	_, err := svc.Verify(ctx, "s1", "111111")
	assert.ErrorIs(t, err, shared.ErrOtpMismatch)

	_, err = svc.Verify(ctx, "s1", "222222")
	assert.NoError(t, err)
}

func TestService_DeliveryFailureDiscardsEntry(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	svc := newTestService(store, &recordingDeliverer{err: errors.New("smtp down")}, nil, "111111")

	err := svc.Issue(ctx, "s1", "810721104001", "a@b.co")
	assert.True(t, shared.IsDelivery(err))

	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, shared.ErrOtpNotIssued)
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.True(t, IsWellFormed(code), code)
		assert.NotEqual(t, byte('0'), code[0])
	}
	assert.False(t, IsWellFormed("12345"))
	assert.False(t, IsWellFormed("12a456"))
}
