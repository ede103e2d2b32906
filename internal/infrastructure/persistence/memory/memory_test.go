package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/care-attendance/attendance-bot/internal/domain/otp"
	"github.com/care-attendance/attendance-bot/internal/domain/shared"
)

func TestMap_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMap[string, int]()

	_, ok := m.Get(ctx, "a")
	assert.False(t, ok)

	m.Put(ctx, "a", 1)
	m.Put(ctx, "a", 2)
	v, ok := m.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, m.Len())

	m.Delete(ctx, "a")
	assert.Equal(t, 0, m.Len())
}

func TestMap_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	m := NewMap[int, int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Put(ctx, i, i)
			m.Get(ctx, i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, m.Len())
}

func TestOtpStore(t *testing.T) {
	ctx := context.Background()
	s := NewOtpStore()

	_, err := s.Get(ctx, "s1")
	assert.ErrorIs(t, err, shared.ErrOtpNotIssued)

	require.NoError(t, s.Put(ctx, otp.Entry{SessionID: "s1", IssuedAt: time.Now(), CodeHash: []byte("a")}))
	require.NoError(t, s.Put(ctx, otp.Entry{SessionID: "s1", IssuedAt: time.Now(), CodeHash: []byte("b")}))

	e, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), e.CodeHash)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Delete(ctx, "s1"))
	assert.Equal(t, 0, s.Len())
}
