package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock - управляемые часы
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSlidingWindow_EleventhCallDenied(t *testing.T) {
	clock := newFakeClock()
	sw := NewSlidingWindow(WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		require.True(t, sw.Allow("user-1", 10, time.Hour), "call %d should be allowed", i+1)
		clock.Advance(time.Minute)
	}

	assert.False(t, sw.Allow("user-1", 10, time.Hour), "11th call within the hour must be denied")
	assert.Equal(t, 0, sw.Remaining("user-1", 10, time.Hour))
}

func TestSlidingWindow_OneSlotFreedPerExpiry(t *testing.T) {
	clock := newFakeClock()
	sw := NewSlidingWindow(WithClock(clock.Now))

	// 10 вызовов с шагом в минуту: t0, t0+1m, ..., t0+9m
	for i := 0; i < 10; i++ {
		require.True(t, sw.Allow("user-1", 10, time.Hour))
		clock.Advance(time.Minute)
	}
	// сейчас t0+10m
	require.False(t, sw.Allow("user-1", 10, time.Hour))

	// ровно на границе окна метка t0 ещё учитывается (now - t <= window)
	clock.Advance(50 * time.Minute) // t0+60m
	assert.False(t, sw.Allow("user-1", 10, time.Hour))

	// сразу после выхода t0 из окна освобождается ровно один слот
	clock.Advance(time.Second)
	assert.True(t, sw.Allow("user-1", 10, time.Hour))
	assert.False(t, sw.Allow("user-1", 10, time.Hour))
}

func TestSlidingWindow_KeysIndependent(t *testing.T) {
	clock := newFakeClock()
	sw := NewSlidingWindow(WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		require.True(t, sw.Allow("alice", 3, time.Hour))
	}
	assert.False(t, sw.Allow("alice", 3, time.Hour))
	assert.True(t, sw.Allow("bob", 3, time.Hour))
	assert.Equal(t, 2, sw.Remaining("bob", 3, time.Hour))
}

func TestSlidingWindow_ZeroLimit(t *testing.T) {
	sw := NewSlidingWindow()
	assert.False(t, sw.Allow("user-1", 0, time.Hour))
	assert.Equal(t, time.Hour, sw.RetryAfter("user-1", 0, time.Hour))
}

func TestSlidingWindow_RetryAfter(t *testing.T) {
	clock := newFakeClock()
	sw := NewSlidingWindow(WithClock(clock.Now))

	assert.Zero(t, sw.RetryAfter("user-1", 2, time.Hour), "fresh key has a free slot")

	require.True(t, sw.Allow("user-1", 2, time.Hour))
	clock.Advance(10 * time.Minute)
	require.True(t, sw.Allow("user-1", 2, time.Hour))
	clock.Advance(5 * time.Minute)

	// первая метка выйдет из окна через 45 минут
	wait := sw.RetryAfter("user-1", 2, time.Hour)
	assert.Equal(t, 45*time.Minute+time.Nanosecond, wait)

	clock.Advance(wait)
	assert.Zero(t, sw.RetryAfter("user-1", 2, time.Hour))
	assert.True(t, sw.Allow("user-1", 2, time.Hour))
}

func TestSlidingWindow_Prune(t *testing.T) {
	clock := newFakeClock()
	sw := NewSlidingWindow(WithClock(clock.Now))

	sw.Allow("old", 10, time.Hour)
	clock.Advance(2 * time.Hour)
	sw.Allow("fresh", 10, time.Hour)

	assert.Equal(t, 2, sw.Len())
	assert.Equal(t, 1, sw.Prune(time.Hour))
	assert.Equal(t, 1, sw.Len())

	// удалённый ключ снова работает с пустой историей
	assert.Equal(t, 10, sw.Remaining("old", 10, time.Hour))
	assert.Equal(t, 9, sw.Remaining("fresh", 10, time.Hour))
}

func TestSlidingWindow_ConcurrentSameKey(t *testing.T) {
	sw := NewSlidingWindow()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sw.Allow("user-1", 10, time.Hour) {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), allowed.Load(), "exactly limit calls must pass under contention")
}

func TestSlidingWindow_ConcurrentWithPrune(t *testing.T) {
	clock := newFakeClock()
	sw := NewSlidingWindow(WithClock(clock.Now))

	var allowed atomic.Int32
	var wg sync.WaitGroup
	stop := make(chan struct{})

	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				sw.Prune(time.Hour)
			}
		}
	}()

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sw.Allow("user-1", 5, time.Hour) {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	close(stop)

	assert.Equal(t, int32(5), allowed.Load())
}

func BenchmarkSlidingWindow_Allow(b *testing.B) {
	sw := NewSlidingWindow()
	for i := 0; i < b.N; i++ {
		sw.Allow("user-1", 1<<30, time.Hour)
	}
}
