package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow - лимитер по скользящему окну с журналом меток времени на каждый ключ
//
// Алгоритм:
// - Для ключа хранится список меток принятых вызовов
// - При проверке удаляются метки старше window (метка t живёт, пока now - t <= window)
// - Вызов принимается, если оставшихся меток меньше limit; тогда записывается now
//
// Состояние только в памяти процесса и пропадает при рестарте.
// Разные ключи не блокируют друг друга: у каждого ключа свой mutex.
//
// Использование:
//
//	limiter := NewSlidingWindow()
//	if !limiter.Allow(userID, 10, time.Hour) {
//	    // 429
//	}
type SlidingWindow struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	mu     sync.Mutex
	stamps []time.Time
	// удалён Prune'ом; владелец должен взять bucket заново
	dead bool
}

// Option настраивает SlidingWindow
type Option func(*SlidingWindow)

// WithClock подменяет источник времени (для тестов)
func WithClock(now func() time.Time) Option {
	return func(sw *SlidingWindow) {
		sw.now = now
	}
}

// NewSlidingWindow создаёт пустой лимитер
func NewSlidingWindow(opts ...Option) *SlidingWindow {
	sw := &SlidingWindow{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(sw)
	}
	return sw
}

// lock возвращает захваченный bucket ключа. Вызывающий обязан сделать b.mu.Unlock().
func (sw *SlidingWindow) lock(key string) *bucket {
	for {
		b := sw.bucketFor(key)
		b.mu.Lock()
		if !b.dead {
			return b
		}
		b.mu.Unlock()
	}
}

// bucketFor возвращает bucket ключа, создавая его при первом обращении
func (sw *SlidingWindow) bucketFor(key string) *bucket {
	sw.mu.RLock()
	b, ok := sw.buckets[key]
	sw.mu.RUnlock()
	if ok {
		return b
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	if b, ok = sw.buckets[key]; !ok {
		b = &bucket{}
		sw.buckets[key] = b
	}
	return b
}

// evict удаляет устаревшие метки. Вызывается под b.mu.
func (b *bucket) evict(now time.Time, window time.Duration) {
	i := 0
	for i < len(b.stamps) && now.Sub(b.stamps[i]) > window {
		i++
	}
	if i > 0 {
		b.stamps = append(b.stamps[:0], b.stamps[i:]...)
	}
}

// Allow проверяет и, если вызов разрешён, учитывает его.
// limit <= 0 запрещает всё.
func (sw *SlidingWindow) Allow(key string, limit int, window time.Duration) bool {
	if limit <= 0 {
		return false
	}

	b := sw.lock(key)
	defer b.mu.Unlock()
	now := sw.now()

	b.evict(now, window)
	if len(b.stamps) >= limit {
		return false
	}
	b.stamps = append(b.stamps, now)
	return true
}

// Remaining возвращает число вызовов, доступных прямо сейчас, не расходуя их
func (sw *SlidingWindow) Remaining(key string, limit int, window time.Duration) int {
	b := sw.lock(key)
	defer b.mu.Unlock()
	now := sw.now()

	b.evict(now, window)
	if left := limit - len(b.stamps); left > 0 {
		return left
	}
	return 0
}

// RetryAfter возвращает, через сколько освободится слот. 0 - слот свободен сейчас.
func (sw *SlidingWindow) RetryAfter(key string, limit int, window time.Duration) time.Duration {
	if limit <= 0 {
		return window
	}

	b := sw.lock(key)
	defer b.mu.Unlock()
	now := sw.now()

	b.evict(now, window)
	if len(b.stamps) < limit || len(b.stamps) == 0 {
		return 0
	}

	// слот освободится, когда самая старая из учитываемых меток выйдет из окна
	oldest := b.stamps[len(b.stamps)-limit]
	wait := oldest.Add(window).Sub(now)
	if wait <= 0 {
		return time.Nanosecond
	}
	return wait + time.Nanosecond
}

// Prune удаляет ключи, у которых не осталось меток в окне.
// Возвращает число удалённых ключей.
func (sw *SlidingWindow) Prune(window time.Duration) int {
	now := sw.now()

	sw.mu.Lock()
	defer sw.mu.Unlock()

	removed := 0
	for key, b := range sw.buckets {
		b.mu.Lock()
		b.evict(now, window)
		empty := len(b.stamps) == 0
		if empty {
			b.dead = true
		}
		b.mu.Unlock()

		if empty {
			delete(sw.buckets, key)
			removed++
		}
	}
	return removed
}

// Len возвращает число отслеживаемых ключей
func (sw *SlidingWindow) Len() int {
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return len(sw.buckets)
}
