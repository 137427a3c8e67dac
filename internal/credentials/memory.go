package credentials

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero: never
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryBackend keeps configs in process memory. With a positive TTL
// entries expire and a background sweeper removes them.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	ttl   time.Duration

	stopSweep chan struct{}
	closeOnce sync.Once
}

// NewMemoryBackend creates a memory backend. ttl <= 0 disables expiry.
func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	b := &MemoryBackend{
		items:     make(map[string]memoryEntry),
		ttl:       ttl,
		stopSweep: make(chan struct{}),
	}
	if ttl > 0 {
		go b.sweep(sweepInterval(ttl))
	}
	return b
}

func sweepInterval(ttl time.Duration) time.Duration {
	return min(max(ttl/2, 10*time.Millisecond), 5*time.Minute)
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	entry, ok := b.items[key]
	b.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	now := time.Now()
	if entry.expired(now) {
		b.mu.Lock()
		if e, exists := b.items[key]; exists && e.expired(now) {
			delete(b.items, key)
		}
		b.mu.Unlock()
		return nil, false, nil
	}

	return append([]byte(nil), entry.value...), true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if b.ttl > 0 {
		entry.expiresAt = time.Now().Add(b.ttl)
	}

	b.mu.Lock()
	b.items[key] = entry
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.items, key)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	b.items = make(map[string]memoryEntry)
	b.mu.Unlock()
	return nil
}

// Len returns the number of entries held, expired or not.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

func (b *MemoryBackend) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			b.mu.Lock()
			for k, v := range b.items {
				if v.expired(now) {
					delete(b.items, k)
				}
			}
			b.mu.Unlock()
		case <-b.stopSweep:
			return
		}
	}
}

// Close stops the sweeper.
func (b *MemoryBackend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopSweep)
	})
	return nil
}
