package feed

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/vidhive/vidhive/pkg/models"
)

// MemoryFeed is an in-process Feed with the same contract as RedisFeed.
// Used in tests and single-process deployments.
type MemoryFeed struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[int]chan models.ChangeEvent
	next int
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[uuid.UUID]map[int]chan models.ChangeEvent)}
}

func (f *MemoryFeed) Publish(ctx context.Context, event models.ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs[event.TenantID] {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full; the consumer re-syncs from baseline,
			// same as a dropped pub/sub message.
		}
	}
	return nil
}

func (f *MemoryFeed) Subscribe(ctx context.Context, tenantID uuid.UUID) (<-chan models.ChangeEvent, func(), error) {
	ch := make(chan models.ChangeEvent, subscriberBuffer)

	f.mu.Lock()
	id := f.next
	f.next++
	if f.subs[tenantID] == nil {
		f.subs[tenantID] = make(map[int]chan models.ChangeEvent)
	}
	f.subs[tenantID][id] = ch
	f.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs[tenantID], id)
			f.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe, nil
}
