package playback

import (
	"sync"

	"github.com/google/uuid"
)

// Observer receives session snapshots. Observers are read-only: they must not
// call controller commands from inside the callback.
type Observer func(Session)

// observerHub manages observer subscriptions and delivers snapshots in
// version order.
type observerHub struct {
	deliverMu   sync.Mutex
	lastVersion uint64

	mu   sync.RWMutex
	subs map[string]Observer
}

func newObserverHub() *observerHub {
	return &observerHub{
		subs: make(map[string]Observer),
	}
}

// subscribe adds a new observer and returns its subscription ID.
func (h *observerHub) subscribe(fn Observer) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.New().String()
	h.subs[id] = fn
	return id
}

// unsubscribe removes a subscription.
func (h *observerHub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// broadcast delivers s to every observer on the calling goroutine.
// Snapshots older than the last delivered one are dropped.
func (h *observerHub) broadcast(s Session) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	if s.Version <= h.lastVersion {
		return
	}
	h.lastVersion = s.Version

	h.mu.RLock()
	subs := make([]Observer, 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	for _, fn := range subs {
		fn(s)
	}
}

// count returns the number of active observers.
func (h *observerHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// close removes all subscriptions.
func (h *observerHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = make(map[string]Observer)
}

// memoryLikes is the LikeStore used when none is configured. Nothing persists.
type memoryLikes struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func newMemoryLikes() *memoryLikes {
	return &memoryLikes{ids: make(map[string]struct{})}
}

func (m *memoryLikes) Toggle(trackID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ids[trackID]; ok {
		delete(m.ids, trackID)
		return false, nil
	}
	m.ids[trackID] = struct{}{}
	return true, nil
}

func (m *memoryLikes) Contains(trackID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ids[trackID]
	return ok
}

func (m *memoryLikes) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.ids))
	for id := range m.ids {
		ids = append(ids, id)
	}
	return ids
}
