package realtime

import "sync"

// Registry maps session ids to live channels. Background tasks that need the
// channel look it up here on every use instead of holding a reference that
// can dangle across a foreground/background transition.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]*Channel)}
}

func (r *Registry) Put(sessionID string, ch *Channel) {
	r.mu.Lock()
	r.channels[sessionID] = ch
	r.mu.Unlock()
}

func (r *Registry) Get(sessionID string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[sessionID]
	return ch, ok
}

func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	delete(r.channels, sessionID)
	r.mu.Unlock()
}
