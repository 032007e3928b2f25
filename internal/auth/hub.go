package auth

import "sync"

// Hub is a set of listeners. The zero value is ready to use.
type Hub struct {
	mu   sync.RWMutex
	next int
	subs map[int]Listener
}

// Subscribe adds fn and returns a func removing it. Calling the func twice is a no-op.
func (h *Hub) Subscribe(fn Listener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]Listener)
	}
	id := h.next
	h.next++
	h.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Emit calls every listener synchronously in the caller's goroutine.
func (h *Hub) Emit(ev Event, s *Session) {
	h.mu.RLock()
	fns := make([]Listener, 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(ev, s)
	}
}

// Len returns the number of active listeners.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
