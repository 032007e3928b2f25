package httpserver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/student-portal/internal/auth"
	"github.com/and161185/student-portal/internal/blob"
	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/metrics"
	"github.com/and161185/student-portal/internal/notify"
	"github.com/and161185/student-portal/internal/repository"
	"github.com/and161185/student-portal/internal/service"
	"github.com/and161185/student-portal/internal/session"
)

// Backend supplies what every client session is built from.
type Backend struct {
	Store repository.Store
	Blobs blob.Store
	// NewProvider returns a provider handle with its own session slot.
	NewProvider func() auth.Provider
	Notifier    notify.Notifier
}

// Client is the state kept for one browser.
type Client struct {
	Manager *session.Manager
	Data    service.DataService

	prov     auth.Provider
	lastSeen time.Time
}

// Registry keeps one session manager per client id.
type Registry struct {
	be  Backend
	ttl time.Duration
	log *zap.Logger
	now func() time.Time

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
}

// NewRegistry returns an empty registry. Clients idle for longer than ttl are
// dropped by Sweep.
func NewRegistry(be Backend, ttl time.Duration, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		be:      be,
		ttl:     ttl,
		log:     log,
		now:     time.Now,
		clients: make(map[string]*Client),
	}
}

// Get returns the client for id, creating and starting it on first use.
func (r *Registry) Get(ctx context.Context, id string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errs.ErrClosed
	}
	if c, ok := r.clients[id]; ok {
		c.lastSeen = r.now()
		return c, nil
	}

	prov := r.be.NewProvider()
	data := service.NewDataService(r.be.Store, r.be.Blobs, prov, r.log)
	m := session.New(session.Deps{
		Auth:     prov,
		Data:     data,
		Notifier: r.be.Notifier,
		Log:      r.log.With(zap.String("client", shortID(id))),
	})
	if err := m.Start(ctx); err != nil {
		closeProvider(prov)
		return nil, err
	}
	c := &Client{Manager: m, Data: data, prov: prov, lastSeen: r.now()}
	r.clients[id] = c
	metrics.ManagerOpened()
	return c, nil
}

// Drop tears the client down.
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()
	if ok {
		r.release(c)
	}
}

// Len reports the number of live clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Sweep drops clients idle for longer than the ttl and returns how many went.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	var idle []*Client

	r.mu.Lock()
	for id, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			idle = append(idle, c)
			delete(r.clients, id)
		}
	}
	r.mu.Unlock()

	for _, c := range idle {
		r.release(c)
	}
	if len(idle) > 0 {
		r.log.Debug("idle sessions dropped", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	every := r.ttl / 2
	if every < time.Second {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

// Close releases every client; Get fails afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	all := make([]*Client, 0, len(r.clients))
	for id, c := range r.clients {
		all = append(all, c)
		delete(r.clients, id)
	}
	r.mu.Unlock()

	for _, c := range all {
		r.release(c)
	}
}

func (r *Registry) release(c *Client) {
	c.Manager.Close()
	closeProvider(c.prov)
	metrics.ManagerClosed()
}

func closeProvider(p auth.Provider) {
	if c, ok := p.(interface{ Close() }); ok {
		c.Close()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
