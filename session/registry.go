package session

import (
	"context"
	"sync"

	"cosmossdk.io/log"

	"github.com/openalpha/classdex/metrics"
)

// Registry maps join codes to live sessions. Sessions are created on
// first use and live until the process context ends; there is no
// teardown path, matching the one-class-period lifetime of a game.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	clickSize  int64
	bookEngine string

	ctx     context.Context
	logger  log.Logger
	metrics *metrics.Collector
}

func NewRegistry(ctx context.Context, clickSize int64, bookEngine string, logger log.Logger) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		clickSize:  clickSize,
		bookEngine: bookEngine,
		ctx:        ctx,
		logger:     logger,
		metrics:    metrics.GetCollector(),
	}
}

// CreateOrGet returns the session for code, starting its worker on
// first use. The bool reports whether this call created it.
func (r *Registry) CreateOrGet(code string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[code]
	r.mu.RUnlock()
	if ok {
		return s, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[code]; ok {
		return s, false
	}
	s = newSession(code, r.clickSize, r.bookEngine, r.logger)
	r.sessions[code] = s
	go s.run(r.ctx)
	r.logger.Info("game created", "code", code, "engine", r.bookEngine)
	r.metrics.RecordGameCreated(len(r.sessions))
	return s, true
}

// Lookup returns the session for code when one exists.
func (r *Registry) Lookup(code string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[code]
	return s, ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
