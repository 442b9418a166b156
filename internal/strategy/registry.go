package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/christophzehentbauerz/trade/internal/core"
	"go.uber.org/zap"
)

// Factory builds a fresh strategy for one run. Every evaluation gets its
// own instance so indicator caches are never shared between runs.
type Factory func(p Params, logger *zap.Logger) (Strategy, error)

// Registry maps strategy names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger ...*zap.Logger) *Registry {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Registry{
		factories: make(map[string]Factory),
		logger:    l,
	}
}

// Register adds a factory under name, replacing any previous one
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get retrieves a factory by name
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Names returns all registered names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New validates p and builds the named strategy
func (r *Registry) New(name string, p Params) (Strategy, error) {
	f, ok := r.Get(name)
	if !ok {
		return nil, core.WrapError(core.ErrInvalidParams, fmt.Errorf("unknown strategy %q", name))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return f(p, r.logger.With(zap.String("strategy", name)))
}
