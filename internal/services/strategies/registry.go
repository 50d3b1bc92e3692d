package strategies

import (
	"fmt"
	"sort"
	"sync"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/service"
)

// Registry is a concurrency-safe code -> strategy lookup.
type Registry struct {
	mu    sync.RWMutex
	items map[string]service.Strategy
}

func NewRegistry(strategies ...service.Strategy) *Registry {
	r := &Registry{items: make(map[string]service.Strategy, len(strategies))}
	for _, s := range strategies {
		_ = r.Register(s)
	}
	return r
}

// Default returns a registry holding the built-in strategies.
func Default() *Registry {
	return NewRegistry(NewMACross(), NewBreakout(), NewEngulfing())
}

func (r *Registry) Register(s service.Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[s.Code()]; ok {
		return fmt.Errorf("strategy %s already registered", s.Code())
	}
	r.items[s.Code()] = s
	return nil
}

func (r *Registry) Get(code string) (service.Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[code]
	return s, ok
}

func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.items))
	for code := range r.items {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Resolve looks up every code, failing on the first unknown one.
func Resolve(reg service.StrategyRegistry, codes []string) ([]service.Strategy, error) {
	out := make([]service.Strategy, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if seen[code] {
			continue
		}
		s, ok := reg.Get(code)
		if !ok {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownStrategy, code)
		}
		seen[code] = true
		out = append(out, s)
	}
	return out, nil
}
