package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"backoffice/internal/mirror"
	"backoffice/internal/remote"
	"backoffice/internal/schema"
	"backoffice/internal/syncer"
)

// Set по одному Store на каждый вид из реестра.
type Set struct {
	registry *schema.Registry
	stores   map[string]*Store
	order    []string
}

// Все Store пишут в одно зеркало m и делят его состояние: отказ зеркала
// замечается один раз за сессию.
func NewSet(ctx context.Context, reg *schema.Registry, svc remote.Service, m mirror.Mirror, opts ...Option) *Set {
	set := &Set{registry: reg, stores: make(map[string]*Store)}
	shared := WithPolicyOptions(syncer.WithMirrorHealth(syncer.NewMirrorHealth()))
	for _, s := range reg.Schemas() {
		set.stores[s.Kind] = New(ctx, s, svc, m, append([]Option{shared}, opts...)...)
		set.order = append(set.order, s.Kind)
	}
	return set
}

// Get ищет Store по имени вида с той же нормализацией, что и реестр.
func (s *Set) Get(kind string) (*Store, bool) {
	sch, ok := s.registry.Lookup(kind)
	if !ok {
		return nil, false
	}
	st, ok := s.stores[sch.Kind]
	return st, ok
}

func (s *Set) Registry() *schema.Registry { return s.registry }

// Stores в порядке реестра.
func (s *Set) Stores() []*Store {
	out := make([]*Store, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.stores[k])
	}
	return out
}

// FetchAll обновляет все виды параллельно; ошибки собираются вместе.
func (s *Set) FetchAll(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, st := range s.Stores() {
		wg.Add(1)
		go func(st *Store) {
			defer wg.Done()
			if _, err := st.FetchAll(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", st.Kind(), err))
				mu.Unlock()
			}
		}(st)
	}
	wg.Wait()
	return errors.Join(errs...)
}
