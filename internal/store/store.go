// Package store хранилище сущностей одного вида: коллекция в памяти, CRUD через
// политику синхронизации и производные выборки (featured, recent, by id).
package store

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"backoffice/internal/entity"
	"backoffice/internal/mirror"
	"backoffice/internal/remote"
	"backoffice/internal/schema"
	"backoffice/internal/syncer"
)

// Store владеет коллекцией одного вида. Создаётся явно и передаётся по ссылке.
type Store struct {
	schema *schema.Schema
	policy *syncer.Policy
	log    *slog.Logger
}

type options struct {
	policy []syncer.Option
	log    *slog.Logger
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.log = l
		o.policy = append(o.policy, syncer.WithLogger(l))
	}
}

func WithNotifier(n syncer.Notifier) Option {
	return func(o *options) { o.policy = append(o.policy, syncer.WithNotifier(n)) }
}

// WithPolicyOptions прочие настройки политики (seed и т.п.).
func WithPolicyOptions(opts ...syncer.Option) Option {
	return func(o *options) { o.policy = append(o.policy, opts...) }
}

// New создаёт Store и наполняет коллекцию из зеркала. Недоступное зеркало
// не мешает созданию: сессия просто живёт в памяти.
func New(ctx context.Context, s *schema.Schema, svc remote.Service, m mirror.Mirror, opts ...Option) *Store {
	o := options{log: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	st := &Store{
		schema: s,
		policy: syncer.New(s.Kind, svc, m, o.policy...),
		log:    o.log.With("kind", s.Kind),
	}
	if err := st.policy.Hydrate(ctx); err != nil {
		st.log.Warn("hydrate from mirror failed", "err", err)
	}
	return st
}

func (s *Store) Kind() string { return s.schema.Kind }

func (s *Store) Schema() *schema.Schema { return s.schema }

func (s *Store) Degraded() bool { return s.policy.Degraded() }

// ==== CRUD ====

// FetchAll обновляет коллекцию с сервера (или из локальных источников).
func (s *Store) FetchAll(ctx context.Context) ([]entity.Entity, error) {
	return s.policy.FetchAll(ctx)
}

// Add создаёт запись. Ошибка: только для failed; local-fallback ошибкой не считается,
// причина лежит в Envelope.Err.
func (s *Store) Add(ctx context.Context, attrs map[string]any) (entity.Envelope, error) {
	env := s.policy.Create(ctx, attrs)
	if env.Outcome == entity.Failed {
		return env, env.Err
	}
	return env, nil
}

// Edit правит запись; неизвестный id: ошибка entity.ErrNotFound.
func (s *Store) Edit(ctx context.Context, id string, attrs map[string]any) (entity.Envelope, error) {
	env := s.policy.Update(ctx, id, attrs)
	if env.Outcome == entity.Failed {
		return env, env.Err
	}
	return env, nil
}

// RemoveResult ответ remove для UI.
type RemoveResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Outcome entity.Outcome `json:"outcome"`
}

// Remove удаляет запись. Неизвестный id: Success=false и ошибка ErrNotFound.
func (s *Store) Remove(ctx context.Context, id string) (RemoveResult, error) {
	env := s.policy.Delete(ctx, id)
	switch env.Outcome {
	case entity.RemoteCommitted:
		return RemoveResult{Success: true, Message: s.schema.Labels.Singular + " deleted", Outcome: env.Outcome}, nil
	case entity.LocalFallback:
		return RemoveResult{Success: true, Message: syncer.MsgDeletedLocally, Outcome: env.Outcome}, nil
	}
	msg := "delete failed"
	if errors.Is(env.Err, entity.ErrNotFound) {
		msg = s.schema.Labels.Singular + " not found"
	}
	return RemoveResult{Success: false, Message: msg, Outcome: env.Outcome}, env.Err
}

// ==== Чтение ====

func (s *Store) All() []entity.Entity { return s.policy.Snapshot() }

func (s *Store) Len() int { return s.policy.Collection().Len() }

func (s *Store) ByID(id string) (entity.Entity, bool) {
	return s.policy.Collection().Get(id)
}

// Featured записи с истинным флагом FeaturedField (по умолчанию "featured").
// limit <= 0: без ограничения.
func (s *Store) Featured(limit int) []entity.Entity {
	field := s.schema.FeaturedField
	if field == "" {
		field = "featured"
	}
	var out []entity.Entity
	for _, e := range s.All() {
		if !e.Bool(field) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Recent по убыванию даты dateField (пусто: DateField схемы). Записи без даты
// или с нераспознанной датой считаются самыми старыми; порядок стабилен.
func (s *Store) Recent(limit int, dateField string) []entity.Entity {
	if dateField == "" {
		dateField = s.schema.DateField
	}
	items := s.All()
	keys := make([]time.Time, len(items))
	for i, e := range items {
		if t, ok := e.Time(dateField); ok {
			keys[i] = t
		}
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return keys[idx[a]].After(keys[idx[b]]) })

	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	out := make([]entity.Entity, 0, limit)
	for _, i := range idx[:limit] {
		out = append(out, items[i])
	}
	return out
}
