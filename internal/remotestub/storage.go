// Package remotestub эталонная реализация удалённого сервиса контента в памяти:
// для локальной разработки (backoffice stub) и интеграционных тестов.
package remotestub

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"backoffice/internal/entity"
	"backoffice/internal/remote"
)

// Record запись сервиса; наружу уходит плоским entity.
type Record struct {
	ID        string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	Data      map[string]any
}

func (r *Record) toEntity() entity.Entity {
	attrs := make(map[string]any, len(r.Data)+2)
	for k, v := range r.Data {
		attrs[k] = v
	}
	attrs["created_at"] = r.CreatedAt.Format(time.RFC3339)
	attrs["updated_at"] = r.UpdatedAt.Format(time.RFC3339)
	return entity.New(entity.ServerID(r.ID), attrs)
}

// Storage коллекции по видам, в порядке создания.
type Storage struct {
	mu      sync.RWMutex
	data    map[string]map[string]*Record
	order   map[string][]string
	entropy io.Reader
	now     func() time.Time
}

func NewStorage() *Storage {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Storage{
		data:    make(map[string]map[string]*Record),
		order:   make(map[string][]string),
		entropy: ulid.Monotonic(src, 0),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Storage) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

// Seed кладёт записи с заданными id (для тестов и демо-данных).
func (s *Storage) Seed(kind string, items ...entity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		id := it.ID.Value
		if id == "" {
			id = s.newID()
		}
		s.put(kind, id, it.Clone().Attrs)
	}
}

func (s *Storage) put(kind, id string, attrs map[string]any) *Record {
	m := s.data[kind]
	if m == nil {
		m = make(map[string]*Record)
		s.data[kind] = m
	}
	now := s.now()
	rec := &Record{ID: id, Version: 1, CreatedAt: now, UpdatedAt: now, Data: clean(attrs)}
	if _, exists := m[id]; !exists {
		s.order[kind] = append(s.order[kind], id)
	}
	m[id] = rec
	return rec
}

// служебные поля приходят от клиента, но принадлежат сервису
func clean(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		switch k {
		case entity.KeyID, entity.KeyProvisional, "created_at", "updated_at":
			continue
		}
		out[k] = v
	}
	return out
}

func (s *Storage) Len(kind string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[kind])
}

// ==== remote.Service ====

func (s *Storage) List(_ context.Context, kind string) ([]entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.Entity, 0, len(s.order[kind]))
	for _, id := range s.order[kind] {
		out = append(out, s.data[kind][id].toEntity())
	}
	return out, nil
}

func (s *Storage) Create(_ context.Context, kind string, attrs map[string]any) (entity.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(kind, s.newID(), attrs).toEntity(), nil
}

// Update сливает attrs с записью (PUT и PATCH ведут себя одинаково).
func (s *Storage) Update(_ context.Context, kind, id string, attrs map[string]any) (entity.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.data[kind][id]
	if rec == nil {
		return entity.Entity{}, notFound("update", kind, id)
	}
	for k, v := range clean(attrs) {
		rec.Data[k] = v
	}
	rec.Version++
	rec.UpdatedAt = s.now()
	return rec.toEntity(), nil
}

func (s *Storage) Delete(_ context.Context, kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[kind][id] == nil {
		return notFound("delete", kind, id)
	}
	delete(s.data[kind], id)
	ids := s.order[kind]
	for i, x := range ids {
		if x == id {
			s.order[kind] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func notFound(op, kind, id string) error {
	return &entity.RemoteError{Op: op, Kind: kind, ID: id, Status: 404,
		Cause: entity.ErrRemoteRejected, Err: fmt.Errorf("%s %s not found", kind, id)}
}

var _ remote.Service = (*Storage)(nil)
