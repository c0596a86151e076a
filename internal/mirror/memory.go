package mirror

import (
	"context"
	"sync"

	"backoffice/internal/entity"
)

// Memory зеркало в памяти процесса. Значения хранятся сериализованными,
// чтобы снимок не делил карты атрибутов с коллекцией.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
	err  error
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Fail заставляет все последующие операции возвращать err (nil: снять).
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Put кладёт сырое значение (для тестов битых данных).
func (m *Memory) Put(key string, raw []byte) {
	m.mu.Lock()
	m.data[key] = append([]byte(nil), raw...)
	m.mu.Unlock()
}

func (m *Memory) Load(_ context.Context, key string) ([]entity.Entity, error) {
	m.mu.RLock()
	raw, ok := m.data[key]
	err := m.err
	m.mu.RUnlock()
	if err != nil {
		return nil, &entity.MirrorError{Key: key, Op: "load", Err: err}
	}
	if !ok {
		return nil, nil
	}
	return decode(key, raw)
}

func (m *Memory) Save(_ context.Context, key string, items []entity.Entity) error {
	raw, err := encode(items)
	if err != nil {
		return &entity.MirrorError{Key: key, Op: "save", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return &entity.MirrorError{Key: key, Op: "save", Err: m.err}
	}
	m.data[key] = raw
	return nil
}

// Keys сохранённые ключи.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out
}
