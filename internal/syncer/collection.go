// Package syncer политика синхронизации: удалённый сервис как источник правды,
// зеркало как запасной источник, коллекция в памяти как то, что видит UI.
package syncer

import (
	"sync"

	"backoffice/internal/entity"
)

// Collection упорядоченная коллекция одного вида сущностей. id уникальны,
// порядок вставки канонический. Безопасна для конкурентного доступа.
//
// Пока идёт хотя бы одна выборка (BeginFetch/EndFetch), коллекция помечает
// тронутые и удалённые id версией изменения: по этим меткам Reconcile
// отличает свежие локальные изменения от устаревшего ответа сервера.
type Collection struct {
	mu    sync.RWMutex
	items []entity.Entity
	index map[string]int

	version  uint64
	fetching int
	touched  map[string]uint64
	removed  map[string]uint64
}

func NewCollection(items []entity.Entity) *Collection {
	c := &Collection{touched: map[string]uint64{}, removed: map[string]uint64{}}
	c.items = dedupe(items)
	c.reindex()
	return c
}

func dedupe(items []entity.Entity) []entity.Entity {
	out := make([]entity.Entity, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.ID.IsZero() || seen[it.ID.Value] {
			continue
		}
		seen[it.ID.Value] = true
		out = append(out, it.Clone())
	}
	return out
}

func (c *Collection) reindex() {
	c.index = make(map[string]int, len(c.items))
	for i, it := range c.items {
		c.index[it.ID.Value] = i
	}
}

// mark вызывается под c.mu после каждого изменения.
func (c *Collection) mark(id string, removed bool) {
	c.version++
	if c.fetching == 0 {
		return
	}
	if removed {
		c.removed[id] = c.version
		delete(c.touched, id)
		return
	}
	c.touched[id] = c.version
	delete(c.removed, id)
}

// ==== Чтение ====

// Snapshot копия коллекции в каноническом порядке.
func (c *Collection) Snapshot() []entity.Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]entity.Entity, len(c.items))
	for i, it := range c.items {
		out[i] = it.Clone()
	}
	return out
}

func (c *Collection) Get(id string) (entity.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return entity.Entity{}, false
	}
	return c.items[i].Clone(), true
}

func (c *Collection) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[id]
	return ok
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Collection) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// ==== Изменения ====

// Put добавляет запись в конец или заменяет запись с тем же id на месте.
// Серверная запись не затирает провизорную с тем же значением id: провизорная
// получает новый id.
func (c *Collection) Put(e entity.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e = e.Clone()
	i, ok := c.index[e.ID.Value]
	if ok && c.items[i].ID.Provisional && !e.ID.Provisional {
		c.reissue(i)
		ok = false
	}
	if ok {
		c.items[i] = e
	} else {
		c.index[e.ID.Value] = len(c.items)
		c.items = append(c.items, e)
	}
	c.mark(e.ID.Value, false)
}

// AppendProvisional синтезирует id = max(числовые id)+1 и добавляет запись
// в одной критической секции, поэтому параллельные вызовы не дают дублей.
func (c *Collection) AppendProvisional(attrs map[string]any) entity.Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entity.New(entity.ProvisionalID(entity.MaxNumericID(c.items)+1), nil).Merge(attrs)
	c.index[e.ID.Value] = len(c.items)
	c.items = append(c.items, e)
	c.mark(e.ID.Value, false)
	return e.Clone()
}

// reissue переносит провизорную запись i на id больше всех числовых id
// коллекции. Старый id не помечается удалённым: его занимает серверная
// запись. Вызывается под c.mu.
func (c *Collection) reissue(i int) {
	old := c.items[i].ID.Value
	e := c.items[i].Clone()
	e.ID = entity.ProvisionalID(entity.MaxNumericID(c.items) + 1)
	c.items[i] = e
	if c.index[old] == i {
		delete(c.index, old)
	}
	c.index[e.ID.Value] = i
	c.mark(e.ID.Value, false)
}

// Replace заменяет запись по id, сохраняя позицию. false, если id нет.
func (c *Collection) Replace(id string, e entity.Entity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return false
	}
	e = e.Clone()
	if e.ID.Value != id {
		// сервер вернул другой id: переиндексируем, не допуская дублей
		if j, dup := c.index[e.ID.Value]; dup && j != i {
			if c.items[j].ID.Provisional && !e.ID.Provisional {
				c.reissue(j)
			} else {
				c.items = append(c.items[:j], c.items[j+1:]...)
				c.reindex()
				i = c.index[id]
			}
		}
		delete(c.index, id)
		c.index[e.ID.Value] = i
		c.mark(id, true)
	}
	c.items[i] = e
	c.mark(e.ID.Value, false)
	return true
}

// Merge поверхностно накладывает attrs на запись id.
func (c *Collection) Merge(id string, attrs map[string]any) (entity.Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return entity.Entity{}, false
	}
	c.items[i] = c.items[i].Merge(attrs)
	c.mark(id, false)
	return c.items[i].Clone(), true
}

// Remove удаляет запись; возвращает удалённую.
func (c *Collection) Remove(id string) (entity.Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return entity.Entity{}, false
	}
	e := c.items[i]
	c.items = append(c.items[:i:i], c.items[i+1:]...)
	c.reindex()
	c.mark(id, true)
	return e, true
}

// ==== Сверка с выборкой ====

// BeginFetch открывает окно выборки и возвращает версию на её начало.
func (c *Collection) BeginFetch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetching++
	return c.version
}

// EndFetch закрывает окно; когда выборок не осталось, метки больше не нужны.
func (c *Collection) EndFetch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetching > 0 {
		c.fetching--
	}
	if c.fetching == 0 {
		clear(c.touched)
		clear(c.removed)
	}
}

// Reconcile делает incoming новой коллекцией, сверяя по id:
//   - запись, изменённая после start или с занятым замком, остаётся локальной;
//   - id, удалённый после start, не воскрешается;
//   - локальные записи, которых нет в incoming, выживают, только если они
//     провизорные, изменены после start или под замком;
//   - провизорная запись, чей id сервер отдал другой записи, получает новый
//     id после всех числовых; под замком она остаётся, а серверная запись
//     ждёт следующей выборки.
//
// held вызывается под замком коллекции и не должен обращаться к ней.
func (c *Collection) Reconcile(start uint64, incoming []entity.Entity, held func(id string) bool) []entity.Entity {
	if held == nil {
		held = func(string) bool { return false }
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	newer := func(id string) bool { return c.touched[id] > start }
	next := make([]entity.Entity, 0, len(incoming)+len(c.items))
	seen := make(map[string]bool, len(incoming))
	collided := map[string]bool{}

	for _, in := range incoming {
		id := in.ID.Value
		if id == "" || seen[id] {
			continue
		}
		if i, ok := c.index[id]; ok && c.items[i].ID.Provisional && !in.ID.Provisional {
			if held(id) {
				next = append(next, c.items[i])
			} else {
				next = append(next, in.Clone())
				collided[id] = true
			}
			seen[id] = true
			continue
		}
		if c.removed[id] > start {
			continue
		}
		if newer(id) || held(id) {
			if i, ok := c.index[id]; ok {
				next = append(next, c.items[i])
				seen[id] = true
			}
			continue
		}
		next = append(next, in.Clone())
		seen[id] = true
	}
	top := max(entity.MaxNumericID(incoming), entity.MaxNumericID(c.items))
	for _, local := range c.items {
		id := local.ID.Value
		if collided[id] && local.ID.Provisional {
			top++
			local = local.Clone()
			local.ID = entity.ProvisionalID(top)
			next = append(next, local)
			seen[local.ID.Value] = true
			c.mark(local.ID.Value, false)
			continue
		}
		if seen[id] {
			continue
		}
		if local.ID.Provisional || newer(id) || held(id) {
			next = append(next, local)
			seen[id] = true
		}
	}

	c.items = next
	c.reindex()
	c.version++

	out := make([]entity.Entity, len(c.items))
	for i, it := range c.items {
		out[i] = it.Clone()
	}
	return out
}
