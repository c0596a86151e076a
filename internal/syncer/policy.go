package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"backoffice/internal/entity"
	"backoffice/internal/mirror"
	"backoffice/internal/remote"
	"backoffice/internal/seed"
)

var errNoRemote = errors.New("remote service is not configured")

// Policy выполняет fetch-all/create/update/delete одного вида сущностей:
// сначала удалённый сервис, при отказе: локальные данные. Каждая мутация
// записывает снимок в зеркало до возврата.
type Policy struct {
	kind   string
	key    string
	coll   *Collection
	locks  *Locks
	remote remote.Service
	mirror mirror.Mirror
	seed   seed.Source
	log    *slog.Logger
	notify Notifier

	persistMu sync.Mutex
	health    *MirrorHealth
}

// MirrorHealth состояние зеркала на сессию. Политики разных видов, пишущие в
// одно зеркало, делят один экземпляр: отказ переводит в память их всех и
// даёт одно уведомление.
type MirrorHealth struct {
	down atomic.Bool
	once sync.Once
}

func NewMirrorHealth() *MirrorHealth { return &MirrorHealth{} }

func (h *MirrorHealth) Down() bool { return h.down.Load() }

// fail true только для первого отказа.
func (h *MirrorHealth) fail() (first bool) {
	h.once.Do(func() {
		h.down.Store(true)
		first = true
	})
	return first
}

type Option func(*Policy)

func WithLogger(l *slog.Logger) Option {
	return func(p *Policy) {
		if l != nil {
			p.log = l
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(p *Policy) { p.notify = n }
}

func WithSeed(s seed.Source) Option {
	return func(p *Policy) { p.seed = s }
}

func WithMirrorHealth(h *MirrorHealth) Option {
	return func(p *Policy) {
		if h != nil {
			p.health = h
		}
	}
}

// New создаёт политику для вида kind. remote может быть nil (офлайн-режим),
// mirror nil заменяется зеркалом в памяти.
func New(kind string, svc remote.Service, m mirror.Mirror, opts ...Option) *Policy {
	if m == nil {
		m = mirror.NewMemory()
	}
	p := &Policy{
		kind:   kind,
		key:    mirror.Key(kind),
		coll:   NewCollection(nil),
		locks:  NewLocks(),
		remote: svc,
		mirror: m,
		seed:   seed.Embedded{},
		log:    slog.Default(),
		health: NewMirrorHealth(),
	}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.With("kind", kind)
	return p
}

func (p *Policy) Kind() string              { return p.kind }
func (p *Policy) Collection() *Collection   { return p.coll }
func (p *Policy) Locks() *Locks             { return p.locks }
func (p *Policy) Mirror() mirror.Mirror     { return p.mirror }
func (p *Policy) Degraded() bool            { return p.health.Down() }
func (p *Policy) Snapshot() []entity.Entity { return p.coll.Snapshot() }

// Hydrate наполняет коллекцию из зеркала (при создании Store).
// Недоступное зеркало переводит сессию в режим «только память».
func (p *Policy) Hydrate(ctx context.Context) error {
	items, err := p.mirror.Load(ctx, p.key)
	if err != nil {
		p.degrade(err)
		return err
	}
	start := p.coll.BeginFetch()
	defer p.coll.EndFetch()
	p.coll.Reconcile(start, items, p.locks.Held)
	p.log.Debug("hydrated from mirror", "count", len(items))
	return nil
}

// ==== fetch-all ====

// FetchAll: удалённый непустой список → он и есть коллекция (сверка по id,
// запись в зеркало); пустой список или отказ → зеркало; пустое зеркало →
// встроенный набор по умолчанию, который тоже сохраняется.
func (p *Policy) FetchAll(ctx context.Context) ([]entity.Entity, error) {
	start := p.coll.BeginFetch()
	defer p.coll.EndFetch()

	items, err := p.callList(ctx)
	if err == nil && len(items) > 0 {
		out := p.coll.Reconcile(start, items, p.locks.Held)
		p.persist(ctx)
		return out, nil
	}
	if err != nil {
		p.emit(Notice{Kind: NoticeServedFromMirror, EntityKind: p.kind, Message: MsgServedFromMirror, Err: err})
	}

	local := p.loadLocal(ctx)
	if len(local) > 0 {
		return p.coll.Reconcile(start, local, p.locks.Held), nil
	}

	defaults, serr := p.defaults()
	if serr != nil {
		return p.coll.Snapshot(), serr
	}
	out := p.coll.Reconcile(start, defaults, p.locks.Held)
	if len(defaults) > 0 {
		p.log.Info("seeded default collection", "count", len(defaults))
		p.persist(ctx)
	}
	return out, nil
}

// loadLocal зеркало; если оно недоступно: то, что уже есть в памяти.
func (p *Policy) loadLocal(ctx context.Context) []entity.Entity {
	if !p.Degraded() {
		items, err := p.mirror.Load(ctx, p.key)
		if err == nil {
			return items
		}
		p.degrade(err)
	}
	return p.coll.Snapshot()
}

func (p *Policy) defaults() ([]entity.Entity, error) {
	if p.seed == nil {
		return nil, nil
	}
	items, err := p.seed.Defaults(p.kind)
	if err != nil {
		return nil, fmt.Errorf("default %s collection: %w", p.kind, err)
	}
	return items, nil
}

// ==== create ====

func (p *Policy) Create(ctx context.Context, attrs map[string]any) entity.Envelope {
	created, err := p.callCreate(ctx, attrs)
	if err == nil {
		p.coll.Put(created)
		p.persist(ctx)
		return entity.Committed(created)
	}

	e := p.coll.AppendProvisional(attrs)
	p.persist(ctx)
	p.emit(Notice{Kind: NoticeSavedLocally, EntityKind: p.kind, ID: e.ID.Value, Message: MsgSavedLocally, Err: err})
	return entity.Fallback(e, err)
}

// ==== update ====

func (p *Policy) Update(ctx context.Context, id string, attrs map[string]any) entity.Envelope {
	unlock, err := p.locks.Lock(ctx, id)
	if err != nil {
		return entity.Fail(err)
	}
	defer unlock()

	if !p.coll.Has(id) {
		return entity.Fail(&entity.NotFoundError{Kind: p.kind, ID: id})
	}

	updated, err := p.callUpdate(ctx, id, attrs)
	if err == nil {
		if updated.ID.IsZero() {
			updated.ID = entity.ServerID(id)
		}
		if !p.coll.Replace(id, updated) {
			// удалили, пока шёл запрос
			return entity.Fail(&entity.NotFoundError{Kind: p.kind, ID: id})
		}
		p.persist(ctx)
		return entity.Committed(updated)
	}

	merged, ok := p.coll.Merge(id, attrs)
	if !ok {
		return entity.Fail(&entity.NotFoundError{Kind: p.kind, ID: id})
	}
	p.persist(ctx)
	p.emit(Notice{Kind: NoticeSavedLocally, EntityKind: p.kind, ID: id, Message: MsgSavedLocally, Err: err})
	return entity.Fallback(merged, err)
}

// ==== delete ====

// Delete удаляет запись локально при любом исходе удалённого вызова.
func (p *Policy) Delete(ctx context.Context, id string) entity.Envelope {
	unlock, err := p.locks.Lock(ctx, id)
	if err != nil {
		return entity.Fail(err)
	}
	defer unlock()

	if !p.coll.Has(id) {
		return entity.Fail(&entity.NotFoundError{Kind: p.kind, ID: id})
	}

	rerr := p.callDelete(ctx, id)
	removed, ok := p.coll.Remove(id)
	if !ok {
		return entity.Fail(&entity.NotFoundError{Kind: p.kind, ID: id})
	}
	p.persist(ctx)
	if rerr != nil {
		p.emit(Notice{Kind: NoticeDeletedLocally, EntityKind: p.kind, ID: id, Message: MsgDeletedLocally, Err: rerr})
		return entity.Fallback(removed, rerr)
	}
	return entity.Committed(removed)
}

// ==== Зеркало ====

// persist пишет снимок, взятый внутри критической секции: последняя запись
// всегда несёт последнее состояние коллекции.
func (p *Policy) persist(ctx context.Context) {
	if p.Degraded() {
		return
	}
	p.persistMu.Lock()
	defer p.persistMu.Unlock()
	if p.Degraded() {
		return
	}
	// отмена запроса не должна оставлять зеркало позади коллекции
	ctx = context.WithoutCancel(ctx)
	if err := p.mirror.Save(ctx, p.key, p.coll.Snapshot()); err != nil {
		p.degrade(err)
	}
}

// degrade после первой ошибки зеркала: одно уведомление за сессию, дальше только память.
func (p *Policy) degrade(err error) {
	if !p.health.fail() {
		return
	}
	p.log.Error("mirror unavailable, continuing in memory only", "err", err)
	p.emit(Notice{Kind: NoticeMirrorUnavailable, EntityKind: p.kind, Message: MsgMirrorUnavailable, Err: err})
}

func (p *Policy) emit(n Notice) {
	if p.notify != nil {
		p.notify(n)
	}
}

// ==== Удалённые вызовы ====

func (p *Policy) callList(ctx context.Context) ([]entity.Entity, error) {
	if p.remote == nil {
		return nil, p.offline("list", "")
	}
	started := time.Now()
	items, err := p.remote.List(ctx, p.kind)
	p.logCall("list", "", started, err, "count", len(items))
	return items, err
}

func (p *Policy) callCreate(ctx context.Context, attrs map[string]any) (entity.Entity, error) {
	if p.remote == nil {
		return entity.Entity{}, p.offline("create", "")
	}
	started := time.Now()
	e, err := p.remote.Create(ctx, p.kind, attrs)
	if err == nil && e.ID.IsZero() {
		err = &entity.RemoteError{Op: "create", Kind: p.kind, Cause: entity.ErrRemoteRejected, Err: errors.New("response without id")}
	}
	p.logCall("create", e.ID.Value, started, err)
	return e, err
}

func (p *Policy) callUpdate(ctx context.Context, id string, attrs map[string]any) (entity.Entity, error) {
	if p.remote == nil {
		return entity.Entity{}, p.offline("update", id)
	}
	started := time.Now()
	e, err := p.remote.Update(ctx, p.kind, id, attrs)
	p.logCall("update", id, started, err)
	return e, err
}

func (p *Policy) callDelete(ctx context.Context, id string) error {
	if p.remote == nil {
		return p.offline("delete", id)
	}
	started := time.Now()
	err := p.remote.Delete(ctx, p.kind, id)
	p.logCall("delete", id, started, err)
	return err
}

func (p *Policy) offline(op, id string) error {
	return &entity.RemoteError{Op: op, Kind: p.kind, ID: id, Cause: entity.ErrRemoteUnreachable, Err: errNoRemote}
}

func (p *Policy) logCall(op, id string, started time.Time, err error, extra ...any) {
	attrs := append([]any{"op", op, "id", id, "duration", time.Since(started)}, extra...)
	if err != nil {
		p.log.Warn("remote call failed, falling back to local data", append(attrs, "err", err)...)
		return
	}
	p.log.Info("remote call", attrs...)
}
