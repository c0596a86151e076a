package remote

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"backoffice/internal/entity"
)

// Op имя операции удалённого сервиса.
type Op string

const (
	OpList   Op = "list"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

var errInjected = errors.New("injected fault")

// Faulty обёртка для внесения отказов: всегда, N раз подряд или по операциям.
// Без next ведёт себя как недоступный сервис.
type Faulty struct {
	next Service

	mu       sync.Mutex
	always   bool
	failNext int
	ops      map[Op]bool
	cause    error
	gate     <-chan struct{}

	calls atomic.Int64
}

func NewFaulty(next Service) *Faulty {
	return &Faulty{next: next, ops: map[Op]bool{}, cause: entity.ErrRemoteUnreachable}
}

// Offline отказ на каждый вызов.
func (f *Faulty) Offline() *Faulty {
	f.mu.Lock()
	f.always = true
	f.mu.Unlock()
	return f
}

// FailNext следующие n вызовов падают.
func (f *Faulty) FailNext(n int) *Faulty {
	f.mu.Lock()
	f.failNext = n
	f.mu.Unlock()
	return f
}

// FailOps падают только перечисленные операции.
func (f *Faulty) FailOps(ops ...Op) *Faulty {
	f.mu.Lock()
	for _, op := range ops {
		f.ops[op] = true
	}
	f.mu.Unlock()
	return f
}

// Reject отказы выглядят как remote-rejected, а не unreachable.
func (f *Faulty) Reject() *Faulty {
	f.mu.Lock()
	f.cause = entity.ErrRemoteRejected
	f.mu.Unlock()
	return f
}

// Gate каждый вызов ждёт закрытия канала (или отмены ctx).
func (f *Faulty) Gate(ch <-chan struct{}) *Faulty {
	f.mu.Lock()
	f.gate = ch
	f.mu.Unlock()
	return f
}

// Heal снимает все отказы.
func (f *Faulty) Heal() *Faulty {
	f.mu.Lock()
	f.always, f.failNext, f.ops, f.gate = false, 0, map[Op]bool{}, nil
	f.mu.Unlock()
	return f
}

// Calls сколько вызовов дошло до обёртки.
func (f *Faulty) Calls() int64 { return f.calls.Load() }

func (f *Faulty) check(ctx context.Context, op Op, kind, id string) error {
	f.calls.Add(1)
	f.mu.Lock()
	gate := f.gate
	fail := f.always || f.ops[op] || f.next == nil
	if !fail && f.failNext > 0 {
		f.failNext--
		fail = true
	}
	cause := f.cause
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return &entity.RemoteError{Op: string(op), Kind: kind, ID: id, Cause: entity.ErrRemoteUnreachable, Err: ctx.Err()}
		}
	}
	if fail {
		return &entity.RemoteError{Op: string(op), Kind: kind, ID: id, Cause: cause, Err: errInjected}
	}
	return nil
}

func (f *Faulty) List(ctx context.Context, kind string) ([]entity.Entity, error) {
	if err := f.check(ctx, OpList, kind, ""); err != nil {
		return nil, err
	}
	return f.next.List(ctx, kind)
}

func (f *Faulty) Create(ctx context.Context, kind string, attrs map[string]any) (entity.Entity, error) {
	if err := f.check(ctx, OpCreate, kind, ""); err != nil {
		return entity.Entity{}, err
	}
	return f.next.Create(ctx, kind, attrs)
}

func (f *Faulty) Update(ctx context.Context, kind, id string, attrs map[string]any) (entity.Entity, error) {
	if err := f.check(ctx, OpUpdate, kind, id); err != nil {
		return entity.Entity{}, err
	}
	return f.next.Update(ctx, kind, id, attrs)
}

func (f *Faulty) Delete(ctx context.Context, kind, id string) error {
	if err := f.check(ctx, OpDelete, kind, id); err != nil {
		return err
	}
	return f.next.Delete(ctx, kind, id)
}

var _ Service = (*Faulty)(nil)
