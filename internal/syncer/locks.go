package syncer

import (
	"context"
	"sync"
)

// Locks замки по id: мутации одной записи идут строго по очереди,
// мутации разных записей не мешают друг другу.
//
// Удалённый вызов без ответа держит замок своей записи бесконечно; спасает только
// таймаут клиента или отмена ctx у ожидающих.
type Locks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int // держатель + ожидающие
}

func NewLocks() *Locks {
	return &Locks{m: make(map[string]*keyLock)}
}

// Lock ждёт замок id. Вызывающий обязан вызвать unlock ровно один раз.
func (l *Locks) Lock(ctx context.Context, id string) (unlock func(), err error) {
	l.mu.Lock()
	k, ok := l.m[id]
	if !ok {
		k = &keyLock{sem: make(chan struct{}, 1)}
		l.m[id] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(id, k)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-k.sem
			l.release(id, k)
		})
	}, nil
}

func (l *Locks) release(id string, k *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.m, id)
	}
}

// Held true, если по id есть незавершённая мутация (держатель или ожидающий).
func (l *Locks) Held(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	k, ok := l.m[id]
	return ok && k.refs > 0
}
