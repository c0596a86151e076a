package entity

import (
	"errors"
	"fmt"
)

// Таксономия ошибок движка синхронизации.
var (
	ErrRemoteUnreachable = errors.New("remote service unreachable")
	ErrRemoteRejected    = errors.New("remote service rejected the request")
	ErrNotFound          = errors.New("entity not found")
	ErrMirrorUnavailable = errors.New("durable mirror unavailable")
	ErrValidationFailed  = errors.New("validation failed")
)

// RemoteError ошибка обращения к удалённому сервису.
// Cause: ErrRemoteUnreachable или ErrRemoteRejected.
type RemoteError struct {
	Op     string // list | create | update | delete
	Kind   string
	ID     string
	Status int
	Cause  error
	Err    error
}

func (e *RemoteError) Error() string {
	target := e.Kind
	if e.ID != "" {
		target += "/" + e.ID
	}
	msg := fmt.Sprintf("remote %s %s: %v", e.Op, target, e.Cause)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteError) Is(target error) bool { return target == e.Cause }
func (e *RemoteError) Unwrap() error        { return e.Err }

// NotFoundError операция адресовала id, которого нет в локальной коллекции.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// MirrorError сбой постоянного хранилища (квота, права, битые данные).
type MirrorError struct {
	Key string
	Op  string // load | save
	Err error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("mirror %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *MirrorError) Is(target error) bool { return target == ErrMirrorUnavailable }
func (e *MirrorError) Unwrap() error        { return e.Err }
