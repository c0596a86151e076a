// Package remote клиент удалённого сервиса контента: источника правды для коллекций.
package remote

import (
	"context"

	"backoffice/internal/entity"
)

// Service REST-контракт удалённого сервиса:
//
//	GET    /{kind}       → {"<kind>": [...]}
//	POST   /{kind}       → entity
//	PUT    /{kind}/{id}  → entity (или PATCH)
//	DELETE /{kind}/{id}
//
// Ошибки оборачивают entity.ErrRemoteUnreachable или entity.ErrRemoteRejected.
type Service interface {
	List(ctx context.Context, kind string) ([]entity.Entity, error)
	Create(ctx context.Context, kind string, attrs map[string]any) (entity.Entity, error)
	Update(ctx context.Context, kind, id string, attrs map[string]any) (entity.Entity, error)
	Delete(ctx context.Context, kind, id string) error
}

// Credentials источник bearer-токена. Пустая строка: без заголовка.
type Credentials interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken фиксированный токен из конфигурации.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }
