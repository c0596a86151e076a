package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var ErrUnauthorized = errors.New("unauthorized")

// Authorizer непрозрачная проверка права на запрос.
type Authorizer interface {
	Authorize(r *http.Request) error
}

// AllowAll пропускает всех (локальная разработка).
type AllowAll struct{}

func (AllowAll) Authorize(*http.Request) error { return nil }

// BearerToken сравнивает Authorization: Bearer <token>. Пустой токен пропускает всех.
type BearerToken string

func (t BearerToken) Authorize(r *http.Request) error {
	if t == "" {
		return nil
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(t)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

func authRequired(a Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.Authorize(c.Request); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
