package api

import (
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"backoffice/internal/entity"
	"backoffice/internal/form"
	"backoffice/internal/syncer"
)

// writeEnvelope ответ на мутацию. 201/200 записано на сервере,
// 202 сохранено локально, 404 нет такой записи, 500 остальное.
func writeEnvelope(c *gin.Context, env entity.Envelope, created bool) {
	switch env.Outcome {
	case entity.RemoteCommitted:
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, env.Entity)
	case entity.LocalFallback:
		c.JSON(http.StatusAccepted, gin.H{
			"entity":  env.Entity,
			"outcome": env.Outcome,
			"notice":  syncer.MsgSavedLocally,
		})
	default:
		writeError(c, env.Err)
	}
}

// writeError сопоставляет таксономию ошибок с HTTP-статусом.
func writeError(c *gin.Context, err error) {
	var ve *form.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": ve.Errors})
	case errors.Is(err, entity.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
	case err == nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown failure"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if n, err := strconv.Atoi(c.Query(key)); err == nil && n >= 0 {
		return n
	}
	return fallback
}

// NoticeLog кольцевой журнал последних уведомлений синхронизации.
type NoticeLog struct {
	mu    sync.Mutex
	items []syncer.Notice
	max   int
}

func NewNoticeLog(size int) *NoticeLog {
	if size <= 0 {
		size = 100
	}
	return &NoticeLog{max: size}
}

// Add подходит как syncer.Notifier.
func (l *NoticeLog) Add(n syncer.Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, n)
	if len(l.items) > l.max {
		l.items = l.items[len(l.items)-l.max:]
	}
}

// List от старых к новым.
func (l *NoticeLog) List() []syncer.Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]syncer.Notice(nil), l.items...)
}
