// api/router.go
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"backoffice/internal/blob"
	"backoffice/internal/form"
	"backoffice/internal/store"
)

// Blobs хранилище файлов для /api/_upload и /files.
type Blobs interface {
	blob.Store
	form.Uploader
}

// Server admin HTTP API поверх набора хранилищ.
type Server struct {
	set         *store.Set
	blobs       Blobs
	placeholder string
	auth        Authorizer
	notices     *NoticeLog
	log         *slog.Logger
}

type Option func(*Server)

func WithBlobs(b Blobs) Option { return func(s *Server) { s.blobs = b } }

func WithPlaceholder(ref string) Option { return func(s *Server) { s.placeholder = ref } }

func WithAuthorizer(a Authorizer) Option { return func(s *Server) { s.auth = a } }

// WithNotices журнал уведомлений, который отдаёт GET /api/_notices.
func WithNotices(n *NoticeLog) Option { return func(s *Server) { s.notices = n } }

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

func New(set *store.Set, opts ...Option) *Server {
	s := &Server{
		set:         set,
		placeholder: form.DefaultPlaceholder,
		auth:        AllowAll{},
		notices:     NewNoticeLog(100),
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler маршруты API.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	if s.blobs != nil {
		r.GET("/files/*key", s.serveFile)
	}

	apiGroup := r.Group("/api", authRequired(s.auth))
	{
		apiGroup.GET("/meta", s.metaList)
		apiGroup.GET("/meta/:kind", s.metaKind)
		apiGroup.GET("/meta/:kind/form", s.metaForm)

		// служебные маршруты: СНАЧАЛА
		apiGroup.GET("/_notices", s.noticesList)
		apiGroup.POST("/_upload", s.upload)
		apiGroup.POST("/_admin/lint", s.adminLint)
		apiGroup.GET("/:kind/_featured", s.withStore(s.featured))
		apiGroup.GET("/:kind/_recent", s.withStore(s.recent))
		apiGroup.POST("/:kind/_refresh", s.withStore(s.refresh))

		// обычные CRUD
		apiGroup.GET("/:kind", s.withStore(s.list))
		apiGroup.POST("/:kind", s.withStore(s.create))
		apiGroup.GET("/:kind/:id", s.withStore(s.getOne))
		apiGroup.PATCH("/:kind/:id", s.withStore(s.update))
		apiGroup.PUT("/:kind/:id", s.withStore(s.update))
		apiGroup.DELETE("/:kind/:id", s.withStore(s.remove))
	}
	return r
}

// Run слушает addr до отмены ctx, затем корректно останавливается.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("admin api listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
