// api/names.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backoffice/internal/store"
)

type storeHandler func(c *gin.Context, st *store.Store)

// withStore находит хранилище по :kind ("blog-posts", "BlogPosts", "startup" ...).
func (s *Server) withStore(h storeHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, ok := s.set.Get(c.Param("kind"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Entity not found"})
			return
		}
		h(c, st)
	}
}
