package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"backoffice/internal/schema"
)

type lintReq struct {
	DSLDir      string `json:"dsl_dir"`      // директория с *.dsl
	CatalogsDir string `json:"catalogs_dir"` // директория со справочниками
}

// POST /api/_admin/lint: проверка текущего реестра или кандидата из каталогов.
// Реестр не заменяется: новые схемы подключаются перезапуском.
func (s *Server) adminLint(c *gin.Context) {
	var req lintReq
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	reg := s.set.Registry()
	dslDir := strings.TrimSpace(req.DSLDir)
	catDir := strings.TrimSpace(req.CatalogsDir)
	if dslDir != "" || catDir != "" {
		candidate, err := schema.Load(dslDir, catDir)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "DSL load error", "details": err.Error()})
			return
		}
		reg = candidate
	}

	issues := reg.Lint()
	if issues == nil {
		issues = []schema.Issue{}
	}
	status := http.StatusOK
	if len(issues) > 0 {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{
		"ok":       len(issues) == 0,
		"issues":   issues,
		"entities": len(reg.Kinds()),
		"catalogs": len(reg.Catalogs()),
	})
}
