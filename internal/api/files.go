package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"backoffice/internal/blob"
)

// POST /api/_upload (multipart, поле "file") → {key, url, sha256, size}
func (s *Server) upload(c *gin.Context) {
	if s.blobs == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "blob store not configured"})
		return
	}
	file, hdr, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart file not found (field name 'file')"})
		return
	}
	defer file.Close()

	obj, err := s.blobs.Put(c.Request.Context(), hdr.Filename, io.LimitReader(file, maxBlobSize))
	if err != nil {
		s.log.Warn("upload failed", "file", hdr.Filename, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store error", "details": err.Error(), "url": s.placeholder})
		return
	}
	c.JSON(http.StatusCreated, obj)
}

// GET /files/*key
func (s *Server) serveFile(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	rc, err := s.blobs.Open(key)
	switch {
	case errors.Is(err, blob.ErrBadKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	case errors.Is(err, os.ErrNotExist):
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer rc.Close()

	ct := mime.TypeByExtension(path.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, ct, rc, nil)
}
