package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"backoffice/internal/entity"
	"backoffice/internal/form"
	"backoffice/internal/store"
	"backoffice/internal/table"
)

// лимит одного файла в multipart-форме
const maxBlobSize = 10 << 20

// GET /api/:kind?q=&sort=&dir=&page=&page_size=
func (s *Server) list(c *gin.Context, st *store.Store) {
	view := table.NewView(st.Schema().Columns, st.All(), nil)
	view.Apply(table.ParseQuery(c.Request.URL.Query()))

	p := view.Page()
	c.Header("X-Total-Count", strconv.Itoa(p.Total))
	c.Header("X-Page", strconv.Itoa(p.Current))
	c.Header("X-Total-Pages", strconv.Itoa(p.TotalPages))
	c.JSON(http.StatusOK, view.Rows())
}

// GET /api/:kind/:id
func (s *Server) getOne(c *gin.Context, st *store.Store) {
	e, ok := st.ByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, e)
}

// GET /api/:kind/_featured?limit=
func (s *Server) featured(c *gin.Context, st *store.Store) {
	c.JSON(http.StatusOK, orEmpty(st.Featured(queryInt(c, "limit", 0))))
}

// GET /api/:kind/_recent?limit=&field=
func (s *Server) recent(c *gin.Context, st *store.Store) {
	c.JSON(http.StatusOK, orEmpty(st.Recent(queryInt(c, "limit", 5), c.Query("field"))))
}

// POST /api/:kind/_refresh
func (s *Server) refresh(c *gin.Context, st *store.Store) {
	items, err := st.FetchAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(items), "degraded": st.Degraded()})
}

// POST /api/:kind
func (s *Server) create(c *gin.Context, st *store.Store) {
	f := s.newForm(st, nil)
	if !s.bindForm(c, f) {
		return
	}
	var env entity.Envelope
	err := f.Submit(c.Request.Context(), func(ctx context.Context, attrs map[string]any) error {
		var err error
		env, err = st.Add(ctx, attrs)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeEnvelope(c, env, true)
}

// PATCH|PUT /api/:kind/:id частичное обновление: на сервер уходят только заданные поля
func (s *Server) update(c *gin.Context, st *store.Store) {
	id := c.Param("id")
	existing, ok := st.ByID(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	f := s.newForm(st, &existing)
	if !s.bindForm(c, f) {
		return
	}
	var env entity.Envelope
	err := f.Submit(c.Request.Context(), func(ctx context.Context, attrs map[string]any) error {
		var err error
		env, err = st.Edit(ctx, id, attrs)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeEnvelope(c, env, false)
}

// DELETE /api/:kind/:id
func (s *Server) remove(c *gin.Context, st *store.Store) {
	res, err := st.Remove(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, entity.ErrNotFound):
		c.JSON(http.StatusNotFound, res)
	case err != nil:
		c.JSON(http.StatusInternalServerError, res)
	case res.Outcome == entity.LocalFallback:
		c.JSON(http.StatusAccepted, res)
	default:
		c.JSON(http.StatusOK, res)
	}
}

func (s *Server) newForm(st *store.Store, existing *entity.Entity) *form.Form {
	opts := []form.Option{form.WithPlaceholder(s.placeholder), form.WithLogger(s.log)}
	if s.blobs != nil {
		opts = append(opts, form.WithUploader(s.blobs))
	}
	return form.New(st.Schema(), existing, opts...)
}

// bindForm JSON-объект или multipart/form-data (файлы: в blob-поля).
// false: ответ уже записан.
func (s *Server) bindForm(c *gin.Context, f *form.Form) bool {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return s.bindMultipart(c, f)
	}
	var obj map[string]any
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return false
	}
	for k, v := range obj {
		if n, ok := v.(json.Number); ok {
			if fv, err := n.Float64(); err == nil {
				obj[k] = fv
			}
		}
	}
	if errs := f.Bind(obj); len(errs) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": errs})
		return false
	}
	return true
}

func (s *Server) bindMultipart(c *gin.Context, f *form.Form) bool {
	mf, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form"})
		return false
	}
	values := make(map[string]any, len(mf.Value))
	for k, vs := range mf.Value {
		if len(vs) == 1 {
			values[k] = vs[0]
		} else {
			values[k] = append([]string(nil), vs...)
		}
	}
	if errs := f.Bind(values); len(errs) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": errs})
		return false
	}
	for field, files := range mf.File {
		if len(files) == 0 {
			continue
		}
		hdr := files[0]
		file, err := hdr.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file", "field": field})
			return false
		}
		data, err := io.ReadAll(io.LimitReader(file, maxBlobSize+1))
		_ = file.Close()
		if err != nil || len(data) > maxBlobSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large", "field": field})
			return false
		}
		h := form.BlobHandle{Name: hdr.Filename, ContentType: hdr.Header.Get("Content-Type"), Data: data}
		if err := f.AttachBlob(field, h); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": []form.FieldError{
				{Code: form.CodeTypeMismatch, Field: field, Message: err.Error()},
			}})
			return false
		}
	}
	return true
}

func orEmpty(items []entity.Entity) []entity.Entity {
	if items == nil {
		return []entity.Entity{}
	}
	return items
}
