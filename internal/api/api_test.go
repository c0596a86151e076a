package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/blob"
	"backoffice/internal/entity"
	"backoffice/internal/logging"
	"backoffice/internal/mirror"
	"backoffice/internal/remote"
	"backoffice/internal/remotestub"
	"backoffice/internal/schema"
	"backoffice/internal/seed"
	"backoffice/internal/store"
	"backoffice/internal/syncer"
)

type fixture struct {
	h       http.Handler
	stub    *remotestub.Storage
	faulty  *remote.Faulty
	notices *NoticeLog
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	reg, err := schema.Builtin()
	require.NoError(t, err)

	stub := remotestub.NewStorage()
	stub.Seed("startups",
		entity.New(entity.ServerID("1"), map[string]any{"name": "Acme", "industry": "Fintech", "featured": true, "founded": "2020-01-01"}),
		entity.New(entity.ServerID("2"), map[string]any{"name": "Beta", "industry": "AI", "founded": "2022-05-01"}),
		entity.New(entity.ServerID("3"), map[string]any{"name": "Gamma", "industry": "AI"}),
	)
	faulty := remote.NewFaulty(stub)
	notices := NewNoticeLog(10)

	set := store.NewSet(ctx, reg, faulty, mirror.NewMemory(),
		store.WithLogger(logging.Discard()),
		store.WithNotifier(notices.Add),
		store.WithPolicyOptions(syncer.WithSeed(seed.Static{})),
	)
	require.NoError(t, set.FetchAll(ctx))

	base := []Option{
		WithBlobs(blob.NewLocalStore(t.TempDir(), "/files/")),
		WithNotices(notices),
		WithLogger(logging.Discard()),
	}
	srv := New(set, append(base, opts...)...)
	return &fixture{h: srv.Handler(), stub: stub, faulty: faulty, notices: notices}
}

func (f *fixture) do(t *testing.T, method, target string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func names(items []map[string]any) []any {
	out := make([]any, 0, len(items))
	for _, it := range items {
		out = append(out, it["name"])
	}
	return out
}

func TestMeta(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/meta", nil)
	require.Equal(t, http.StatusOK, w.Code)
	kinds := decode[[]map[string]any](t, w)
	assert.Len(t, kinds, 5)

	w = f.do(t, http.MethodGet, "/api/meta/blog-posts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "blogposts", decode[map[string]any](t, w)["kind"])

	w = f.do(t, http.MethodGet, "/api/meta/widgets", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/meta/startups/form", nil)
	require.Equal(t, http.StatusOK, w.Code)
	newForm := decode[struct {
		Title    string           `json:"title"`
		Controls []map[string]any `json:"controls"`
	}](t, w)
	assert.Equal(t, "New Startup", newForm.Title)
	require.NotEmpty(t, newForm.Controls)
	assert.Equal(t, "", newForm.Controls[0]["value"])

	w = f.do(t, http.MethodGet, "/api/meta/startups/form?id=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	editForm := decode[struct {
		Title    string           `json:"title"`
		Controls []map[string]any `json:"controls"`
	}](t, w)
	assert.Equal(t, "Edit Startup", editForm.Title)
	assert.Equal(t, "Acme", editForm.Controls[0]["value"])

	w = f.do(t, http.MethodGet, "/api/meta/startups/form?id=99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListUsesTableQuery(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/startups?sort=name&dir=desc&page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3", w.Header().Get("X-Total-Count"))
	assert.Equal(t, "2", w.Header().Get("X-Total-Pages"))
	assert.Equal(t, []any{"Gamma", "Beta"}, names(decode[[]map[string]any](t, w)))

	w = f.do(t, http.MethodGet, "/api/Startups?q=%20ACME", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"Acme"}, names(decode[[]map[string]any](t, w)))

	w = f.do(t, http.MethodGet, "/api/widgets", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOne(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/startups/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Beta", decode[map[string]any](t, w)["name"])

	w = f.do(t, http.MethodGet, "/api/startups/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateCommitted(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/startups", map[string]any{"name": "Delta", "industry": "AI", "employees": 7})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	got := decode[map[string]any](t, w)
	assert.NotEmpty(t, got["id"])
	assert.Equal(t, float64(7), got["employees"])
	assert.Equal(t, false, got["featured"])
	assert.NotContains(t, got, "_provisional")
	assert.Equal(t, 4, f.stub.Len("startups"))
}

func TestCreateValidationFailed(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/startups", map[string]any{"website": "nope"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode[struct {
		Errors []struct {
			Code  string `json:"code"`
			Field string `json:"field"`
		} `json:"errors"`
	}](t, w)
	var fields []string
	for _, e := range body.Errors {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{"name", "industry", "website"}, fields)
	assert.Equal(t, "required", body.Errors[0].Code)

	w = f.do(t, http.MethodPost, "/api/startups", map[string]any{"name": "X", "industry": "AI", "bogus": 1})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_field")

	w = f.do(t, http.MethodPost, "/api/startups", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, 3, f.stub.Len("startups"), "nothing reaches the remote")
}

func TestCreateOfflineFallsBack(t *testing.T) {
	f := newFixture(t)
	f.faulty.Offline()

	w := f.do(t, http.MethodPost, "/api/startups", map[string]any{"name": "Delta", "industry": "AI"})
	require.Equal(t, http.StatusAccepted, w.Code)
	got := decode[struct {
		Entity  map[string]any `json:"entity"`
		Outcome string         `json:"outcome"`
		Notice  string         `json:"notice"`
	}](t, w)
	assert.Equal(t, "4", got.Entity["id"])
	assert.Equal(t, true, got.Entity["_provisional"])
	assert.Equal(t, "local-fallback", got.Outcome)
	assert.Equal(t, syncer.MsgSavedLocally, got.Notice)

	w = f.do(t, http.MethodGet, "/api/startups/4", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/_notices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	notices := decode[[]map[string]any](t, w)
	require.Len(t, notices, 1)
	assert.Equal(t, "saved-locally", notices[0]["kind"])
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPatch, "/api/startups/2", map[string]any{"employees": 12})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[map[string]any](t, w)
	assert.Equal(t, float64(12), got["employees"])
	assert.Equal(t, "Beta", got["name"], "untouched fields come from the record")

	w = f.do(t, http.MethodPatch, "/api/startups/2", map[string]any{"employees": "many"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodPatch, "/api/startups/99", map[string]any{"name": "X"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.faulty.Offline()
	w = f.do(t, http.MethodPatch, "/api/startups/3", map[string]any{"name": "Gamma 2"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "Gamma 2")
}

func TestConcurrentPatchesKeepBothFields(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.faulty.Gate(gate)
	before := f.faulty.Calls()

	var wg sync.WaitGroup
	codes := make([]int, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		codes[0] = f.do(t, http.MethodPatch, "/api/startups/1", map[string]any{"status": "Inactive"}).Code
	}()
	require.Eventually(t, func() bool { return f.faulty.Calls() > before }, time.Second, time.Millisecond)

	// второй запрос читает запись, пока первый ещё висит на удалённом вызове
	go func() {
		defer wg.Done()
		codes[1] = f.do(t, http.MethodPatch, "/api/startups/1", map[string]any{"name": "Acme Two"}).Code
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	assert.Equal(t, []int{http.StatusOK, http.StatusOK}, codes)

	w := f.do(t, http.MethodGet, "/api/startups/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]any](t, w)
	assert.Equal(t, "Acme Two", got["name"])
	assert.Equal(t, "Inactive", got["status"], "second edit does not resend a stale status")
	assert.Equal(t, "Fintech", got["industry"])

	items, err := f.stub.List(context.Background(), "startups")
	require.NoError(t, err)
	for _, it := range items {
		if it.ID.Value == "1" {
			assert.Equal(t, "Inactive", it.Attrs["status"])
			assert.Equal(t, "Acme Two", it.Attrs["name"])
		}
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodDelete, "/api/startups/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[store.RemoveResult](t, w)
	assert.True(t, res.Success)
	assert.Equal(t, "Startup deleted", res.Message)

	w = f.do(t, http.MethodDelete, "/api/startups/1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, decode[store.RemoveResult](t, w).Success)

	f.faulty.Offline()
	w = f.do(t, http.MethodDelete, "/api/startups/2", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, syncer.MsgDeletedLocally, decode[store.RemoveResult](t, w).Message)

	w = f.do(t, http.MethodGet, "/api/startups/2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "deleted locally even though the remote failed")
}

func TestFeaturedRecentRefresh(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/startups/_featured", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"Acme"}, names(decode[[]map[string]any](t, w)))

	w = f.do(t, http.MethodGet, "/api/startups/_recent?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"Beta", "Acme"}, names(decode[[]map[string]any](t, w)))

	w = f.do(t, http.MethodGet, "/api/users/_featured", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())

	f.stub.Seed("startups", entity.New(entity.ServerID("9"), map[string]any{"name": "Omega", "industry": "AI"}))
	w = f.do(t, http.MethodPost, "/api/startups/_refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(4), decode[map[string]any](t, w)["count"])
}

func TestAuthorizer(t *testing.T) {
	f := newFixture(t, WithAuthorizer(BearerToken("s3cret")))

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/meta", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/meta", nil, "Authorization", "Bearer nope").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/meta", nil, "Authorization", "Bearer s3cret").Code)
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadAndServe(t *testing.T) {
	f := newFixture(t)

	body, ct := multipartBody(t, nil, "file", "notes.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/api/_upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	obj := decode[blob.Object](t, w)
	assert.True(t, strings.HasPrefix(obj.URL, "/files/"))
	assert.Equal(t, int64(5), obj.Size)

	w = f.do(t, http.MethodGet, obj.URL, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/files/2024/01/missing.txt", nil).Code)
}

func TestCreateMultipartUploadsBlob(t *testing.T) {
	f := newFixture(t)

	body, ct := multipartBody(t, map[string]string{"name": "Delta", "industry": "AI", "featured": "on"}, "logo", "logo.png", []byte{0x89, 'P', 'N', 'G'})
	req := httptest.NewRequest(http.MethodPost, "/api/startups", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	got := decode[map[string]any](t, w)
	assert.Equal(t, true, got["featured"])
	assert.True(t, strings.HasPrefix(got["logo"].(string), "/files/"), got["logo"])
}

func TestAdminLint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/_admin/lint", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode[map[string]any](t, w)["ok"])

	dir := t.TempDir()
	dsl := "entity widgets: featured=name\n  name: text required label=\"Name\" column\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widgets.dsl"), []byte(dsl), 0o644))

	w = f.do(t, http.MethodPost, "/api/_admin/lint", map[string]any{"dsl_dir": dir})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "featured_not_boolean")

	w = f.do(t, http.MethodPost, "/api/_admin/lint", map[string]any{"dsl_dir": filepath.Join(dir, "missing")})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
