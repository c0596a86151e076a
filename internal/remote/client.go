package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"backoffice/internal/entity"
)

// Options настройки клиента.
type Options struct {
	BaseURL      string
	Timeout      time.Duration
	UpdateMethod string // PUT (по умолчанию) или PATCH
	Credentials  Credentials
	HTTPClient   *http.Client
}

// Client HTTP-реализация Service.
type Client struct {
	base         *url.URL
	updateMethod string
	creds        Credentials
	hc           *http.Client
}

func NewClient(o Options) (*Client, error) {
	raw := strings.TrimSpace(o.BaseURL)
	if raw == "" {
		return nil, errors.New("remote: empty base url")
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: bad base url %q", o.BaseURL)
	}
	method := strings.ToUpper(strings.TrimSpace(o.UpdateMethod))
	switch method {
	case "":
		method = http.MethodPut
	case http.MethodPut, http.MethodPatch:
	default:
		return nil, fmt.Errorf("remote: update method must be PUT or PATCH, got %q", o.UpdateMethod)
	}
	hc := o.HTTPClient
	if hc == nil {
		timeout := o.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: u, updateMethod: method, creds: o.Credentials, hc: hc}, nil
}

func (c *Client) List(ctx context.Context, kind string) ([]entity.Entity, error) {
	var env map[string]json.RawMessage
	if err := c.do(ctx, "list", kind, "", http.MethodGet, nil, &env); err != nil {
		return nil, err
	}
	raw, ok := env[kind]
	if !ok {
		return nil, &entity.RemoteError{Op: "list", Kind: kind, Cause: entity.ErrRemoteRejected,
			Err: fmt.Errorf("response has no %q list", kind)}
	}
	var items []entity.Entity
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &entity.RemoteError{Op: "list", Kind: kind, Cause: entity.ErrRemoteRejected, Err: err}
	}
	return items, nil
}

func (c *Client) Create(ctx context.Context, kind string, attrs map[string]any) (entity.Entity, error) {
	var out entity.Entity
	err := c.do(ctx, "create", kind, "", http.MethodPost, attrs, &out)
	return out, err
}

func (c *Client) Update(ctx context.Context, kind, id string, attrs map[string]any) (entity.Entity, error) {
	var out entity.Entity
	err := c.do(ctx, "update", kind, id, c.updateMethod, attrs, &out)
	return out, err
}

func (c *Client) Delete(ctx context.Context, kind, id string) error {
	return c.do(ctx, "delete", kind, id, http.MethodDelete, nil, nil)
}

func (c *Client) endpoint(kind, id string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + url.PathEscape(kind)
	if id != "" {
		u.Path += "/" + url.PathEscape(id)
	}
	return u.String()
}

// do один запрос: сетевые ошибки, таймауты и 5xx → unreachable;
// прочие 4xx и нечитаемый ответ → rejected.
func (c *Client) do(ctx context.Context, op, kind, id, method string, body any, out any) error {
	fail := func(cause error, status int, err error) error {
		return &entity.RemoteError{Op: op, Kind: kind, ID: id, Status: status, Cause: cause, Err: err}
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fail(entity.ErrRemoteRejected, 0, fmt.Errorf("encode: %w", err))
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(kind, id), rd)
	if err != nil {
		return fail(entity.ErrRemoteRejected, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.creds != nil {
		tok, err := c.creds.Token(ctx)
		if err != nil {
			return fail(entity.ErrRemoteRejected, 0, fmt.Errorf("credentials: %w", err))
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fail(entity.ErrRemoteUnreachable, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		// немного тела ответа для диагностики
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := errors.New(strings.TrimSpace(string(slurp)))
		switch {
		case resp.StatusCode/100 == 5,
			resp.StatusCode == http.StatusRequestTimeout,
			resp.StatusCode == http.StatusTooManyRequests:
			return fail(entity.ErrRemoteUnreachable, resp.StatusCode, msg)
		default:
			return fail(entity.ErrRemoteRejected, resp.StatusCode, msg)
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fail(entity.ErrRemoteRejected, resp.StatusCode, fmt.Errorf("decode: %w", err))
	}
	return nil
}

var _ Service = (*Client)(nil)
