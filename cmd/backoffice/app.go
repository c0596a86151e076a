package main

import (
	"context"
	"fmt"
	"strings"

	"backoffice/internal/api"
	"backoffice/internal/blob"
	"backoffice/internal/form"
	"backoffice/internal/mirror"
	"backoffice/internal/remote"
	"backoffice/internal/schema"
	"backoffice/internal/seed"
	"backoffice/internal/store"
	"backoffice/internal/syncer"
)

// app собранные по конфигурации зависимости одной команды.
type app struct {
	registry *schema.Registry
	mirror   mirror.Mirror
	blobs    *blob.LocalStore
	notices  *api.NoticeLog
	set      *store.Set
}

func openApp(ctx context.Context) (*app, error) {
	reg, err := schema.Load(cfg.Schema.Dir, cfg.Schema.Catalogs)
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}

	svc, err := remoteService()
	if err != nil {
		return nil, err
	}

	m, err := mirror.Open(ctx, mirror.Config{Driver: cfg.Mirror.Driver, Path: cfg.Mirror.Path, DSN: cfg.Mirror.DSN})
	if err != nil {
		return nil, fmt.Errorf("open mirror: %w", err)
	}

	a := &app{
		registry: reg,
		mirror:   m,
		blobs:    blob.NewLocalStore(cfg.Blob.Root, cfg.Blob.BaseURL),
		notices:  api.NewNoticeLog(100),
	}
	a.set = store.NewSet(ctx, reg, svc, m,
		store.WithLogger(logger),
		store.WithNotifier(a.notify),
		store.WithPolicyOptions(syncer.WithSeed(seed.Embedded{})),
	)
	return a, nil
}

// remoteService клиент удалённого сервиса; nil: работа только с локальной копией.
func remoteService() (remote.Service, error) {
	var svc remote.Service
	if !cfg.Offline() {
		c, err := remote.NewClient(remote.Options{
			BaseURL:      cfg.Remote.BaseURL,
			Timeout:      cfg.Remote.Timeout,
			UpdateMethod: cfg.Remote.UpdateMethod,
			Credentials:  remote.StaticToken(cfg.Remote.Token),
		})
		if err != nil {
			return nil, err
		}
		svc = c
	}
	if flagSimulateOffline {
		return remote.NewFaulty(svc).Offline(), nil
	}
	return svc, nil
}

func (a *app) notify(n syncer.Notice) {
	a.notices.Add(n)
	logger.Warn(n.Message, "kind", n.Kind.String(), "entity", n.EntityKind, "id", n.ID, "err", n.Err)
}

func (a *app) formOptions() []form.Option {
	return []form.Option{
		form.WithUploader(a.blobs),
		form.WithPlaceholder(cfg.Blob.Placeholder),
		form.WithLogger(logger),
	}
}

func (a *app) store(kind string) (*store.Store, error) {
	st, ok := a.set.Get(kind)
	if !ok {
		return nil, fmt.Errorf("unknown entity %q (known: %s)", kind, strings.Join(a.registry.Kinds(), ", "))
	}
	return st, nil
}

func (a *app) Close() error { return mirror.Close(a.mirror) }
