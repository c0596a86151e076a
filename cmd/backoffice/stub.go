package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"backoffice/internal/remotestub"
	"backoffice/internal/schema"
	"backoffice/internal/seed"
)

var (
	stubListen string
	stubToken  string
	stubSeed   bool
	stubDown   bool
)

var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Run an in-memory remote content service for local development",
	Long: `Stub serves GET/POST /{kind} and PUT/PATCH/DELETE /{kind}/{id} from memory.
Data is lost on exit.

Example:
  backoffice stub --listen :9090 --seed
  backoffice stub --down   # every request answers 503`,
	Args: cobra.NoArgs,
	RunE: runStub,
}

func init() {
	stubCmd.Flags().StringVar(&stubListen, "listen", ":9090", "listen address")
	stubCmd.Flags().StringVar(&stubToken, "token", "", "require Authorization: Bearer <token>")
	stubCmd.Flags().BoolVar(&stubSeed, "seed", false, "preload the built-in default records")
	stubCmd.Flags().BoolVar(&stubDown, "down", false, "start in failing mode")
}

func runStub(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage := remotestub.NewStorage()
	if stubSeed {
		reg, err := schema.Load(cfg.Schema.Dir, cfg.Schema.Catalogs)
		if err != nil {
			return err
		}
		for _, kind := range reg.Kinds() {
			items, err := seed.Embedded{}.Defaults(kind)
			if err != nil {
				return err
			}
			storage.Seed(kind, items...)
			logger.Info("seeded", "kind", kind, "count", len(items))
		}
	}

	stub := remotestub.NewServer(storage, remotestub.WithToken(stubToken), remotestub.WithLogger(logger))
	stub.SetDown(stubDown)

	srv := &http.Server{Addr: stubListen, Handler: stub.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		logger.Info("stub listening", "addr", stubListen)
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
