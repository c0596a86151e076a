package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"backoffice/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin REST API",
	Long: `Serve loads the schemas, fetches every collection (falling back to the
local mirror when the remote service is down) and exposes the admin API.

Example:
  backoffice serve --addr :8080 --remote http://localhost:9090
  backoffice serve --mirror sqlite --mirror-path data/mirror.db
  backoffice serve --simulate-offline`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	serveCmd.Flags().String("admin-token", "", "require Authorization: Bearer <token> on /api")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.set.FetchAll(ctx); err != nil {
		logger.Warn("initial fetch incomplete", "err", err)
	}
	for _, st := range a.set.Stores() {
		logger.Info("collection ready", "kind", st.Kind(), "count", st.Len(), "degraded", st.Degraded())
	}

	srv := api.New(a.set,
		api.WithBlobs(a.blobs),
		api.WithPlaceholder(cfg.Blob.Placeholder),
		api.WithAuthorizer(api.BearerToken(cfg.Server.AdminToken)),
		api.WithNotices(a.notices),
		api.WithLogger(logger),
	)
	return srv.Run(ctx, cfg.Server.Addr)
}
