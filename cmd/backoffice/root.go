package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"backoffice/internal/config"
	"backoffice/internal/logging"
)

// Глобальные флаги.
var (
	flagConfig          string
	flagSimulateOffline bool
	flagJSON            bool
)

// cfg и logger заполняются в PersistentPreRunE.
var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "backoffice",
	Short:         "Schema-driven content back office with offline fallback",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		c, err := config.Load(flagConfig, bindFlags(cmd.Flags()))
		if err != nil {
			return err
		}
		cfg = c

		// в полноэкранном режиме лог ломает картинку
		if cmd.Name() == "browse" {
			logger = logging.Discard()
			slog.SetDefault(logger)
			return nil
		}
		logger, err = logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		return err
	},
}

// flagKeys флаг → ключ конфигурации. Флаг перекрывает файл и окружение,
// только если задан явно.
var flagKeys = map[string]string{
	"remote":        "remote.base_url",
	"remote-token":  "remote.token",
	"mirror":        "mirror.driver",
	"mirror-path":   "mirror.path",
	"mirror-dsn":    "mirror.dsn",
	"schema-dir":    "schema.dir",
	"catalogs-dir":  "schema.catalogs",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"addr":          "server.addr",
	"admin-token":   "server.admin_token",
	"uploads":       "blob.root",
	"update-method": "remote.update_method",
}

func bindFlags(fs *pflag.FlagSet) config.Binder {
	return func(v *viper.Viper) error {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("flag --%s: %w", name, err)
			}
		}
		return nil
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default: ./backoffice.yaml)")
	pf.String("remote", "", "remote content service base URL (empty: local only)")
	pf.String("remote-token", "", "bearer token for the remote service")
	pf.String("update-method", "", "HTTP method for updates: PUT or PATCH")
	pf.String("mirror", "", "mirror driver: memory, file, sqlite, postgres")
	pf.String("mirror-path", "", "mirror directory (file) or database file (sqlite)")
	pf.String("mirror-dsn", "", "postgres DSN for the mirror")
	pf.String("schema-dir", "", "extra *.dsl schemas on top of the built-in ones")
	pf.String("catalogs-dir", "", "extra YAML catalogs")
	pf.String("uploads", "", "directory for uploaded files")
	pf.String("log-level", "", "debug, info, warn, error")
	pf.String("log-format", "", "text or json")
	pf.BoolVar(&flagSimulateOffline, "simulate-offline", false, "fail every remote call as unreachable")
	pf.BoolVar(&flagJSON, "json", false, "print results as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stubCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(lintCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "backoffice", version)
	},
}
