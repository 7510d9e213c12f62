package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/esiweave/esiweave/internal/config"
	"github.com/esiweave/esiweave/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the composition proxy",
	Long: `Start the HTTP proxy that fetches documents from the configured
origin(s), resolves their include directives, and streams the composed
result to clients.

Examples:
  esiweave serve --origin http://localhost:3000
  esiweave serve --routes routes.yml --port 8080
  ESIWEAVE_UPSTREAM_URL=http://origin:3000 esiweave serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.IntP("port", "p", 8080, "Port to listen on")
	flags.String("host", "0.0.0.0", "Host to bind to")
	flags.String("origin", "", "Default origin base URL")
	flags.String("routes", "", "Route table file (YAML, hot reloaded)")
	flags.String("namespace", "esi", "Tag namespace recognized as directives")
	flags.Int("max-depth", 10, "Maximum include recursion depth")

	bindFlag(flags, "server.port", "port")
	bindFlag(flags, "server.host", "host")
	bindFlag(flags, "upstream.url", "origin")
	bindFlag(flags, "routes.file", "routes")
	bindFlag(flags, "esi.namespace", "namespace")
	bindFlag(flags, "esi.max_depth", "max-depth")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Start(ctx)
}
