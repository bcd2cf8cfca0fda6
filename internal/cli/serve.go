package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"mystery-hunt-client/internal/app"
	"mystery-hunt-client/internal/config"
	transport "mystery-hunt-client/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand that starts the local play gateway.
func NewServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the local play gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), flags)
		},
	}
}

// listenPort prefers the flag, then server.port (which PORT overrides).
func listenPort(flag string, cfg config.Config) string {
	if flag != "" {
		return flag
	}
	if cfg.Server.Port != "" {
		return cfg.Server.Port
	}
	return "8080"
}

func runServer(ctx context.Context, flags *rootFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := buildDeps(ctx, flags)
	if err != nil {
		return err
	}
	defer d.Close()

	finalPort := listenPort(*flags.port, d.cfg)

	prefix := d.cfg.Cache.HandlePrefix
	if prefix == "" {
		prefix = app.DefaultHandlePrefix
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", transport.NewGateway(d.service, d.token, d.log).ServeWS)
	transport.NewAssetHandler(d.assets, d.log).Register(mux, prefix)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		d.log.WithField("port", finalPort).Info("starting play gateway")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		d.log.Info("shutting down server...")
	case <-ctx.Done():
		d.log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
