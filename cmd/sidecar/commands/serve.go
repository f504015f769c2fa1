package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skcd-labs/sidecar-core/internal/config"
	"github.com/skcd-labs/sidecar-core/internal/logging"
	"github.com/skcd-labs/sidecar-core/internal/server"
)

var (
	serveAddr string
	serveDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the session event stream over HTTP as Server-Sent Events",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Address to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if m := GetGlobalModel(); m != "" {
		cfg.Model = m
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx := context.Background()
	_, bus, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}

	srvConfig := server.DefaultConfig()
	srvConfig.Addr = cfg.Server.Addr
	srv := server.New(srvConfig, bus)

	go func() {
		logging.Info().Str("addr", cfg.Server.Addr).Msg("event stream server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
