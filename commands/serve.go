package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/insoln/slack-mm2/handlers"
)

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the HTTP server for uploads, progress and export control.",
	Args:  cobra.NoArgs,
	RunE:  serveCmdF,
}

func init() {
	RootCmd.AddCommand(ServeCmd)
}

func serveCmdF(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !a.cfg.SkipStartupTasks {
		if _, err := a.plugin.Ensure(ctx); err != nil {
			a.logger.WithError(err).Warn("Plugin auto-ensure failed")
		}
		if err := a.supervisor.ResumeInterrupted(ctx); err != nil {
			a.logger.WithError(err).Warn("Failed to resume interrupted jobs")
		}
	}

	server := handlers.NewServer(a.importer, a.supervisor, a.orchestrator, a.entitiesRepo, a.jobsRepo, a.plugin, a.logger)
	router := mux.NewRouter()
	server.SetupEndpoints(router)

	httpServer := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           cors.AllowAll().Handler(router),
		ReadHeaderTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("Backend available at: http://%s", a.cfg.Server.Addr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	a.logger.Info("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
