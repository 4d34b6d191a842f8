package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stridecoach/internal/corpus"
	"stridecoach/internal/logging"
	"stridecoach/internal/store"
	"stridecoach/internal/toolserver/datasrv"
	"stridecoach/internal/toolserver/promptsrv"
)

var (
	dataAddr   string
	promptAddr string
)

var serveDataCmd = &cobra.Command{
	Use:   "serve-data",
	Short: "Run the data tool server",
	Long: `Hosts the data tool surface over HTTP: conversation history, progress,
activities, planned sessions, and the planning tools. The controller reaches
all persistent state exclusively through this server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		c, err := corpus.LoadDir(cfg.Corpus.Dir)
		if err != nil {
			return fmt.Errorf("failed to load corpus: %w", err)
		}

		svc := datasrv.New(st, c, nil, cfg.PlanDeadline())
		return serve(cmd.Context(), "data", dataAddr, svc.Server().Handler())
	},
}

var servePromptsCmd = &cobra.Command{
	Use:   "serve-prompts",
	Short: "Run the prompt tool server",
	Long:  `Hosts read-only prompt files over HTTP for the controller.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfg.Prompts.Dir); err != nil {
			return fmt.Errorf("prompt directory %s is not readable: %w", cfg.Prompts.Dir, err)
		}
		svc := promptsrv.New(cfg.Prompts.Dir)
		return serve(cmd.Context(), "prompt", promptAddr, svc.Server().Handler())
	},
}

func init() {
	serveDataCmd.Flags().StringVar(&dataAddr, "addr", ":8701", "listen address")
	servePromptsCmd.Flags().StringVar(&promptAddr, "addr", ":8702", "listen address")
}

// serve runs the HTTP server until SIGINT/SIGTERM, then drains in-flight
// requests.
func serve(ctx context.Context, name, addr string, handler http.Handler) error {
	logger := logging.Named("serve." + name)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
