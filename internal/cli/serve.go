package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-portal/internal/client"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/handler"
	"github.com/stemsi/exstem-portal/internal/logger"
	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/router"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/session"
	"github.com/stemsi/exstem-portal/internal/storage"
	"github.com/stemsi/exstem-portal/internal/submission"
	"github.com/stemsi/exstem-portal/internal/validator"
	"github.com/stemsi/exstem-portal/internal/worker"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd starts the portal API for one tab.
func NewServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the portal HTTP/WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.ServerPort = port
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "override SERVER_PORT")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := logger.Setup(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		App:    "exstem-portal",
		TabID:  cfg.TabID,
	})
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("slot_backend", cfg.SlotBackend).
		Str("exam_api", cfg.ExamAPIURL).
		Msg("Starting ExStem Portal")

	validator.Setup()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	store := session.NewStore(backend.Slot, log)
	api := client.New(cfg.ExamAPIURL, log)
	autosave := worker.NewAutosaveWorker(api, cfg.AutosaveBuffer, log)

	g, gctx := errgroup.WithContext(ctx)

	portal := service.NewPortalService(store, api, autosave, service.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		DriftTolerance:    cfg.DriftTolerance,
		Policy: submission.Policy{
			MaxAttempts:    cfg.SubmitMaxAttempts,
			InitialBackoff: cfg.SubmitInitialBackoff,
		},
	}, log)
	portal.Start(gctx)

	limiter := middleware.NewRateLimiter(30, time.Minute)
	r := router.SetupRouter(&router.Handlers{
		Portal: handler.NewPortalHandler(portal),
		WS:     handler.NewWSHandler(portal, log, cfg.AllowedOrigins),
	}, cfg, limiter)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		autosave.Start(gctx)
		return nil
	})
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Portal stopped with error")
		return err
	}
	log.Info().Msg("Shutdown complete")
	return nil
}
