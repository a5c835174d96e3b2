package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/logger"
	"github.com/stemsi/exstem-portal/internal/sandbox"
	"github.com/stemsi/exstem-portal/internal/validator"
	"golang.org/x/sync/errgroup"
)

// NewSandboxCmd runs a local exam server for development and e2e tests.
func NewSandboxCmd() *cobra.Command {
	var tokenTTL time.Duration

	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run a local exam server and print one session token per exam",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runSandbox(cmd.Context(), cfg, tokenTTL)
		},
	}

	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 6*time.Hour, "lifetime of the printed session tokens")
	return cmd
}

func runSandbox(ctx context.Context, cfg *config.Config, tokenTTL time.Duration) error {
	log := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, App: "exstem-sandbox"})
	validator.Setup()
	gin.SetMode(cfg.GinMode)

	catalog, err := sandbox.LoadCatalog(cfg.SandboxCatalog)
	if err != nil {
		return err
	}
	srv := sandbox.New(catalog, cfg.SandboxSecret, log)

	tokens, err := srv.IssueAll(tokenTTL)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(tokens))
	for id := range tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		log.Info().
			Str("exam_id", id).
			Str("token", tokens[id]).
			Str("enter_url", fmt.Sprintf("http://localhost:%s/api/v1/portal/enter?token=%s", cfg.ServerPort, tokens[id])).
			Msg("Sandbox session token")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{
		Addr:              ":" + cfg.SandboxPort,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", httpSrv.Addr).Msg("Sandbox exam server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
