package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/qldb/internal/audit"
	"github.com/jmerrifield20/qldb/internal/handler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ledger over HTTP",
	Long: `serve exposes the ledger's JSON API under /api/v1, plus /healthz and
/metrics. When server.admin_secret is set, write routes require a Bearer
token obtained from POST /api/v1/auth/token.`,
	Args: cobra.NoArgs,
	RunE: withAppAt(zap.InfoLevel, runServe),
}

func init() {
	serveCmd.Flags().Int("port", 0, "HTTP listen port (default 8080)")
}

func runServe(ctx context.Context, a *app, _ []string) error {
	logger := a.logger

	auditor := audit.New(a.svc, audit.Config{Interval: a.cfg.Server.AuditInterval}, logger)
	if st := auditor.Check(ctx); st.Healthy {
		logger.Info("ledger verified",
			zap.Int("records", st.Chain.Checked),
			zap.Int("blocks", st.Blocks.Checked),
		)
	}
	if a.cfg.Server.AuditInterval > 0 {
		go auditor.Run(ctx)
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(ctx, a.svc, a.cfg.Server, logger, handler.WithIntegrityReporter(auditor))

	port := a.cfg.Server.Port
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("qldb HTTP listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down qldb...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	logger.Info("qldb stopped")
	return nil
}
