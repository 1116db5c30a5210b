package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ppiankov/claimcheck/internal/server"
	"github.com/ppiankov/claimcheck/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveAddr       string
	shutdownTimeout time.Duration
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the claim analysis HTTP API",
	Long: `Serve exposes the pipeline over HTTP:
  GET  /api/health     liveness
  GET  /api/status     index and provider status
  POST /api/query      decide one claim query
  POST /api/batch      decide up to 50 queries
  POST /api/upload     index the configured policy document
  GET  /api/test-llm   check the reasoning service
  GET  /api/history    recent queries
  GET  /api/analytics  approval and cache figures
  POST /api/report     Markdown claim report

Example:
  claimcheck serve
  claimcheck serve --addr :9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := setupApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	opts := []server.Option{
		server.WithLogger(a.logger),
		server.WithRateLimiter(worker.NewLimiter(a.cfg.Server.RequestsPerSecond, a.cfg.Server.BurstSize)),
	}
	if a.history != nil {
		opts = append(opts, server.WithHistory(a.history))
	}
	if a.cache != nil {
		opts = append(opts, server.WithCacheStats(a.cache))
	}

	srv, err := server.New(a.pipeline, server.Config{
		Addr:         addr,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		DocumentPath: a.cfg.Ingest.DocumentPath,
	}, opts...)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	fmt.Fprintf(os.Stderr, "✓ Listening on %s (LLM %s/%s)\n", addr, a.cfg.LLM.Provider, a.cfg.LLM.Model)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Warn("shutdown incomplete", zap.Error(err))
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
