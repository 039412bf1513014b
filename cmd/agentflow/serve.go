package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentflow/internal/activitylog"
	httpserver "github.com/fyrsmithlabs/agentflow/internal/http"
	"github.com/fyrsmithlabs/agentflow/internal/workflow"
)

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host; defaults to server.host")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port; defaults to server.http_port")
}

// serveCmd serves the read-only status API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve workflow status and activity logs over HTTP",
	Long: `Serve a read-only JSON API over the persisted workflow states and
activity logs under system.storage_root. State is re-read on every request,
so runs started by other processes show up immediately.

Endpoints:
  GET  /health
  GET  /metrics
  GET  /api/v1/workflows
  GET  /api/v1/workflows/:id
  GET  /api/v1/workflows/:id/summary
  GET  /api/v1/workflows/:id/history
  GET  /api/v1/logs
  POST /api/v1/scrub`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// readers returns disk-backed workflow and activity sources that log read
// failures instead of failing the caller.
func (a *app) readers(ctx context.Context) (*workflow.RepositoryView, *activitylog.DirReader) {
	root := a.cfg.System.StorageRoot
	wf := workflow.NewRepositoryView(workflow.NewFileRepository(root), func(id string, err error) {
		a.logger.Warn(ctx, "failed to read workflow state", zap.String("workflow_id", id), zap.Error(err))
	})
	acts := activitylog.NewDirReader(a.cfg.System.LogDir(), func(err error) {
		a.logger.Warn(ctx, "failed to read activity log", zap.Error(err))
	})
	return wf, acts
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	host, port := a.cfg.Server.Host, a.cfg.Server.Port
	if serveHost != "" {
		host = serveHost
	}
	if servePort != 0 {
		port = servePort
	}

	wf, acts := a.readers(ctx)
	server, err := httpserver.NewServer(wf, acts, a.scrubber, a.logger, &httpserver.Config{Host: host, Port: port})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	fmt.Fprintf(cmd.ErrOrStderr(), "agentflow API listening on http://%s:%d\n", host, port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
