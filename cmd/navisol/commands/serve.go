package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"navisol/internal/adapters/httpapi"
	"navisol/internal/core"
)

const (
	shutdownTimeout = 10 * time.Second
	// traceDepth is how many finished operations /debug/vars shows.
	traceDepth = 200
)

func newServeCommand(flags *globalFlags, info VersionInfo) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the workflow API, /healthz and /metrics.

Committed audit entries are streamed to Redis when NAVISOL_REDIS_ADDR is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics, err := core.NewPrometheusMetricsRecorder(reg)
			if err != nil {
				return err
			}
			statusGauge, err := core.NewProjectStatusGauge(reg)
			if err != nil {
				return err
			}
			tracer := core.NewRingTracer(traceDepth, nil)
			if err := tracer.Publish("navisol_operations"); err != nil {
				return err
			}
			a, err := openApp(cmd, flags, appOptions{metrics: metrics, tracer: tracer})
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}

			opts := httpapi.Options{
				AllowedOrigins: a.cfg.HTTP.AllowedOrigins,
				Gatherer:       reg,
				Logger:         a.logger,
				Version:        info.Version,
				DebugVars:      true,
				RateLimit:      rate.Limit(a.cfg.HTTP.RateLimit),
				RateBurst:      a.cfg.HTTP.RateBurst,
			}
			if a.publisher != nil {
				opts.Ready = a.publisher.Ping
			}
			gin.SetMode(gin.ReleaseMode)
			srv := &http.Server{
				Addr:              addr,
				Handler:           httpapi.NewRouter(a.svc, opts),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if a.cfg.StatusRefresh != "" {
				scheduler, err := scheduleStatusRefresh(ctx, a, statusGauge)
				if err != nil {
					return err
				}
				defer scheduler.Stop()
			}
			return serve(ctx, srv, a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default NAVISOL_HTTP_ADDR)")
	return cmd
}

// scheduleStatusRefresh recounts projects per status now and then on the
// configured schedule. Overlapping runs are skipped.
func scheduleStatusRefresh(ctx context.Context, a *app, gauge *core.ProjectStatusGauge) (*cron.Cron, error) {
	refresh := func() {
		if err := gauge.Refresh(ctx, a.svc); err != nil && ctx.Err() == nil {
			a.logger.Warn("project status refresh failed", "error", err)
		}
	}
	refresh()
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(a.cfg.StatusRefresh, refresh); err != nil {
		return nil, fmt.Errorf("schedule status refresh: %w", err)
	}
	c.Start()
	a.logger.Info("status refresh scheduled", "schedule", a.cfg.StatusRefresh)
	return c, nil
}

// serve runs srv until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server, a *app) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return a.out.Error("Cannot listen", err.Error(), []string{"Choose another --addr."})
	}
	a.out.Success("navisol API listening on %s", ln.Addr())
	a.logger.Info("http server started", "addr", ln.Addr().String(), "storage", string(a.cfg.Storage.Driver), "blob", a.cfg.Blob.Driver)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	a.out.Step("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
