package main

import (
	"context"
	"errors"
	"expvar"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"txkit/internal/core"
)

var (
	flagMetricsAddr  string
	flagMetricsFiles []string
)

// expvar names are process-global, so every run shares one recorder.
var submitterVars = sync.OnceValue(func() *core.ExpvarMetricsRecorder {
	return core.NewExpvarMetricsRecorder("txkit_submitter")
})

func init() {
	metricsCmd.Flags().StringVar(&flagMetricsAddr, "addr", ":9464", "listen address for /metrics and /debug/vars")
	metricsCmd.Flags().StringSliceVar(&flagMetricsFiles, "submit", nil, "request files to submit before serving")
	rootCmd.AddCommand(metricsCmd)
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Serve submitter metrics in the Prometheus exposition format",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		sub, err := openSubmitter(ctx, core.WithMetricsRecorder(core.MultiMetricsRecorder{rec, submitterVars()}))
		if err != nil {
			return err
		}
		defer closeConnection(sub.Connection())
		for _, path := range flagMetricsFiles {
			f, err := readRequest(cmd, path)
			if err != nil {
				return err
			}
			if _, err := sub.Submit(ctx, f.Request); err != nil {
				logger.Warn("submit request", "file", path, "error", err)
			}
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		mux.Handle("/debug/vars", expvar.Handler())
		ln, err := net.Listen("tcp", flagMetricsAddr)
		if err != nil {
			return err
		}
		return serve(ctx, &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}, ln)
	},
}

// serve runs srv on ln until ctx is done, then shuts it down.
func serve(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
