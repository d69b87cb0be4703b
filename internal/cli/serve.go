package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/medrights/internal/advisor"
	"github.com/ppiankov/medrights/internal/model"
	"github.com/ppiankov/medrights/internal/querylog"
	"github.com/ppiankov/medrights/internal/server"
	"github.com/ppiankov/medrights/internal/watch"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the JSON API used by web front ends.

Routes:
  GET  /api/health
  GET  /api/system/stats
  POST /api/query              {"query": "...", "show_proof": true, "session_id": "..."}
  GET  /api/examples
  GET  /api/knowledge/search?q=term
  GET  /api/clauses/{id}
  GET  /api/history
  POST /api/history/clear
  GET  /metrics

With watch.enabled and data file paths set, edited data files are reloaded
without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		// The serving context is cancelled by now; flushing needs its own
		defer a.close(context.Background())

		if a.cfg.Watch.Enabled {
			reloader, err := startWatch(ctx, a)
			if err != nil {
				return err
			}
			if reloader != nil {
				defer reloader.Stop()
			}
		}

		srv := server.New(a.advisor, a.cfg.Server,
			server.WithLogger(a.logger),
			server.WithCollectors(queryLogCollectors(a.recorder)...),
		)
		return srv.ListenAndServe(ctx)
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.String("addr", "", "listen address (default :8080)")
	flags.Bool("watch", false, "reload data files when they change")

	_ = viper.BindPFlag("server.addr", flags.Lookup("addr"))
	_ = viper.BindPFlag("watch.enabled", flags.Lookup("watch"))

	rootCmd.AddCommand(serveCmd)
}

// startWatch reloads the configured data files into the advisor. Embedded
// data never changes, so without file paths there is nothing to watch.
func startWatch(ctx context.Context, a *app) (*watch.Reloader, error) {
	paths := dataPaths(a.cfg.Data)
	if len(paths) == 0 {
		a.logger.Warn("watch enabled but all data is embedded; nothing to watch")
		return nil, nil
	}

	cfg := a.cfg
	load := func() (*advisor.Snapshot, error) {
		return loadSnapshot(cfg)
	}

	reloader, err := watch.New(paths, load, a.advisor, cfg.Watch.Debounce, a.logger)
	if err != nil {
		return nil, fmt.Errorf("watch data files: %w", err)
	}
	if err := reloader.Start(ctx); err != nil {
		return nil, fmt.Errorf("watch data files: %w", err)
	}
	a.logger.Info("watching data files", zap.Strings("paths", paths))
	return reloader, nil
}

func dataPaths(d model.DataConfig) []string {
	var paths []string
	for _, p := range []string{d.KnowledgePath, d.IntentsPath, d.TemplatesPath} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// queryLogCollectors exposes the query log counters on /metrics
func queryLogCollectors(r *querylog.Recorder) []prometheus.Collector {
	counter := func(name, help string, value func() int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "medrights_querylog_" + name,
			Help: help,
		}, func() float64 { return float64(value()) })
	}

	return []prometheus.Collector{
		counter("written_total", "Query records written to the sink.", r.Written),
		counter("dropped_total", "Query records dropped because the buffer was full.", r.Dropped),
		counter("failed_total", "Query records the sink failed to write.", r.Failed),
	}
}
