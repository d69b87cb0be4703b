package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/medrights/internal/advisor"
	"github.com/ppiankov/medrights/internal/cache"
	"github.com/ppiankov/medrights/internal/logging"
	"github.com/ppiankov/medrights/internal/model"
	"github.com/ppiankov/medrights/internal/querylog"
)

// app bundles what a command needs to answer queries
type app struct {
	cfg      *model.Config
	logger   *zap.Logger
	advisor  *advisor.Advisor
	recorder *querylog.Recorder
}

// setDefaults registers every default so environment variables and the
// config file can override any single key
func setDefaults(v *viper.Viper) {
	d := model.DefaultConfig()

	v.SetDefault("data.knowledge_path", d.Data.KnowledgePath)
	v.SetDefault("data.intents_path", d.Data.IntentsPath)
	v.SetDefault("data.templates_path", d.Data.TemplatesPath)

	v.SetDefault("scoring.keyword_weight", d.Scoring.KeywordWeight)
	v.SetDefault("scoring.pattern_weight", d.Scoring.PatternWeight)
	v.SetDefault("scoring.verb_weight", d.Scoring.VerbWeight)
	v.SetDefault("scoring.normalizer", d.Scoring.Normalizer)
	v.SetDefault("scoring.max_intents", d.Scoring.MaxIntents)
	v.SetDefault("scoring.retrieval_depth", d.Scoring.RetrievalDepth)

	v.SetDefault("output.show_proof", d.Output.ShowProof)
	v.SetDefault("output.pretty", d.Output.Pretty)
	v.SetDefault("output.verbose", d.Output.Verbose)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.dir", d.Cache.Dir)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.max_connections", d.Server.MaxConnections)
	v.SetDefault("server.requests_per_second", d.Server.RequestsPerSecond)
	v.SetDefault("server.burst", d.Server.Burst)
	v.SetDefault("server.tracked_clients", d.Server.TrackedClients)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.max_query_bytes", d.Server.MaxQueryBytes)

	v.SetDefault("querylog.driver", d.QueryLog.Driver)
	v.SetDefault("querylog.path", d.QueryLog.Path)
	v.SetDefault("querylog.dsn", d.QueryLog.DSN)
	v.SetDefault("querylog.buffer", d.QueryLog.Buffer)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("watch.enabled", d.Watch.Enabled)
	v.SetDefault("watch.debounce", d.Watch.Debounce)

	v.SetDefault("batch.workers", d.Batch.Workers)
	v.SetDefault("batch.requests_per_second", d.Batch.RequestsPerSecond)
}

// loadConfig resolves flags, environment, config file and defaults
func loadConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func loadSnapshot(cfg *model.Config) (*advisor.Snapshot, error) {
	snap, err := advisor.LoadSnapshot(cfg.Data, cfg.Scoring)
	if err != nil {
		return nil, fmt.Errorf("load data: %w", err)
	}
	return snap, nil
}

// newApp loads config and data and wires the advisor with its cache and
// query log
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	snap, err := loadSnapshot(cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("data loaded",
		zap.String("version", snap.Version),
		zap.Int("clauses", snap.Knowledge.Metadata().TotalClauseCount),
	)

	recorder, err := querylog.Open(ctx, cfg.QueryLog, logger)
	if err != nil {
		return nil, err
	}

	opts := []advisor.Option{
		advisor.WithLogger(logger),
		advisor.WithRecorder(recorder),
	}
	if c := cache.New(cfg.Cache); c != nil {
		opts = append(opts, advisor.WithCache(c, cfg.Cache.TTL))
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		advisor:  advisor.New(snap, opts...),
		recorder: recorder,
	}, nil
}

// close flushes the query log
func (a *app) close(ctx context.Context) {
	if err := a.recorder.Close(ctx); err != nil {
		a.logger.Warn("close query log", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// printMarkdown writes text, rendered for terminals when pretty is set
func printMarkdown(w io.Writer, text string, pretty bool) error {
	if pretty {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err != nil {
			return fmt.Errorf("markdown renderer: %w", err)
		}
		out, err := r.Render(text)
		if err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		_, err = io.WriteString(w, out)
		return err
	}

	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := io.WriteString(w, text)
	return err
}

// loadAdvisor builds an advisor without cache or query log, for commands
// that only browse the data
func loadAdvisor() (*advisor.Advisor, *model.Config, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	snap, err := loadSnapshot(cfg)
	if err != nil {
		return nil, nil, err
	}
	return advisor.New(snap), cfg, nil
}
