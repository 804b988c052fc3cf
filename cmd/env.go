package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/farm-ledger/internal/farms"
	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/ocr"
	"github.com/sells-group/farm-ledger/internal/parser"
	"github.com/sells-group/farm-ledger/internal/pipeline"
	"github.com/sells-group/farm-ledger/internal/resilience"
	"github.com/sells-group/farm-ledger/internal/review"
	"github.com/sells-group/farm-ledger/internal/rules"
	"github.com/sells-group/farm-ledger/internal/store"
	anthropicpkg "github.com/sells-group/farm-ledger/pkg/anthropic"
)

// ledgerEnv holds the store, farm roster, rule file and services a command
// needs. Pipeline is nil unless requested.
type ledgerEnv struct {
	Store    store.Store
	Farms    *model.FarmsConfig
	Rules    *rules.FileStore
	Review   *review.Service
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (e *ledgerEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "data/farm_ledger.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initLedger validates config for mode, opens and migrates the store, and
// loads the farm roster. withPipeline also builds the extraction and
// parsing clients. Callers should defer env.Close().
func initLedger(ctx context.Context, mode string, withPipeline bool) (*ledgerEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &ledgerEnv{Store: st}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	roster, err := farms.Load(cfg.Paths.FarmsConfig)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "load farms config")
	}
	env.Farms = roster
	env.Rules = rules.NewFileStore(cfg.Paths.DynamicRules)
	env.Review = review.NewService(st, roster, env.Rules)

	zap.L().Info("ledger ready",
		zap.String("store", cfg.Store.Driver),
		zap.Int("farms", len(roster.Farms)),
	)

	if !withPipeline {
		return env, nil
	}

	guard := resilience.NewGuard("anthropic",
		cfg.Anthropic.RequestsPerMinute,
		resilience.NewRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs),
		resilience.NewCircuitConfig(cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutSecs),
	)
	client := anthropicpkg.NewClient(cfg.Anthropic.Key)

	extractor, err := ocr.NewExtractor(cfg, client, guard)
	if err != nil {
		env.Close()
		return nil, err
	}
	cache, err := ocr.NewCache(ctx, cfg.OCR)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "init vision cache")
	}
	extractor = ocr.WithCache(extractor, cache)

	p := pipeline.New(cfg, st, extractor,
		parser.New(client, cfg.Anthropic.ParseModel, 0, guard),
		roster, env.Rules,
	)
	p.Verbose = verbose
	if err := p.Prepare(ctx); err != nil {
		env.Close()
		return nil, err
	}
	env.Pipeline = p
	return env, nil
}
