package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tradepulse/internal/accumulator"
	"tradepulse/internal/candlestore"
	"tradepulse/internal/config"
	"tradepulse/internal/contextnow"
	"tradepulse/internal/controlloop"
	"tradepulse/internal/coordinator"
	"tradepulse/internal/events"
	"tradepulse/internal/metrics"
	"tradepulse/internal/orderflow"
	"tradepulse/internal/sandbox"
	"tradepulse/internal/venue"
)

// Tradepulse is the running application: loaded config, the analytic
// components controlloop.Loop wires together, and the background metrics
// server. Mirrors the teacher's P9MicroStream app struct
// (config/logger/supervisor/broadcaster fields plus ctx/cancel), swapping
// its WS broadcaster for this domain's control loop.
type Tradepulse struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *candlestore.Store
	met    *metrics.Metrics
	loop   *controlloop.Loop

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	app := &Tradepulse{}

	if err := app.initialize(); err != nil {
		fmt.Printf("failed to initialize tradepulse: %v\n", err)
		os.Exit(1)
	}

	if err := app.start(); err != nil {
		app.logger.Error("failed to start tradepulse", zap.Error(err))
		os.Exit(1)
	}

	app.waitForShutdown()
	app.shutdown()
}

func (app *Tradepulse) initialize() error {
	app.ctx, app.cancel = context.WithCancel(context.Background())

	var err error
	app.logger, err = setupLogger()
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}

	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	loader := config.NewConfigLoader()
	app.cfg, err = loader.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app.logger.Info("configuration loaded",
		zap.String("symbol", app.cfg.Venue.Symbol),
		zap.Strings("analysis_tfs", app.cfg.Timeframes.Analysis))

	if err := os.MkdirAll(filepath.Dir(app.cfg.DB.Path), 0o755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}
	app.store, err = candlestore.Open(app.cfg.DB.Path, app.logger)
	if err != nil {
		return fmt.Errorf("open candle store: %w", err)
	}

	app.met = metrics.New(prometheus.DefaultRegisterer, app.logger)

	ven := venue.NewBybitAdapter(app.cfg.Venue.Symbol, app.cfg.Venue.Category, app.cfg.Venue.Testnet, app.logger)

	acc := accumulator.New(app.store, ven, venue.SystemClock{}, accumulator.Config{
		KlineLimit:         app.cfg.Timeframes.KlineLimit,
		BackfillMaxCandles: app.cfg.Timeframes.BackfillMaxCandles,
	}, app.logger)

	coord := coordinator.NewCoordinator(coordinator.FromConfig(app.cfg))

	sink, err := buildSink(app.cfg, app.store, app.met)
	if err != nil {
		return fmt.Errorf("build event sink: %w", err)
	}

	var publisher *events.StatePublisher
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", app.cfg.Redis.Host, app.cfg.Redis.Port),
		Password: app.cfg.Redis.Password,
		DB:       app.cfg.Redis.DB,
	})
	if err := rdb.Ping(app.ctx).Err(); err != nil {
		app.logger.Warn("redis unavailable, last-state publish disabled", zap.Error(err))
	} else {
		publisher = events.NewStatePublisher(rdb, app.logger)
	}

	analysisTFs, err := parseTimeframes(app.cfg.Timeframes.Analysis)
	if err != nil {
		return fmt.Errorf("parse analysis timeframes: %w", err)
	}
	dbTFs, err := parseTimeframes(app.cfg.Timeframes.DB)
	if err != nil {
		return fmt.Errorf("parse db timeframes: %w", err)
	}
	if len(dbTFs) == 0 {
		dbTFs = analysisTFs
	}
	if len(analysisTFs) == 0 {
		return fmt.Errorf("timeframes.analysis must list at least one timeframe")
	}

	loopCfg := controlloop.Config{
		Symbol:       app.cfg.Venue.Symbol,
		AnalysisTFs:  analysisTFs,
		DBTFs:        dbTFs,
		ExecutionTF:  analysisTFs[0],
		KlineLimit:   app.cfg.Timeframes.KlineLimit,
		PollInterval: app.cfg.Timeframes.PollInterval(),
		BookDepth:    app.cfg.Orderflow.DepthLevels,
	}

	app.loop = controlloop.New(loopCfg, app.store, ven, venue.SystemClock{}, acc, coord,
		orderflow.FromConfig(app.cfg), contextnow.DefaultConfig(), sandbox.FromConfig(app.cfg),
		sink, app.met, &events.LastState{}, publisher, app.logger)

	app.logger.Info("tradepulse initialized")
	return nil
}

func setupLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg.OutputPaths = []string{"stdout"}
	return cfg.Build()
}

func buildSink(cfg *config.Config, store *candlestore.Store, met *metrics.Metrics) (sandbox.Sink, error) {
	csvSink, err := events.NewCSVSink(filepath.Dir(cfg.DB.Path))
	if err != nil {
		return nil, err
	}
	multi := events.MultiSink{Sinks: []sandbox.Sink{csvSink, events.NewDBSink(store)}}
	return events.MetricsSink{Sink: multi, Met: met, Symbol: cfg.Venue.Symbol}, nil
}

func parseTimeframes(raw []string) ([]candlestore.Timeframe, error) {
	out := make([]candlestore.Timeframe, 0, len(raw))
	for _, s := range raw {
		tf := candlestore.Timeframe(s)
		if !tf.IsValid() {
			return nil, fmt.Errorf("unknown timeframe %q", s)
		}
		out = append(out, tf)
	}
	return out, nil
}

func (app *Tradepulse) start() error {
	app.logger.Info("starting tradepulse control loop")

	if app.cfg.Metrics.Enabled {
		if err := app.met.Start(app.cfg.Metrics.Addr); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	go func() {
		if err := app.loop.Run(app.ctx); err != nil {
			app.logger.Error("control loop exited with error", zap.Error(err))
		}
	}()

	return nil
}

func (app *Tradepulse) waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	app.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
}

func (app *Tradepulse) shutdown() {
	app.logger.Info("shutting down tradepulse")
	app.cancel()
	if app.cfg.Metrics.Enabled {
		if err := app.met.Stop(); err != nil {
			app.logger.Error("error stopping metrics server", zap.Error(err))
		}
	}
	if err := app.store.Close(); err != nil {
		app.logger.Error("error closing candle store", zap.Error(err))
	}
	app.logger.Info("tradepulse shutdown complete")
}
