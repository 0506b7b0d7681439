// Package metrics exposes tradepulse's Prometheus instrumentation: candles
// inserted, accumulator errors, trades opened/closed, skips by reason,
// tick and coordinator-analysis duration, and open-position/equity gauges.
// Grounded 1:1 on the teacher's internal/metrics/prometheus_metrics.go
// shape (CounterVec/HistogramVec/GaugeVec fields, MustRegister at
// construction, a promhttp `/metrics` + `/health` server).
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds every exported series for one running tradepulse process.
type Metrics struct {
	CandlesInserted   *prometheus.CounterVec
	AccumulatorErrors *prometheus.CounterVec

	TradesOpened *prometheus.CounterVec
	TradesClosed *prometheus.CounterVec
	SkipsByReason *prometheus.CounterVec

	TickDuration      *prometheus.HistogramVec
	TFAnalysisDuration *prometheus.HistogramVec

	OpenPosition *prometheus.GaugeVec
	Equity       *prometheus.GaugeVec
	Leverage     *prometheus.GaugeVec

	server *http.Server
	logger *zap.Logger
}

// New builds and registers every series with reg (pass
// prometheus.DefaultRegisterer in production, a fresh prometheus.NewRegistry()
// in tests to avoid cross-test duplicate-registration panics).
func New(reg prometheus.Registerer, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		logger: logger,

		CandlesInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_candles_inserted_total",
			Help: "Total number of candle rows inserted into the candle store.",
		}, []string{"symbol", "timeframe"}),

		AccumulatorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_accumulator_errors_total",
			Help: "Total number of accumulator operation failures, by timeframe.",
		}, []string{"symbol", "timeframe", "op"}),

		TradesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_trades_opened_total",
			Help: "Total number of sandbox positions opened.",
		}, []string{"symbol", "side", "entry_type"}),

		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_trades_closed_total",
			Help: "Total number of sandbox positions closed, by exit reason.",
		}, []string{"symbol", "side", "exit_reason"}),

		SkipsByReason: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_skips_total",
			Help: "Total number of would-be opens skipped, by reason.",
		}, []string{"symbol", "reason"}),

		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradepulse_tick_duration_seconds",
			Help:    "Wall-clock duration of one control-loop tick.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"symbol"}),

		TFAnalysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradepulse_tf_analysis_duration_seconds",
			Help:    "Duration of one coordinator analysis over all analysis timeframes, labeled with the execution timeframe.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"symbol", "timeframe"}),

		OpenPosition: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradepulse_open_position",
			Help: "Current sandbox position: -1 short, 0 flat, 1 long.",
		}, []string{"symbol"}),

		Equity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradepulse_equity_usd",
			Help: "Current sandbox equity in USD.",
		}, []string{"symbol"}),

		Leverage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradepulse_leverage",
			Help: "Current sandbox leverage multiple.",
		}, []string{"symbol"}),
	}

	reg.MustRegister(
		m.CandlesInserted, m.AccumulatorErrors,
		m.TradesOpened, m.TradesClosed, m.SkipsByReason,
		m.TickDuration, m.TFAnalysisDuration,
		m.OpenPosition, m.Equity, m.Leverage,
	)
	return m
}

// Start serves /metrics and /health on addr (e.g. ":9090").
func (m *Metrics) Start(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	m.server = &http.Server{Addr: addr, Handler: mux}

	m.logger.Info("metrics server starting", zap.String("addr", addr))
	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the metrics server down within 5s.
func (m *Metrics) Stop() error {
	if m.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.server.Shutdown(ctx)
}

// RecordCandlesInserted and the remaining Record*/Set* helpers are the
// call-site-facing wrappers internal/controlloop (candles, errors,
// durations, gauges) and internal/events (trades, skips) use, mirroring
// the teacher's Record*/Set* method set.
func (m *Metrics) RecordCandlesInserted(symbol, tf string, n int) {
	if n <= 0 {
		return
	}
	m.CandlesInserted.WithLabelValues(symbol, tf).Add(float64(n))
}

func (m *Metrics) RecordAccumulatorError(symbol, tf, op string) {
	m.AccumulatorErrors.WithLabelValues(symbol, tf, op).Inc()
}

func (m *Metrics) RecordTradeOpened(symbol, side, entryType string) {
	m.TradesOpened.WithLabelValues(symbol, side, entryType).Inc()
}

func (m *Metrics) RecordTradeClosed(symbol, side, exitReason string) {
	m.TradesClosed.WithLabelValues(symbol, side, exitReason).Inc()
}

func (m *Metrics) RecordSkip(symbol, reason string) {
	m.SkipsByReason.WithLabelValues(symbol, reason).Inc()
}

func (m *Metrics) ObserveTickDuration(symbol string, d time.Duration) {
	m.TickDuration.WithLabelValues(symbol).Observe(d.Seconds())
}

func (m *Metrics) ObserveTFAnalysisDuration(symbol, tf string, d time.Duration) {
	m.TFAnalysisDuration.WithLabelValues(symbol, tf).Observe(d.Seconds())
}

func (m *Metrics) SetOpenPosition(symbol string, value float64) {
	m.OpenPosition.WithLabelValues(symbol).Set(value)
}

func (m *Metrics) SetEquity(symbol string, equity float64) {
	m.Equity.WithLabelValues(symbol).Set(equity)
}

func (m *Metrics) SetLeverage(symbol string, leverage float64) {
	m.Leverage.WithLabelValues(symbol).Set(leverage)
}
