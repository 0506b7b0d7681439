package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTradeOpenedIncrementsCounter(t *testing.T) {
	m := New(prometheus.NewRegistry(), nil)

	m.RecordTradeOpened("BTCUSDT", "long", "signal")
	m.RecordTradeOpened("BTCUSDT", "long", "signal")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TradesOpened.WithLabelValues("BTCUSDT", "long", "signal")))
}

func TestRecordCandlesInsertedSkipsZero(t *testing.T) {
	m := New(prometheus.NewRegistry(), nil)

	m.RecordCandlesInserted("BTCUSDT", "1h", 0)
	m.RecordCandlesInserted("BTCUSDT", "1h", 5)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.CandlesInserted.WithLabelValues("BTCUSDT", "1h")))
}

func TestSetEquityGauge(t *testing.T) {
	m := New(prometheus.NewRegistry(), nil)
	m.SetEquity("BTCUSDT", 123.45)

	assert.Equal(t, 123.45, testutil.ToFloat64(m.Equity.WithLabelValues("BTCUSDT")))
}
