package venue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/internal/candlestore"
)

func TestParseKlineRow(t *testing.T) {
	row := bybitKlineRow{"1700000000000", "42000", "42100", "41950", "42050", "10", "420500"}
	c, err := parseKlineRow("BTCUSDT", candlestore.TF1h, row)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), c.StartTime)
	assert.Equal(t, 42000.0, c.Open)
	assert.Equal(t, 10.0, c.Volume)
}

func TestSortCandlesAsc(t *testing.T) {
	c := []candlestore.Candle{{StartTime: 30}, {StartTime: 10}, {StartTime: 20}}
	sortCandlesAsc(c)
	assert.Equal(t, []int64{10, 20, 30}, []int64{c[0].StartTime, c[1].StartTime, c[2].StartTime})
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 5, time.Millisecond, 10*time.Millisecond, func(ctx context.Context) error {
		attempts++
		return errors.New("bad request: invalid symbol")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 5, time.Millisecond, 10*time.Millisecond, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &retryableError{errors.New("rate limit exceeded")}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryExhausts(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 3, time.Millisecond, 10*time.Millisecond, func(ctx context.Context) error {
		attempts++
		return &retryableError{errors.New("timeout")}
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}
