package coordinator

import (
	"sort"
	"time"

	"tradepulse/internal/candlestore"
)

// sortTimeframes orders timeframes ascending by bucket duration, per
// multi_tf.py's _tf_sort_key (numeric minutes ascending, then D < W < M).
// TFMonth has no fixed duration, so it always sorts last.
func sortTimeframes(tfs []candlestore.Timeframe) []candlestore.Timeframe {
	out := append([]candlestore.Timeframe(nil), tfs...)
	sort.Slice(out, func(i, j int) bool {
		return tfDurationKey(out[i]) < tfDurationKey(out[j])
	})
	return out
}

func tfDurationKey(tf candlestore.Timeframe) time.Duration {
	if tf == candlestore.TFMonth {
		return time.Duration(1) << 62
	}
	d, ok := tf.Duration()
	if !ok {
		return 0
	}
	return d
}
