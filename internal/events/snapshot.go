package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tradepulse/internal/coordinator"
	"tradepulse/internal/microsignal"
	"tradepulse/internal/sandbox"
)

// Snapshot is the last-tick report the control loop publishes: the
// coordinator's call plus the sandbox's current position, the
// process-wide mutable "last sandbox state" spec.md §9 requires external
// surfaces read instead of mutating directly.
type Snapshot struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`

	Direction            coordinator.SignalDirection `json:"direction"`
	Confidence           float64                     `json:"confidence"`
	ConfidenceLevel      coordinator.ConfidenceLevel  `json:"confidence_level"`
	Reason               string                      `json:"reason"`
	MarketStateNarrative string                      `json:"market_state_narrative"`

	Position         sandbox.PositionSide  `json:"position"`
	EntryPrice       float64               `json:"entry_price"`
	Size             float64               `json:"size"`
	Leverage         float64               `json:"leverage"`
	EquityUSD        float64               `json:"equity_usd"`
	UnrealizedPnL    float64               `json:"unrealized_pnl"`
	TotalRealizedPnL string                `json:"total_realized_pnl"`
	LastSignalDir    microsignal.Direction `json:"last_signal_direction"`
}

// BuildSnapshot projects one tick's coordinator Result and sandbox State
// into the published Snapshot shape.
func BuildSnapshot(symbol string, now time.Time, res *coordinator.Result, state sandbox.State) Snapshot {
	snap := Snapshot{
		Symbol:    symbol,
		Timestamp: now,

		Position:         state.Position,
		EntryPrice:       state.EntryPrice,
		Size:             state.Size,
		Leverage:         state.Leverage,
		EquityUSD:        state.EquityUSD,
		UnrealizedPnL:    state.UnrealizedPnL,
		TotalRealizedPnL: state.TotalRealizedPnL.String(),
		LastSignalDir:    state.LastSignalDir,
	}
	if res != nil {
		snap.Direction = res.Direction
		snap.Confidence = res.Confidence
		snap.ConfidenceLevel = res.ConfidenceLevel
		snap.Reason = res.Reason
		snap.MarketStateNarrative = res.MarketStateNarrative
	}
	return snap
}

// LastState is the in-process published snapshot: a typed value guarded by
// a lock, the process-wide mutable spec.md §9 calls out as legitimate
// alongside the per-TF phase/trend histories.
type LastState struct {
	mu   sync.RWMutex
	snap Snapshot
}

func (l *LastState) Set(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap = s
}

func (l *LastState) Get() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap
}

// RedisPublishKey is the single well-known key the last-tick snapshot is
// JSON-encoded into, matching spec.md's external-interfaces note that an
// out-of-scope Telegram/chart adapter reads current state without a
// second durable store.
const RedisPublishKey = "tradepulse:last_state"

// StatePublisher publishes Snapshots to a single Redis key, modeled on the
// teacher's RedisPublisher (throttle + metrics + health), simplified from
// pub/sub fan-out to Set since exactly one reader-facing key is published
// per tick rather than a stream of channel events.
type StatePublisher struct {
	client *redis.Client
	logger *zap.Logger

	mu           sync.Mutex
	publishCount int64
	lastPublish  time.Time
}

func NewStatePublisher(client *redis.Client, logger *zap.Logger) *StatePublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatePublisher{client: client, logger: logger}
}

// Publish JSON-encodes snap and Sets it at RedisPublishKey with no
// expiry — the control loop overwrites it every tick, so a reader that
// polls always sees the latest state rather than a stale expired key.
func (p *StatePublisher) Publish(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("events: marshal snapshot: %w", err)
	}
	if err := p.client.Set(ctx, RedisPublishKey, data, 0).Err(); err != nil {
		p.logger.Error("events: redis publish failed", zap.Error(err))
		return fmt.Errorf("events: redis set: %w", err)
	}
	p.mu.Lock()
	p.publishCount++
	p.lastPublish = time.Now()
	p.mu.Unlock()
	return nil
}

// Health reports whether the publisher reached Redis recently, mirroring
// RedisPublisher.Health's "no recent publish" staleness check.
func (p *StatePublisher) Health(ctx context.Context, staleAfter time.Duration) bool {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return false
	}
	p.mu.Lock()
	last, count := p.lastPublish, p.publishCount
	p.mu.Unlock()
	if count == 0 {
		return true
	}
	return time.Since(last) <= staleAfter
}
