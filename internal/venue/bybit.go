package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tradepulse/internal/candlestore"
)

// BybitAdapter implements Venue against Bybit's V5 REST/WS surfaces, shaped
// after the teacher's internal/exchanges/bybit.go message structs and
// spec.md §6's field names.
type BybitAdapter struct {
	symbol   string
	category string
	baseURL  string
	wsURL    string
	client   *http.Client
	logger   *zap.Logger

	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	priceFloor, priceCeil float64 // per-symbol sanity band, spec.md §3
}

// NewBybitAdapter builds an adapter for symbol/category ("linear" for USDT
// perpetuals). testnet selects the testnet REST/WS hosts.
func NewBybitAdapter(symbol, category string, testnet bool, logger *zap.Logger) *BybitAdapter {
	base := "https://api.bybit.com"
	ws := "wss://stream.bybit.com/v5/public/linear"
	if testnet {
		base = "https://api-testnet.bybit.com"
		ws = "wss://stream-testnet.bybit.com/v5/public/linear"
	}
	return &BybitAdapter{
		symbol:      symbol,
		category:    category,
		baseURL:     base,
		wsURL:       ws,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
		maxAttempts: 5,
		baseBackoff: 500 * time.Millisecond,
		maxBackoff:  30 * time.Second,
	}
}

// SetPriceSanityBand configures the per-symbol plausibility band used to
// filter implausible bars (spec.md §3).
func (b *BybitAdapter) SetPriceSanityBand(floor, ceil float64) {
	b.priceFloor, b.priceCeil = floor, ceil
}

// bybitKlineRow is the raw REST row shape: [startTime, open, high, low,
// close, volume, turnover], newest-first (spec.md §6).
type bybitKlineRow [7]string

type bybitKlineResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List [][]string `json:"list"`
	} `json:"result"`
}

// FetchCandles implements Venue. For unbounded backfill (startMs==0) it
// pages backward by decreasing `end` until the venue returns an empty page
// or the accumulated count would exceed limit.
func (b *BybitAdapter) FetchCandles(ctx context.Context, symbol string, tf candlestore.Timeframe, startMs, endMs int64, limit int) ([]candlestore.Candle, error) {
	interval, err := tf.BybitInterval()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1000
	}

	var all []candlestore.Candle
	pageEnd := endMs
	if pageEnd == 0 {
		pageEnd = time.Now().UnixMilli()
	}

	for {
		page, err := b.fetchKlinePage(ctx, symbol, interval, startMs, pageEnd, 1000)
		if err != nil {
			return all, err
		}
		if len(page) == 0 {
			break
		}
		for _, row := range page {
			c, err := parseKlineRow(symbol, tf, row)
			if err != nil {
				b.logger.Warn("dropping unparseable kline row", zap.Error(err))
				continue
			}
			if err := c.Validate(b.priceFloor, b.priceCeil); err != nil {
				b.logger.Warn("dropping implausible candle", zap.String("symbol", symbol), zap.Error(err))
				continue
			}
			all = append(all, c)
		}
		oldest := page[len(page)-1]
		oldestStart, _ := strconv.ParseInt(oldest[0], 10, 64)
		if startMs > 0 && oldestStart <= startMs {
			break
		}
		if len(all) >= limit {
			break
		}
		pageEnd = oldestStart - 1
	}

	sortCandlesAsc(all)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (b *BybitAdapter) fetchKlinePage(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]bybitKlineRow, error) {
	var out []bybitKlineRow
	err := withRetry(ctx, b.maxAttempts, b.baseBackoff, b.maxBackoff, func(ctx context.Context) error {
		q := url.Values{}
		q.Set("category", b.category)
		q.Set("symbol", symbol)
		q.Set("interval", interval)
		q.Set("limit", strconv.Itoa(limit))
		if startMs > 0 {
			q.Set("start", strconv.FormatInt(startMs, 10))
		}
		if endMs > 0 {
			q.Set("end", strconv.FormatInt(endMs, 10))
		}
		reqURL := fmt.Sprintf("%s/v5/market/kline?%s", b.baseURL, q.Encode())

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return &retryableError{err}
		}
		defer resp.Body.Close()
		if httpStatusRetryable(resp.StatusCode) {
			return &retryableError{fmt.Errorf("kline request: status %d", resp.StatusCode)}
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("kline request: status %d", resp.StatusCode)
		}

		var parsed bybitKlineResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decode kline response: %w", err)
		}
		if parsed.RetCode == 10006 || parsed.RetCode == 10018 { // rate limit codes
			return &retryableError{fmt.Errorf("kline rate limited: %s", parsed.RetMsg)}
		}
		if parsed.RetCode != 0 {
			return fmt.Errorf("kline request failed: retCode=%d retMsg=%s", parsed.RetCode, parsed.RetMsg)
		}
		out = out[:0]
		for _, r := range parsed.Result.List {
			var row bybitKlineRow
			copy(row[:], r)
			out = append(out, row)
		}
		return nil
	})
	return out, err
}

func parseKlineRow(symbol string, tf candlestore.Timeframe, row bybitKlineRow) (candlestore.Candle, error) {
	start, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return candlestore.Candle{}, fmt.Errorf("parse startTime: %w", err)
	}
	vals := make([]float64, 5)
	for i, s := range row[1:6] {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return candlestore.Candle{}, fmt.Errorf("parse field %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return candlestore.Candle{
		Symbol: symbol, Timeframe: tf, StartTime: start,
		Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4],
	}, nil
}

func sortCandlesAsc(c []candlestore.Candle) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j-1].StartTime > c[j].StartTime; j-- {
			c[j-1], c[j] = c[j], c[j-1]
		}
	}
}

// --- order book / trade WS ------------------------------------------------

type bybitWSEnvelope struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	TS    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

type bybitOrderbookData struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
	Seq    int64      `json:"seq"`
}

type bybitTradeRow struct {
	Time  int64  `json:"T"`
	Side  string `json:"S"`
	Size  string `json:"v"`
	Price string `json:"p"`
	ID    string `json:"i"`
	Seq   int64  `json:"seq"`
}

// SubscribeOrderBook implements Venue: connects to orderbook.{depth}.{symbol},
// delivers each message whose type is "snapshot" as a BookSnapshot and
// every other one as a BookDelta, reconnecting with backoff on drop until
// stop() is called.
func (b *BybitAdapter) SubscribeOrderBook(ctx context.Context, symbol string, depth int, handler BookHandler) (func(), error) {
	topic := fmt.Sprintf("orderbook.%d.%s", depth, symbol)
	return b.subscribe(ctx, topic, func(env bybitWSEnvelope) {
		var data bybitOrderbookData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			b.logger.Warn("orderbook decode error", zap.Error(err))
			return
		}
		evtType := BookDelta
		if env.Type == "snapshot" {
			evtType = BookSnapshot
		}
		handler(BookEvent{
			Symbol:    symbol,
			Type:      evtType,
			Bids:      toLevels(data.Bids),
			Asks:      toLevels(data.Asks),
			Timestamp: time.UnixMilli(env.TS),
			UpdateID:  data.Seq,
		})
	})
}

// SubscribeTrades implements Venue: connects to publicTrade.{symbol}.
func (b *BybitAdapter) SubscribeTrades(ctx context.Context, symbol string, handler TradeHandler) (func(), error) {
	topic := fmt.Sprintf("publicTrade.%s", symbol)
	return b.subscribe(ctx, topic, func(env bybitWSEnvelope) {
		var rows []bybitTradeRow
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			b.logger.Warn("trade batch decode error", zap.Error(err))
			return
		}
		trades := make([]Trade, 0, len(rows))
		for _, r := range rows {
			price, _ := strconv.ParseFloat(r.Price, 64)
			size, _ := strconv.ParseFloat(r.Size, 64)
			side := SideBuy
			if r.Side == "Sell" {
				side = SideSell
			}
			trades = append(trades, Trade{
				Symbol: symbol, Side: side, Price: price, Size: size,
				ID: r.ID, Seq: r.Seq, Timestamp: time.UnixMilli(r.Time),
			})
		}
		if len(trades) > 0 {
			handler(trades)
		}
	})
}

func toLevels(raw [][]string) []BookLevel {
	out := make([]BookLevel, 0, len(raw))
	for _, kv := range raw {
		if len(kv) != 2 {
			continue
		}
		price, _ := strconv.ParseFloat(kv[0], 64)
		size, _ := strconv.ParseFloat(kv[1], 64)
		out = append(out, BookLevel{Price: price, Size: size})
	}
	return out
}

// subscribe runs a single long-lived WS connection for topic, reconnecting
// with backoff. The returned stop function cancels the internal context and
// joins within ~2s (spec.md §5).
func (b *BybitAdapter) subscribe(parent context.Context, topic string, onMessage func(bybitWSEnvelope)) (func(), error) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		backoff := b.baseBackoff
		for ctx.Err() == nil {
			if err := b.runWSOnce(ctx, topic, onMessage); err != nil {
				b.logger.Warn("ws connection dropped, reconnecting", zap.String("topic", topic), zap.Error(err), zap.Duration("backoff", backoff))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > b.maxBackoff {
				backoff = b.maxBackoff
			}
		}
	}()

	stop := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}
	return stop, nil
}

func (b *BybitAdapter) runWSOnce(ctx context.Context, topic string, onMessage func(bybitWSEnvelope)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sub := map[string]interface{}{"op": "subscribe", "args": []string{topic}}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	var mu sync.Mutex
	closed := make(chan struct{})
	go func() {
		<-ctx.Done()
		mu.Lock()
		conn.Close()
		mu.Unlock()
		close(closed)
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			<-closed
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var env bybitWSEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			continue // op/ack/pong frames are not topic envelopes
		}
		if env.Topic != topic {
			continue
		}
		onMessage(env)
	}
}

type bybitRecentTradesResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []bybitTradeRow `json:"list"`
	} `json:"result"`
}

// FetchRecentTrades implements Venue's REST fallback.
func (b *BybitAdapter) FetchRecentTrades(ctx context.Context, symbol string, limit int) ([]Trade, error) {
	var out []Trade
	err := withRetry(ctx, b.maxAttempts, b.baseBackoff, b.maxBackoff, func(ctx context.Context) error {
		q := url.Values{}
		q.Set("category", b.category)
		q.Set("symbol", symbol)
		q.Set("limit", strconv.Itoa(limit))
		reqURL := fmt.Sprintf("%s/v5/market/recent-trade?%s", b.baseURL, q.Encode())

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return &retryableError{err}
		}
		defer resp.Body.Close()
		if httpStatusRetryable(resp.StatusCode) {
			return &retryableError{fmt.Errorf("recent-trade: status %d", resp.StatusCode)}
		}
		var parsed bybitRecentTradesResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decode recent-trade: %w", err)
		}
		if parsed.RetCode != 0 {
			return fmt.Errorf("recent-trade failed: retCode=%d retMsg=%s", parsed.RetCode, parsed.RetMsg)
		}
		out = out[:0]
		for _, r := range parsed.Result.List {
			price, _ := strconv.ParseFloat(r.Price, 64)
			size, _ := strconv.ParseFloat(r.Size, 64)
			side := SideBuy
			if r.Side == "Sell" {
				side = SideSell
			}
			out = append(out, Trade{Symbol: symbol, Side: side, Price: price, Size: size, ID: r.ID, Seq: r.Seq, Timestamp: time.UnixMilli(r.Time)})
		}
		return nil
	})
	return out, err
}
