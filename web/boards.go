package web

import (
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mbocsi/tradedash/api"
	"github.com/mbocsi/tradedash/proto"
)

type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Volume    float64   `json:"volume"`
	Change    float64   `json:"change"`
	Timestamp string    `json:"timestamp"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PricePoint struct {
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

// MarketBoard keeps the latest quote per symbol and a bounded price history.
type MarketBoard struct {
	mu      sync.RWMutex
	size    int
	now     func() time.Time
	quotes  map[string]Quote
	history map[string][]PricePoint
}

func NewMarketBoard(historySize int) *MarketBoard {
	if historySize <= 0 {
		historySize = 1
	}
	return &MarketBoard{
		size:    historySize,
		now:     time.Now,
		quotes:  make(map[string]Quote),
		history: make(map[string][]PricePoint),
	}
}

func (b *MarketBoard) Apply(md proto.MarketData) {
	now := b.now()
	ts := md.Data.Timestamp
	if ts == "" {
		ts = now.UTC().Format(time.RFC3339Nano)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q := Quote{
		Symbol:    md.Symbol,
		Price:     md.Data.Price,
		High:      md.Data.High,
		Low:       md.Data.Low,
		Volume:    md.Data.Volume,
		Timestamp: ts,
		UpdatedAt: now,
	}
	hist := b.history[md.Symbol]
	if len(hist) > 0 && hist[0].Price != 0 {
		q.Change = (q.Price - hist[0].Price) / hist[0].Price * 100
	}
	b.quotes[md.Symbol] = q

	hist = append(hist, PricePoint{Price: md.Data.Price, Timestamp: ts})
	if len(hist) > b.size {
		hist = slices.Clone(hist[len(hist)-b.size:])
	}
	b.history[md.Symbol] = hist
}

func (b *MarketBoard) Quote(symbol string) (Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[symbol]
	return q, ok
}

// Quotes returns every known quote ordered by symbol.
func (b *MarketBoard) Quotes() []Quote {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Quote, 0, len(b.quotes))
	for _, q := range b.quotes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (b *MarketBoard) History(symbol string) []PricePoint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.history[symbol])
}

type TradeView struct {
	ID          string   `json:"id"`
	TradingPair string   `json:"trading_pair"`
	Amount      float64  `json:"amount"`
	BuyTime     api.Time `json:"buy_time"`
	SellTime    api.Time `json:"sell_time"`
	Status      string   `json:"status"`
	Price       *float64 `json:"price,omitempty"`
	ExecutedAt  string   `json:"executed_at,omitempty"`
	CreatedAt   api.Time `json:"created_at"`
}

// TradeBoard holds the user's scheduled trades, seeded over HTTP and then kept
// current by trade_update messages.
type TradeBoard struct {
	mu     sync.RWMutex
	trades map[string]*TradeView
	order  []string
}

func NewTradeBoard() *TradeBoard {
	return &TradeBoard{trades: make(map[string]*TradeView)}
}

// Seed replaces the board with trades, newest first.
func (b *TradeBoard) Seed(trades []api.ScheduledTrade) {
	sorted := slices.Clone(trades)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID > sorted[j].ID })

	b.mu.Lock()
	defer b.mu.Unlock()
	b.trades = make(map[string]*TradeView, len(sorted))
	b.order = b.order[:0]
	for _, t := range sorted {
		id := strconv.FormatInt(t.ID, 10)
		b.trades[id] = &TradeView{
			ID:          id,
			TradingPair: t.TradingPair,
			Amount:      t.Amount,
			BuyTime:     t.BuyTime,
			SellTime:    t.SellTime,
			Status:      t.Status,
			CreatedAt:   t.CreatedAt,
		}
		b.order = append(b.order, id)
	}
}

// Apply folds an update into the matching trade. Updates for trades the board
// has not seen are ignored and reported as false.
func (b *TradeBoard) Apply(tu proto.TradeUpdate) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.trades[tu.TradeID.String()]
	if !ok {
		return false
	}
	if tu.Status != "" {
		t.Status = tu.Status
	}
	if tu.Price != nil {
		p := *tu.Price
		t.Price = &p
	}
	if tu.Amount != nil {
		t.Amount = *tu.Amount
	}
	if tu.ExecutedAt != nil {
		t.ExecutedAt = *tu.ExecutedAt
	}
	return true
}

func (b *TradeBoard) Trades() []TradeView {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]TradeView, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.trades[id])
	}
	return out
}

func (b *TradeBoard) Trade(id string) (TradeView, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.trades[id]
	if !ok {
		return TradeView{}, false
	}
	return *t, true
}
