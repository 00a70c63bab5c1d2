package web

import (
	"testing"
	"time"

	"github.com/mbocsi/tradedash/api"
	"github.com/mbocsi/tradedash/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tick(symbol string, price float64, ts string) proto.MarketData {
	return proto.MarketData{
		Type:   proto.TypeMarketData,
		Symbol: symbol,
		Data:   proto.PriceTicks{Price: price, High: price + 1, Low: price - 1, Volume: 10, Timestamp: ts},
	}
}

func TestMarketBoard_BoundedHistory(t *testing.T) {
	b := NewMarketBoard(3)
	for i, p := range []float64{100, 101, 102, 103, 104} {
		b.Apply(tick("BTC/USDT", p, time.Date(2024, 5, 1, 10, i, 0, 0, time.UTC).Format(time.RFC3339)))
	}

	hist := b.History("BTC/USDT")
	require.Len(t, hist, 3)
	assert.Equal(t, []float64{102, 103, 104}, []float64{hist[0].Price, hist[1].Price, hist[2].Price})
	assert.Equal(t, "2024-05-01T10:04:00Z", hist[2].Timestamp)

	q, ok := b.Quote("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, 104.0, q.Price)
	assert.Equal(t, 105.0, q.High)

	hist[0].Price = -1
	assert.Equal(t, 102.0, b.History("BTC/USDT")[0].Price)
}

func TestMarketBoard_ChangeAndOrdering(t *testing.T) {
	b := NewMarketBoard(10)
	b.Apply(tick("ETH/USDT", 200, "a"))
	b.Apply(tick("BTC/USDT", 100, "a"))
	b.Apply(tick("BTC/USDT", 110, "b"))

	quotes := b.Quotes()
	require.Len(t, quotes, 2)
	assert.Equal(t, "BTC/USDT", quotes[0].Symbol)
	assert.InDelta(t, 10.0, quotes[0].Change, 1e-9)
	assert.Equal(t, "ETH/USDT", quotes[1].Symbol)
	assert.Zero(t, quotes[1].Change)

	_, ok := b.Quote("DOGE/USDT")
	assert.False(t, ok)
	assert.Empty(t, b.History("DOGE/USDT"))
}

func TestMarketBoard_MissingTimestamp(t *testing.T) {
	b := NewMarketBoard(5)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	b.Apply(tick("BTC/USDT", 1, ""))
	assert.Equal(t, fixed.Format(time.RFC3339Nano), b.History("BTC/USDT")[0].Timestamp)
}

func seededBoard() *TradeBoard {
	b := NewTradeBoard()
	b.Seed([]api.ScheduledTrade{
		{ID: 1, TradingPair: "BTC/USDT", Amount: 0.1, Status: api.StatusPending},
		{ID: 2, TradingPair: "ETH/USDT", Amount: 2, Status: api.StatusPending},
	})
	return b
}

func TestTradeBoard_Seed(t *testing.T) {
	b := seededBoard()
	trades := b.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, "2", trades[0].ID)
	assert.Equal(t, "1", trades[1].ID)

	b.Seed([]api.ScheduledTrade{{ID: 3, TradingPair: "SOL/USDT"}})
	trades = b.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "3", trades[0].ID)
	_, ok := b.Trade("1")
	assert.False(t, ok)
}

func TestTradeBoard_ApplyBothShapes(t *testing.T) {
	b := seededBoard()

	topLevel, err := proto.Decode([]byte(`{"type":"trade_update","trade_id":1,"status":"executed","price":65000.5,"executed_at":"2024-05-01T10:00:00"}`))
	require.NoError(t, err)
	tu, err := proto.AsTradeUpdate(topLevel)
	require.NoError(t, err)
	assert.True(t, b.Apply(tu))

	got, _ := b.Trade("1")
	assert.Equal(t, api.StatusExecuted, got.Status)
	require.NotNil(t, got.Price)
	assert.Equal(t, 65000.5, *got.Price)
	assert.Equal(t, "2024-05-01T10:00:00", got.ExecutedAt)

	nested, err := proto.Decode([]byte(`{"type":"trade_update","trade_id":"2","data":{"status":"failed"}}`))
	require.NoError(t, err)
	tu, err = proto.AsTradeUpdate(nested)
	require.NoError(t, err)
	assert.True(t, b.Apply(tu))

	got, _ = b.Trade("2")
	assert.Equal(t, api.StatusFailed, got.Status)
	assert.Nil(t, got.Price)
	assert.Equal(t, 2.0, got.Amount)
}

func TestTradeBoard_UnknownTradeIgnored(t *testing.T) {
	b := seededBoard()
	assert.False(t, b.Apply(proto.TradeUpdate{TradeID: "99", Status: api.StatusExecuted}))
	assert.Len(t, b.Trades(), 2)
}
