package proto

import "fmt"

const (
	TypeMarketData  = "market_data"
	TypeTradeUpdate = "trade_update"
)

// MarketData is the payload of a market_data frame.
type MarketData struct {
	Type   string     `json:"type"`
	Symbol string     `json:"symbol"`
	Data   PriceTicks `json:"data"`
}

type PriceTicks struct {
	Price     float64 `json:"price"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Volume    float64 `json:"volume"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// TradeUpdate is the payload of a trade_update frame. The server emits the
// status fields at the top level; some producers nest them under data instead,
// so both shapes are accepted and Normalize folds them together.
type TradeUpdate struct {
	Type       string           `json:"type"`
	TradeID    FlexibleID       `json:"trade_id"`
	Status     string           `json:"status,omitempty"`
	ExecutedAt *string          `json:"executed_at,omitempty"`
	Price      *float64         `json:"price,omitempty"`
	Amount     *float64         `json:"amount,omitempty"`
	Data       *TradeUpdateData `json:"data,omitempty"`
}

type TradeUpdateData struct {
	Status        string   `json:"status,omitempty"`
	ExecutedPrice *float64 `json:"executed_price,omitempty"`
	ExecutedTime  *string  `json:"executed_time,omitempty"`
}

// Normalize copies nested data fields up when the top-level ones are empty.
func (u *TradeUpdate) Normalize() {
	if u.Data == nil {
		return
	}
	if u.Status == "" {
		u.Status = u.Data.Status
	}
	if u.Price == nil {
		u.Price = u.Data.ExecutedPrice
	}
	if u.ExecutedAt == nil {
		u.ExecutedAt = u.Data.ExecutedTime
	}
}

// AsMarketData decodes a market_data message.
func AsMarketData(m Message) (MarketData, error) {
	if m.Type != TypeMarketData {
		return MarketData{}, fmt.Errorf("expected %q message, got %q", TypeMarketData, m.Type)
	}
	var md MarketData
	if err := m.Into(&md); err != nil {
		return MarketData{}, fmt.Errorf("decode market data: %w", err)
	}
	if md.Symbol == "" {
		return MarketData{}, fmt.Errorf("market data without symbol")
	}
	return md, nil
}

// AsTradeUpdate decodes and normalizes a trade_update message.
func AsTradeUpdate(m Message) (TradeUpdate, error) {
	if m.Type != TypeTradeUpdate {
		return TradeUpdate{}, fmt.Errorf("expected %q message, got %q", TypeTradeUpdate, m.Type)
	}
	var tu TradeUpdate
	if err := m.Into(&tu); err != nil {
		return TradeUpdate{}, fmt.Errorf("decode trade update: %w", err)
	}
	if tu.TradeID == "" {
		return TradeUpdate{}, fmt.Errorf("trade update without trade_id")
	}
	tu.Normalize()
	return tu, nil
}
