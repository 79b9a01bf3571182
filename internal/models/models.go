// Package models provides domain models for the bot monitoring client.
package models

// Exchange represents a stock exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
	NFO Exchange = "NFO" // F&O
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductMIS  ProductType = "MIS"  // Intraday
	ProductNRML ProductType = "NRML" // F&O Normal
)

// BotStatus is the operator-facing state of the trading bot.
type BotStatus string

const (
	BotRunning        BotStatus = "RUNNING"
	BotStopped        BotStatus = "STOPPED"
	BotInactive       BotStatus = "INACTIVE"
	BotMaxLossReached BotStatus = "MAX_LOSS_REACHED"
)

// BotStatusResponse is the server's view of the bot run state.
// The server only ever reports RUNNING or STOPPED.
type BotStatusResponse struct {
	Status      BotStatus `json:"status"`
	LastUpdated string    `json:"lastUpdated"`
}

// DeriveBotStatus computes the displayed bot status from the server report
// and the aggregated gross P&L. latched is the sticky max-loss flag; the
// returned latch must be fed back on the next call.
//
// A breach while the server reports RUNNING latches MAX_LOSS_REACHED until
// the server itself reports STOPPED.
func DeriveBotStatus(server BotStatus, latched bool, grossPL, maxLossLimit float64) (BotStatus, bool) {
	switch server {
	case BotStopped:
		return BotStopped, false
	case BotRunning:
		if latched || MaxLossBreached(grossPL, maxLossLimit) {
			return BotMaxLossReached, true
		}
		return BotRunning, false
	case "":
		if latched {
			return BotMaxLossReached, true
		}
		return BotInactive, false
	default:
		return server, latched
	}
}

// MaxLossBreached reports whether grossPL has hit the configured limit.
func MaxLossBreached(grossPL, maxLossLimit float64) bool {
	return grossPL <= -maxLossLimit
}

// TradingMode is the execution mode of the remote bot.
type TradingMode string

const (
	PaperTrading TradingMode = "PAPER_TRADING"
	LiveTrading  TradingMode = "LIVE_TRADING"
)

// Opposite returns the mode a switch would move to.
func (m TradingMode) Opposite() TradingMode {
	if m == LiveTrading {
		return PaperTrading
	}
	return LiveTrading
}

// IsPaper reports whether m is paper trading.
func (m TradingMode) IsPaper() bool {
	return m == PaperTrading
}

// TradingModeStatus is returned by the trading-mode endpoints.
type TradingModeStatus struct {
	PaperTradingEnabled bool        `json:"paperTradingEnabled"`
	Mode                TradingMode `json:"mode"`
	Description         string      `json:"description"`
	Message             string      `json:"message,omitempty"`
}

// MonitoringStatus describes the server-side leg monitor.
type MonitoringStatus struct {
	Connected      bool `json:"connected"`
	ActiveMonitors int  `json:"activeMonitors"`
}

// UserProfile identifies the logged-in operator.
type UserProfile struct {
	UserName string `json:"userName"`
	UserID   string `json:"userId"`
}

// StrategyType is one entry of the strategy catalog.
type StrategyType struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Implemented bool   `json:"implemented"`
}

const (
	StrategyATMStraddle = "ATM_STRADDLE"
	StrategyATMStrangle = "ATM_STRANGLE"
	StrategyOTMStrangle = "OTM_STRANGLE"
)

// IsStrangle reports whether a strategy kind takes a strike gap.
func IsStrangle(strategy string) bool {
	return strategy == StrategyOTMStrangle || strategy == StrategyATMStrangle
}

// Instrument is one entry of the tradeable instrument catalog.
type Instrument struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	LotSize        int    `json:"lotSize"`
	StrikeInterval int    `json:"strikeInterval"`
}

// LTPKey returns the exchange-qualified identifier used by the LTP endpoint.
func (i Instrument) LTPKey() string {
	return string(NSE) + ":" + i.Name
}
