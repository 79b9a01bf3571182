package models

// StrategyStatus is the lifecycle state of a strategy execution.
type StrategyStatus string

const (
	StrategyActive         StrategyStatus = "ACTIVE"
	StrategyCompleted      StrategyStatus = "COMPLETED"
	StrategyStopped        StrategyStatus = "STOPPED"
	StrategyMaxLossReached StrategyStatus = "MAX_LOSS_REACHED"
)

// IsTerminal reports whether the execution has finished and its P&L is realized.
func (s StrategyStatus) IsTerminal() bool {
	switch s {
	case StrategyCompleted, StrategyStopped, StrategyMaxLossReached:
		return true
	default:
		return false
	}
}

// OrderLeg is one leg of a multi-leg strategy execution.
type OrderLeg struct {
	OrderID       string   `json:"orderId"`
	TradingSymbol string   `json:"tradingSymbol"`
	OptionType    string   `json:"optionType"`
	Quantity      int      `json:"quantity"`
	EntryPrice    *float64 `json:"entryPrice"`
	ExitPrice     *float64 `json:"exitPrice"`
	RealizedPnl   *float64 `json:"realizedPnl"`
	ExitTime      *int64   `json:"exitTimestamp"`
}

// StrategyPosition is one running or finished strategy execution.
type StrategyPosition struct {
	ExecutionID    string         `json:"executionId"`
	StrategyType   string         `json:"strategyType"`
	InstrumentType string         `json:"instrumentType"`
	Expiry         string         `json:"expiry"`
	Status         StrategyStatus `json:"status"`
	Message        string         `json:"message"`
	EntryPrice     *float64       `json:"entryPrice"`
	CurrentPrice   *float64       `json:"currentPrice"`
	ProfitLoss     *float64       `json:"profitLoss"`
	Timestamp      int64          `json:"timestamp"`
	EntryTime      *int64         `json:"entryTimestamp"`
	ExitTime       *int64         `json:"exitTimestamp"`
	OrderLegs      []OrderLeg     `json:"orderLegs"`
}

// RealizedPnL returns the realized P&L of a terminal execution. The
// strategy-level figure wins; the leg sum is used only when it is absent.
// ok is false for non-terminal executions.
func (s StrategyPosition) RealizedPnL() (pnl float64, ok bool) {
	if !s.Status.IsTerminal() {
		return 0, false
	}
	if s.ProfitLoss != nil {
		return *s.ProfitLoss, true
	}
	return sumLegs(s.OrderLegs, func(l OrderLeg) *float64 { return l.RealizedPnl }), true
}

// EffectiveEntryPrice returns the entry price, falling back to the leg sum
// for terminal executions without a strategy-level value.
func (s StrategyPosition) EffectiveEntryPrice() (float64, bool) {
	if s.EntryPrice != nil {
		return *s.EntryPrice, true
	}
	if !s.Status.IsTerminal() || len(s.OrderLegs) == 0 {
		return 0, false
	}
	return sumLegs(s.OrderLegs, func(l OrderLeg) *float64 { return l.EntryPrice }), true
}

// EffectiveExitPrice returns the current (or exit) price, falling back to
// the sum of leg exit prices for terminal executions.
func (s StrategyPosition) EffectiveExitPrice() (float64, bool) {
	if s.CurrentPrice != nil {
		return *s.CurrentPrice, true
	}
	if !s.Status.IsTerminal() || len(s.OrderLegs) == 0 {
		return 0, false
	}
	return sumLegs(s.OrderLegs, func(l OrderLeg) *float64 { return l.ExitPrice }), true
}

func sumLegs(legs []OrderLeg, field func(OrderLeg) *float64) float64 {
	var total float64
	for _, leg := range legs {
		if v := field(leg); v != nil {
			total += *v
		}
	}
	return total
}

// SLTargetMode selects how stop-loss and target are expressed.
type SLTargetMode string

const (
	SLTargetPoints     SLTargetMode = "points"
	SLTargetPercentage SLTargetMode = "percentage"
)

// ExecuteRequest is the payload for a strategy execution.
type ExecuteRequest struct {
	StrategyType   string  `json:"strategyType"`
	InstrumentType string  `json:"instrumentType"`
	Expiry         string  `json:"expiry"`
	Lots           int     `json:"lots"`
	MaxLossLimit   float64 `json:"maxLossLimit"`

	StopLossPoints *float64 `json:"stopLossPoints,omitempty"`
	TargetPoints   *float64 `json:"targetPoints,omitempty"`

	StopLossPercent    *float64 `json:"stopLossPercent,omitempty"`
	TargetDecayPercent *float64 `json:"targetDecayPercent,omitempty"`

	StrikeGap *int `json:"strikeGap,omitempty"`
}

// ExecuteResult is the response to a strategy execution.
type ExecuteResult struct {
	ExecutionID string `json:"executionId"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// HistoricalPnlPoint is one sample of a replayed P&L curve.
type HistoricalPnlPoint struct {
	Timestamp string  `json:"timestamp"`
	PnL       float64 `json:"pnl"`
}

// HistoricalRunResult is the result of a historical replay.
type HistoricalRunResult struct {
	ExecutionID string               `json:"executionId"`
	FinalPnL    float64              `json:"finalPnL"`
	PnLData     []HistoricalPnlPoint `json:"pnlData"`
	Message     string               `json:"message"`
}

// Float returns a pointer to v, for optional payload fields.
func Float(v float64) *float64 {
	return &v
}
