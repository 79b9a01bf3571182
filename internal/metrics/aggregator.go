// Package metrics derives the dashboard's financial figures from the raw
// strategy and charge snapshots returned by the trading service.
package metrics

import (
	"github.com/shopspring/decimal"

	"botwatch/internal/models"
)

// Input is everything the aggregator needs from one poll cycle.
type Input struct {
	Strategies     []models.StrategyPosition
	Charges        []models.OrderCharge
	MaxLossLimit   float64
	PreviousStatus models.BotStatus
}

// Result holds the derived figures.
//
// MaxLossBreached tells the caller to force the bot status to
// MAX_LOSS_REACHED. Positions are never closed automatically; closing is
// always an explicit operator action.
type Result struct {
	GrossPL         float64                 `json:"grossPL"`
	TotalCharges    float64                 `json:"totalCharges"`
	NetPL           float64                 `json:"netPL"`
	MaxLossBreached bool                    `json:"maxLossBreached"`
	Charges         models.ChargesBreakdown `json:"charges"`
}

// Equal reports whether two results carry the same figures.
func (r Result) Equal(o Result) bool {
	return models.PriceEqual(r.GrossPL, o.GrossPL) &&
		models.PriceEqual(r.TotalCharges, o.TotalCharges) &&
		models.PriceEqual(r.NetPL, o.NetPL) &&
		r.MaxLossBreached == o.MaxLossBreached &&
		r.Charges.Equal(o.Charges)
}

// Aggregate computes gross P&L, charges, net P&L and the max-loss flag.
func Aggregate(in Input) Result {
	gross := GrossPL(in.Strategies)
	charges := Charges(in.Charges)
	net := decimal.NewFromFloat(gross).Sub(decimal.NewFromFloat(charges.Total))

	breached := (in.PreviousStatus == models.BotRunning || in.PreviousStatus == models.BotMaxLossReached) &&
		models.MaxLossBreached(gross, in.MaxLossLimit)

	return Result{
		GrossPL:         gross,
		TotalCharges:    charges.Total,
		NetPL:           net.InexactFloat64(),
		MaxLossBreached: breached,
		Charges:         charges,
	}
}

// GrossPL sums the realized P&L of terminal strategies. Active strategies
// contribute nothing: their unrealized P&L is informational and must not
// count against the max-loss limit.
func GrossPL(strategies []models.StrategyPosition) float64 {
	total := decimal.Zero
	for _, s := range strategies {
		pnl, ok := s.RealizedPnL()
		if !ok {
			continue
		}
		total = total.Add(decimal.NewFromFloat(pnl))
	}
	return total.InexactFloat64()
}

// Charges aggregates the charge records. A record's total is used when
// present, otherwise its components are summed; missing fields count as 0.
func Charges(records []models.OrderCharge) models.ChargesBreakdown {
	var (
		brokerage = decimal.Zero
		stt       = decimal.Zero
		exchange  = decimal.Zero
		sebi      = decimal.Zero
		stamp     = decimal.Zero
		gst       = decimal.Zero
		total     = decimal.Zero
	)
	for _, r := range records {
		c := r.Charges
		if c == nil {
			continue
		}
		brokerage = brokerage.Add(decimal.NewFromFloat(c.Brokerage))
		stt = stt.Add(decimal.NewFromFloat(c.TransactionTax))
		exchange = exchange.Add(decimal.NewFromFloat(c.ExchangeTurnoverCharge))
		sebi = sebi.Add(decimal.NewFromFloat(c.SEBITurnoverCharge))
		stamp = stamp.Add(decimal.NewFromFloat(c.StampDuty))
		gst = gst.Add(decimal.NewFromFloat(c.GSTTotal()))
		total = total.Add(recordTotal(*c))
	}
	return models.ChargesBreakdown{
		Brokerage: brokerage.InexactFloat64(),
		STT:       stt.InexactFloat64(),
		Exchange:  exchange.InexactFloat64(),
		SEBI:      sebi.InexactFloat64(),
		StampDuty: stamp.InexactFloat64(),
		GST:       gst.InexactFloat64(),
		Total:     total.InexactFloat64(),
	}
}

func recordTotal(c models.ChargeDetail) decimal.Decimal {
	if c.Total != nil {
		return decimal.NewFromFloat(*c.Total)
	}
	return decimal.Sum(
		decimal.NewFromFloat(c.Brokerage),
		decimal.NewFromFloat(c.TransactionTax),
		decimal.NewFromFloat(c.ExchangeTurnoverCharge),
		decimal.NewFromFloat(c.SEBITurnoverCharge),
		decimal.NewFromFloat(c.StampDuty),
		decimal.NewFromFloat(c.GSTTotal()),
	)
}

// UnrealizedPL sums the P&L of active strategies for display only.
func UnrealizedPL(strategies []models.StrategyPosition) float64 {
	total := decimal.Zero
	for _, s := range strategies {
		if s.Status != models.StrategyActive || s.ProfitLoss == nil {
			continue
		}
		total = total.Add(decimal.NewFromFloat(*s.ProfitLoss))
	}
	return total.InexactFloat64()
}
