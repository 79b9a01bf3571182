package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"botwatch/internal/models"
	"botwatch/internal/security"
	"botwatch/pkg/utils"
)

const shortIDLen = 8

// shortID abbreviates an execution id for table display.
func shortID(id string) string {
	r := []rune(id)
	if len(r) <= shortIDLen {
		return id
	}
	return string(r[:shortIDLen])
}

// formatPrice formats an optional price, "-" when absent.
func formatPrice(v float64, ok bool) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

// formatMillis formats an epoch-milliseconds timestamp in IST.
func formatMillis(ms int64, layout string) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).In(utils.IndiaLocation).Format(layout)
}

// formatExit returns the current price of an active execution or the exit
// price of a terminal one.
func formatExit(s models.StrategyPosition) string {
	return formatPrice(s.EffectiveExitPrice())
}

// strategyPnL returns the P&L shown for an execution: realized for
// terminal executions, the server's running figure otherwise.
func strategyPnL(s models.StrategyPosition) (float64, bool) {
	if pnl, ok := s.RealizedPnL(); ok {
		return pnl, true
	}
	if s.ProfitLoss == nil {
		return 0, false
	}
	return *s.ProfitLoss, true
}

// describeStrategy renders "OTM STRANGLE on NIFTY (WEEKLY)".
func describeStrategy(s models.StrategyPosition) string {
	parts := []string{utils.FormatEnum(s.StrategyType)}
	if s.InstrumentType != "" {
		parts = append(parts, "on", s.InstrumentType)
	}
	if s.Expiry != "" {
		parts = append(parts, "("+s.Expiry+")")
	}
	return strings.Join(parts, " ")
}

// formatLegs lists the legs of an execution as "SYMBOL qty@price".
func formatLegs(legs []models.OrderLeg) string {
	if len(legs) == 0 {
		return ""
	}
	out := make([]string, 0, len(legs))
	for _, l := range legs {
		price := "-"
		if l.EntryPrice != nil {
			price = fmt.Sprintf("%.2f", *l.EntryPrice)
		}
		out = append(out, fmt.Sprintf("%s %d@%s", l.TradingSymbol, l.Quantity, price))
	}
	return strings.Join(out, ", ")
}

// serverText cleans a message that came from the service for the terminal.
func serverText(s string) string {
	return security.SanitizeText(strings.TrimSpace(s))
}

// formatCountdown renders the time left in a confirmation window.
func formatCountdown(deadline, now time.Time) string {
	left := deadline.Sub(now)
	if left < 0 {
		left = 0
	}
	return fmt.Sprintf("%ds", int(left.Round(time.Second)/time.Second))
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
