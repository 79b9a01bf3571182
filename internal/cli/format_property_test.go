package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"botwatch/internal/models"
)

func TestProperty_ShortID(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("short ids are prefixes of at most eight runes", prop.ForAll(
		func(id string) bool {
			short := shortID(id)
			return strings.HasPrefix(id, short) && utf8.RuneCountInString(short) <= shortIDLen &&
				(utf8.RuneCountInString(id) > shortIDLen || short == id)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestProperty_VisibleLenIgnoresColor(t *testing.T) {
	properties := gopter.NewProperties(nil)
	out := &Output{colorEnabled: true}

	properties.Property("painting does not change the visible width", prop.ForAll(
		func(s string) bool {
			painted := out.paint(s, color.FgGreen, color.Bold)
			return visibleLen(painted) == utf8.RuneCountInString(s) && stripANSI(painted) == s
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestProperty_CountdownNeverNegative(t *testing.T) {
	properties := gopter.NewProperties(nil)
	base := time.Date(2024, 11, 21, 10, 0, 0, 0, time.UTC)

	properties.Property("countdown is whole non-negative seconds", prop.ForAll(
		func(ms int64) bool {
			s := formatCountdown(base.Add(time.Duration(ms)*time.Millisecond), base)
			return strings.HasSuffix(s, "s") && !strings.HasPrefix(s, "-")
		},
		gen.Int64Range(-10000, 10000),
	))

	properties.TestingRun(t)
}

func TestTableAlignsColoredCells(t *testing.T) {
	var buf bytes.Buffer
	out := &Output{writer: &buf, colorEnabled: true}

	table := NewTable(out, "ID", "P&L")
	table.AddRow("exec-1", out.PnL(120))
	table.AddRow("e2", out.PnL(-3000))
	table.Render()

	lines := strings.Split(strings.TrimRight(stripANSI(buf.String()), "\n"), "\n")
	assert.Len(t, lines, 4)
	col := strings.Index(lines[0], "P&L")
	assert.Equal(t, col, strings.Index(lines[2], "+₹120.00"))
	assert.Equal(t, col, strings.Index(lines[3], "-₹3,000.00"))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "-", formatPrice(0, false))
	assert.Equal(t, "12.50", formatPrice(12.5, true))
	assert.Equal(t, "-", formatMillis(0, "15:04"))
	// 2024-11-21 04:00 UTC is 09:30 IST.
	assert.Equal(t, "09:30", formatMillis(time.Date(2024, 11, 21, 4, 0, 0, 0, time.UTC).UnixMilli(), "15:04"))

	pl := -250.0
	done := models.StrategyPosition{Status: models.StrategyStopped, ProfitLoss: &pl}
	v, ok := strategyPnL(done)
	assert.True(t, ok)
	assert.Equal(t, -250.0, v)

	_, ok = strategyPnL(models.StrategyPosition{Status: models.StrategyActive})
	assert.False(t, ok)

	assert.Equal(t, "OTM STRANGLE on NIFTY (WEEKLY)", describeStrategy(models.StrategyPosition{
		StrategyType: "OTM_STRANGLE", InstrumentType: "NIFTY", Expiry: "WEEKLY",
	}))
	assert.Equal(t, "NIFTY24NOV24400CE 50@12.50, NIFTY24NOV24300PE 50@-", formatLegs([]models.OrderLeg{
		{TradingSymbol: "NIFTY24NOV24400CE", Quantity: 50, EntryPrice: models.Float(12.5)},
		{TradingSymbol: "NIFTY24NOV24300PE", Quantity: 50},
	}))
	assert.Equal(t, "-", joinOrDash(nil))
}
