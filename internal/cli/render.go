package cli

import (
	"fmt"
	"time"

	"botwatch/internal/dashboard"
	"botwatch/internal/metrics"
	"botwatch/internal/models"
	"botwatch/pkg/utils"
)

const recentLogLines = 10

// statusView is the JSON form of the dashboard.
type statusView struct {
	User         *models.UserProfile       `json:"user,omitempty"`
	BotStatus    models.BotStatus          `json:"botStatus"`
	Mode         *models.TradingModeStatus `json:"tradingMode,omitempty"`
	Monitoring   *models.MonitoringStatus  `json:"monitoring,omitempty"`
	Selection    dashboard.Selection       `json:"selection"`
	LTP          float64                   `json:"ltp"`
	MaxLossLimit float64                   `json:"maxLossLimit"`
	Metrics      metrics.Result            `json:"metrics"`
	Strategies   []models.StrategyPosition `json:"strategies"`
	Positions    []models.Position         `json:"positions"`
	Orders       []models.Order            `json:"orders"`
	Market       utils.MarketSession       `json:"marketSession"`
	Armed        *armedView                `json:"armed,omitempty"`
}

type armedView struct {
	Action   string    `json:"action"`
	Target   string    `json:"target,omitempty"`
	Deadline time.Time `json:"deadline"`
}

func newStatusView(s *session) statusView {
	d := s.dash
	v := statusView{
		User:         d.Profile(),
		BotStatus:    d.BotStatus(),
		Mode:         d.Mode.Get(),
		Monitoring:   d.Monitoring.Get(),
		Selection:    d.Selection(),
		LTP:          d.LTP.Get(),
		MaxLossLimit: d.Settings().MaxLossLimit,
		Metrics:      d.Metrics.Get(),
		Strategies:   d.Strategies.Get(),
		Positions:    d.Positions.Get(),
		Orders:       d.Orders.Get(),
		Market:       utils.CurrentSession(),
	}
	if a, deadline, ok := s.gate.Armed(); ok {
		v.Armed = &armedView{Action: a.Kind.Label(), Target: a.Target, Deadline: deadline}
	}
	return v
}

// renderDashboard prints the full dashboard.
func renderDashboard(out *Output, s *session, now time.Time) {
	v := newStatusView(s)
	renderHeader(out, s, v)
	out.Println()
	renderMetrics(out, v)
	out.Println()
	renderStrategies(out, s, v.Strategies)
	out.Println()
	renderPositions(out, v.Positions)
	out.Println()
	renderOrders(out, s, v.Orders)
	if v.Armed != nil {
		out.Println()
		out.Warning("Armed: %s %s (%s left)", v.Armed.Action, v.Armed.Target, formatCountdown(v.Armed.Deadline, now))
	}
}

func renderHeader(out *Output, s *session, v statusView) {
	user := "-"
	if v.User != nil {
		user = fmt.Sprintf("%s (%s)", v.User.UserName, v.User.UserID)
	}
	mode := "-"
	if v.Mode != nil {
		mode = utils.FormatEnum(string(v.Mode.Mode))
		if v.Mode.Mode == models.LiveTrading {
			mode = out.Red(mode)
		}
	}
	monitor := out.DimText("disconnected")
	if v.Monitoring != nil && v.Monitoring.Connected {
		monitor = out.Green(fmt.Sprintf("connected, %d active", v.Monitoring.ActiveMonitors))
	}

	out.Printf("%s  %s\n", out.BoldText("botwatch"), out.DimText(user))
	market := string(v.Market)
	if v.Market != utils.SessionOpen && v.Market != utils.SessionSquareOff {
		market = out.DimText(market)
	}
	out.Printf("Bot: %s   Mode: %s   Monitor: %s   Market: %s\n", out.BotStatus(v.BotStatus), mode, monitor, market)

	sel := v.Selection
	ltp := "-"
	if v.LTP > 0 {
		ltp = fmt.Sprintf("%.2f", v.LTP)
	}
	strategy := "-"
	if sel.Strategy != "" {
		strategy = utils.FormatEnum(sel.Strategy)
		if models.IsStrangle(sel.Strategy) {
			strategy += fmt.Sprintf(" (%d pts)", sel.StrikeGap)
		}
	}
	out.Printf("Selected: %s on %s  Expiry: %s  Lots: %d  LTP: %s\n",
		strategy, orDash(sel.Instrument), orDash(sel.Expiry), sel.Lots, ltp)
	if s.poller.AutoRefresh() {
		out.Dim("Auto-refresh on")
	}
}

func renderMetrics(out *Output, v statusView) {
	m := v.Metrics
	out.Printf("Gross P&L: %s   Charges: %s   Net P&L: %s\n",
		out.PnL(m.GrossPL), utils.FormatIndianCurrency(m.TotalCharges), out.PnL(m.NetPL))
	limit := utils.FormatIndianCurrency(v.MaxLossLimit)
	if m.MaxLossBreached {
		out.Error("Max daily loss of %s reached", limit)
	} else {
		out.Dim("Max daily loss: %s", limit)
	}
}

func renderCharges(out *Output, c models.ChargesBreakdown) {
	table := NewTable(out, "CHARGE", "AMOUNT")
	table.AddRow("Brokerage", utils.FormatIndianCurrency(c.Brokerage))
	table.AddRow("STT", utils.FormatIndianCurrency(c.STT))
	table.AddRow("Exchange", utils.FormatIndianCurrency(c.Exchange))
	table.AddRow("SEBI", utils.FormatIndianCurrency(c.SEBI))
	table.AddRow("Stamp duty", utils.FormatIndianCurrency(c.StampDuty))
	table.AddRow("GST", utils.FormatIndianCurrency(c.GST))
	table.AddRow(out.BoldText("Total"), out.BoldText(utils.FormatIndianCurrency(c.Total)))
	table.Render()
}

func renderStrategies(out *Output, s *session, strategies []models.StrategyPosition) {
	out.Bold("Strategies")
	if len(strategies) == 0 {
		out.Dim("No strategy executions")
		return
	}
	layout := s.app.Config.UI.TimeFormat
	table := NewTable(out, "ID", "STRATEGY", "STATUS", "ENTRY", "CURRENT", "P&L", "ENTERED", "EXITED")
	for _, st := range strategies {
		entry := formatPrice(st.EffectiveEntryPrice())
		pnl := "-"
		if v, ok := strategyPnL(st); ok {
			pnl = out.PnL(v)
		}
		var entered, exited int64
		if st.EntryTime != nil {
			entered = *st.EntryTime
		}
		if st.ExitTime != nil {
			exited = *st.ExitTime
		}
		table.AddRow(
			shortID(st.ExecutionID),
			describeStrategy(st),
			out.StrategyStatus(st.Status),
			entry,
			formatExit(st),
			pnl,
			formatMillis(entered, layout),
			formatMillis(exited, layout),
		)
	}
	table.Render()
	for _, st := range strategies {
		if legs := formatLegs(st.OrderLegs); legs != "" && !st.Status.IsTerminal() {
			out.Dim("%s legs: %s", shortID(st.ExecutionID), legs)
		}
		if msg := serverText(st.Message); msg != "" && st.Status.IsTerminal() {
			out.Dim("%s: %s", shortID(st.ExecutionID), msg)
		}
	}
}

func renderPositions(out *Output, positions []models.Position) {
	out.Bold("Positions")
	if len(positions) == 0 {
		out.Dim("No positions")
		return
	}
	table := NewTable(out, "SYMBOL", "PRODUCT", "QTY", "AVG", "LTP", "P&L")
	for _, p := range positions {
		table.AddRow(
			p.TradingSymbol,
			string(p.Product),
			fmt.Sprintf("%d", p.NetQuantity),
			fmt.Sprintf("%.2f", p.AveragePrice),
			fmt.Sprintf("%.2f", p.LastPrice),
			out.PnL(p.PnL),
		)
	}
	table.Render()
}

func renderOrders(out *Output, s *session, orders []models.Order) {
	out.Bold("Orders")
	if len(orders) == 0 {
		out.Dim("No orders today")
		return
	}
	table := NewTable(out, "TIME", "SYMBOL", "SIDE", "QTY", "PRICE", "STATUS")
	for _, o := range orders {
		side := string(o.TransactionType)
		if o.TransactionType == models.OrderSideBuy {
			side = out.Green(side)
		} else {
			side = out.Red(side)
		}
		table.AddRow(
			o.OrderTimestamp,
			o.TradingSymbol,
			side,
			fmt.Sprintf("%d/%d", o.FilledQuantity, o.Quantity),
			fmt.Sprintf("%.2f", o.AveragePrice),
			string(o.Status),
		)
	}
	table.Render()
}

// renderRecentLog prints the newest trade log entries, oldest first.
func renderRecentLog(out *Output, s *session) {
	entries := s.log.Entries()
	if len(entries) > recentLogLines {
		entries = entries[:recentLogLines]
	}
	out.Bold("Log")
	for i := len(entries) - 1; i >= 0; i-- {
		out.Println(out.LogEntry(entries[i], s.app.Config.UI.TimeFormat))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
