package broker

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "botwatch/internal/errors"
	"botwatch/internal/models"
)

// Call names one TradingService method, for call recording and hooks.
type Call string

const (
	CallActiveStrategies  Call = "ActiveStrategies"
	CallMonitoringStatus  Call = "MonitoringStatus"
	CallPositions         Call = "Positions"
	CallOrders            Call = "Orders"
	CallOrderCharges      Call = "OrderCharges"
	CallBotStatus         Call = "BotStatus"
	CallLTP               Call = "LTP"
	CallStrategyTypes     Call = "StrategyTypes"
	CallInstruments       Call = "Instruments"
	CallExpiries          Call = "Expiries"
	CallTradingMode       Call = "TradingMode"
	CallSetTradingMode    Call = "SetTradingMode"
	CallProfile           Call = "Profile"
	CallLogout            Call = "Logout"
	CallExecuteStrategy   Call = "ExecuteStrategy"
	CallExecuteHistorical Call = "ExecuteHistorical"
	CallStopMonitoring    Call = "StopMonitoring"
	CallStopAll           Call = "StopAll"
)

// Hook runs before a call is served. A non-nil error is returned to the caller
// instead of the simulated result.
type Hook func(ctx context.Context) error

// PaperService is an in-memory TradingService that simulates the remote bot.
// It backs the offline demo mode and the dashboard tests.
type PaperService struct {
	mu sync.Mutex

	strategies map[string]*models.StrategyPosition
	order      []string
	orders     []models.Order
	positions  models.PositionBook
	charges    []models.OrderCharge
	botStatus  models.BotStatus
	mode       models.TradingMode
	monitoring models.MonitoringStatus
	ltp        map[string]float64

	strategyTypes []models.StrategyType
	instruments   []models.Instrument
	expiries      map[string][]string
	profile       models.UserProfile

	loggedOut    bool
	orderCounter int
	calls        []Call
	hooks        map[Call]Hook
	now          func() time.Time
}

var _ TradingService = (*PaperService)(nil)

// PaperConfig holds configuration for the paper service.
type PaperConfig struct {
	UserID   string
	UserName string
	// Now overrides the clock used for timestamps.
	Now func() time.Time
}

// NewPaperService creates a paper service with a small NIFTY/BANKNIFTY catalog.
func NewPaperService(cfg PaperConfig) *PaperService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	userID := cfg.UserID
	if userID == "" {
		userID = "PAPER01"
	}
	userName := cfg.UserName
	if userName == "" {
		userName = "Paper Trader"
	}

	return &PaperService{
		strategies: make(map[string]*models.StrategyPosition),
		positions:  models.PositionBook{Net: []models.Position{}, Day: []models.Position{}},
		orders:     []models.Order{},
		charges:    []models.OrderCharge{},
		botStatus:  models.BotStopped,
		mode:       models.PaperTrading,
		monitoring: models.MonitoringStatus{Connected: true},
		ltp: map[string]float64{
			"NIFTY 50":   24350.15,
			"NIFTY BANK": 52180.40,
		},
		strategyTypes: []models.StrategyType{
			{Name: models.StrategyATMStraddle, Description: "Sell ATM call and put", Implemented: true},
			{Name: models.StrategyATMStrangle, Description: "Sell near-ATM call and put", Implemented: true},
			{Name: models.StrategyOTMStrangle, Description: "Sell OTM call and put", Implemented: true},
			{Name: "IRON_CONDOR", Description: "Defined-risk short volatility", Implemented: false},
		},
		instruments: []models.Instrument{
			{Code: "NIFTY", Name: "NIFTY 50", LotSize: 75, StrikeInterval: 50},
			{Code: "BANKNIFTY", Name: "NIFTY BANK", LotSize: 35, StrikeInterval: 100},
		},
		expiries: map[string][]string{
			"NIFTY":     {"WEEKLY", "MONTHLY"},
			"BANKNIFTY": {"MONTHLY"},
		},
		profile: models.UserProfile{UserName: userName, UserID: userID},
		hooks:   make(map[Call]Hook),
		now:     now,
	}
}

// SetHook installs fn to run before every call of kind c. A nil fn removes it.
func (p *PaperService) SetHook(c Call, fn Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fn == nil {
		delete(p.hooks, c)
		return
	}
	p.hooks[c] = fn
}

// FailWith makes every call of kind c return err until cleared with nil.
func (p *PaperService) FailWith(c Call, err error) {
	if err == nil {
		p.SetHook(c, nil)
		return
	}
	p.SetHook(c, func(context.Context) error { return err })
}

// Calls returns the calls served so far, in order.
func (p *PaperService) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// ResetCalls clears the call record.
func (p *PaperService) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

// enter records c and runs its hook. It must be called without p.mu held.
func (p *PaperService) enter(ctx context.Context, c Call) error {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	hook := p.hooks[c]
	loggedOut := p.loggedOut
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	if loggedOut {
		return apperrors.NewAPIError(http.MethodGet, string(c), http.StatusUnauthorized, "Unauthorized", apperrors.ErrSessionExpired)
	}
	return nil
}

// SetBotStatus overrides the reported server run state.
func (p *PaperService) SetBotStatus(s models.BotStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.botStatus = s
}

// SetLTP sets the last traded price of an index by display name.
func (p *PaperService) SetLTP(name string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ltp[name] = price
}

// AddStrategy inserts or replaces an execution.
func (p *PaperService) AddStrategy(s models.StrategyPosition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.strategies[s.ExecutionID]; !ok {
		p.order = append(p.order, s.ExecutionID)
	}
	cp := s
	p.strategies[s.ExecutionID] = &cp
	p.refreshMonitoringLocked()
}

// SetStrategyPnL moves the P&L of an execution.
func (p *PaperService) SetStrategyPnL(executionID string, pnl float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.strategies[executionID]; ok {
		s.ProfitLoss = models.Float(pnl)
	}
}

// CompleteStrategy closes an execution with a realized P&L.
func (p *PaperService) CompleteStrategy(executionID string, pnl float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.strategies[executionID]; ok {
		s.Status = models.StrategyCompleted
		s.ProfitLoss = models.Float(pnl)
		exit := p.now().UnixMilli()
		s.ExitTime = &exit
		p.refreshMonitoringLocked()
	}
}

// AddCharge appends a charge record.
func (p *PaperService) AddCharge(c models.OrderCharge) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.charges = append(p.charges, c)
}

func (p *PaperService) refreshMonitoringLocked() {
	active := 0
	for _, s := range p.strategies {
		if s.Status == models.StrategyActive {
			active++
		}
	}
	p.monitoring.ActiveMonitors = active
}

// ActiveStrategies returns every execution of the session.
func (p *PaperService) ActiveStrategies(ctx context.Context) ([]models.StrategyPosition, error) {
	if err := p.enter(ctx, CallActiveStrategies); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.StrategyPosition, 0, len(p.order))
	for _, id := range p.order {
		s := *p.strategies[id]
		s.OrderLegs = append([]models.OrderLeg(nil), s.OrderLegs...)
		out = append(out, s)
	}
	return out, nil
}

// MonitoringStatus returns the simulated monitor state.
func (p *PaperService) MonitoringStatus(ctx context.Context) (*models.MonitoringStatus, error) {
	if err := p.enter(ctx, CallMonitoringStatus); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.monitoring
	return &m, nil
}

// Positions returns day positions, or net when day is empty.
func (p *PaperService) Positions(ctx context.Context) ([]models.Position, error) {
	if err := p.enter(ctx, CallPositions); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Position{}, p.positions.Preferred()...), nil
}

// Orders returns the simulated order book.
func (p *PaperService) Orders(ctx context.Context) ([]models.Order, error) {
	if err := p.enter(ctx, CallOrders); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Order{}, p.orders...), nil
}

// OrderCharges returns the simulated charge records.
func (p *PaperService) OrderCharges(ctx context.Context) ([]models.OrderCharge, error) {
	if err := p.enter(ctx, CallOrderCharges); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.OrderCharge{}, p.charges...), nil
}

// BotStatus returns the simulated run state.
func (p *PaperService) BotStatus(ctx context.Context) (*models.BotStatusResponse, error) {
	if err := p.enter(ctx, CallBotStatus); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return &models.BotStatusResponse{
		Status:      p.botStatus,
		LastUpdated: p.now().Format(time.RFC3339),
	}, nil
}

// LTP returns the last traded price, 0 for unknown names.
func (p *PaperService) LTP(ctx context.Context, instrumentName string) (float64, error) {
	if err := p.enter(ctx, CallLTP); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ltp[instrumentName], nil
}

// StrategyTypes returns the strategy catalog.
func (p *PaperService) StrategyTypes(ctx context.Context) ([]models.StrategyType, error) {
	if err := p.enter(ctx, CallStrategyTypes); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.StrategyType(nil), p.strategyTypes...), nil
}

// Instruments returns the instrument catalog.
func (p *PaperService) Instruments(ctx context.Context) ([]models.Instrument, error) {
	if err := p.enter(ctx, CallInstruments); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Instrument(nil), p.instruments...), nil
}

// Expiries returns the expiries of an instrument.
func (p *PaperService) Expiries(ctx context.Context, instrumentCode string) ([]string, error) {
	if err := p.enter(ctx, CallExpiries); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.expiries[instrumentCode]...), nil
}

// TradingMode returns the simulated trading mode.
func (p *PaperService) TradingMode(ctx context.Context) (*models.TradingModeStatus, error) {
	if err := p.enter(ctx, CallTradingMode); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modeStatusLocked(""), nil
}

func (p *PaperService) modeStatusLocked(message string) *models.TradingModeStatus {
	desc := "Live trading with real orders"
	if p.mode.IsPaper() {
		desc = "Paper trading with simulated orders"
	}
	return &models.TradingModeStatus{
		PaperTradingEnabled: p.mode.IsPaper(),
		Mode:                p.mode,
		Description:         desc,
		Message:             message,
	}
}

// SetTradingMode switches the simulated trading mode.
func (p *PaperService) SetTradingMode(ctx context.Context, paper bool) (*models.TradingModeStatus, error) {
	if err := p.enter(ctx, CallSetTradingMode); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = models.LiveTrading
	if paper {
		p.mode = models.PaperTrading
	}
	return p.modeStatusLocked(fmt.Sprintf("Trading mode set to %s", p.mode)), nil
}

// Profile returns the simulated user.
func (p *PaperService) Profile(ctx context.Context) (*models.UserProfile, error) {
	if err := p.enter(ctx, CallProfile); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	prof := p.profile
	return &prof, nil
}

// Logout ends the simulated session; every later call returns 401.
func (p *PaperService) Logout(ctx context.Context) error {
	if err := p.enter(ctx, CallLogout); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loggedOut = true
	return nil
}

func (p *PaperService) instrumentLocked(code string) (models.Instrument, bool) {
	for _, inst := range p.instruments {
		if inst.Code == code {
			return inst, true
		}
	}
	return models.Instrument{}, false
}

// ExecuteStrategy simulates a two-leg short option entry.
func (p *PaperService) ExecuteStrategy(ctx context.Context, req models.ExecuteRequest) (*models.ExecuteResult, error) {
	if err := p.enter(ctx, CallExecuteStrategy); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, ok := p.instrumentLocked(req.InstrumentType)
	if !ok {
		return nil, apperrors.NewAPIError(http.MethodPost, pathExecute, http.StatusBadRequest,
			fmt.Sprintf("Unknown instrument %s", req.InstrumentType), nil)
	}

	spot := p.ltp[inst.Name]
	interval := float64(inst.StrikeInterval)
	atm := math.Round(spot/interval) * interval
	gap := 0.0
	if models.IsStrangle(req.StrategyType) && req.StrikeGap != nil {
		gap = float64(*req.StrikeGap)
	}

	now := p.now()
	qty := req.Lots * inst.LotSize
	premium := math.Round(spot*0.005*100) / 100
	entry := now.UnixMilli()

	legs := []models.OrderLeg{
		p.fillLegLocked(inst, atm+gap, "CE", qty, premium, now),
		p.fillLegLocked(inst, atm-gap, "PE", qty, premium, now),
	}

	id := uuid.NewString()
	p.order = append(p.order, id)
	p.strategies[id] = &models.StrategyPosition{
		ExecutionID:    id,
		StrategyType:   req.StrategyType,
		InstrumentType: req.InstrumentType,
		Expiry:         req.Expiry,
		Status:         models.StrategyActive,
		Message:        "Strategy executed",
		EntryPrice:     models.Float(premium * 2),
		CurrentPrice:   models.Float(premium * 2),
		ProfitLoss:     models.Float(0),
		Timestamp:      entry,
		EntryTime:      &entry,
		OrderLegs:      legs,
	}
	p.botStatus = models.BotRunning
	p.refreshMonitoringLocked()

	return &models.ExecuteResult{
		ExecutionID: id,
		Status:      string(models.StrategyActive),
		Message:     fmt.Sprintf("%s on %s executed", strings.ReplaceAll(req.StrategyType, "_", " "), inst.Code),
	}, nil
}

func (p *PaperService) fillLegLocked(inst models.Instrument, strike float64, optType string, qty int, price float64, now time.Time) models.OrderLeg {
	p.orderCounter++
	orderID := fmt.Sprintf("PAPER_%d_%d", now.Unix(), p.orderCounter)
	symbol := fmt.Sprintf("%s%s%.0f%s", inst.Code, strings.ToUpper(now.Format("06Jan")), strike, optType)

	p.orders = append(p.orders, models.Order{
		OrderID:         orderID,
		Status:          models.OrderComplete,
		TradingSymbol:   symbol,
		Exchange:        models.NFO,
		TransactionType: models.OrderSideSell,
		OrderType:       "MARKET",
		Product:         models.ProductMIS,
		Quantity:        qty,
		AveragePrice:    price,
		FilledQuantity:  qty,
		OrderTimestamp:  now.Format("2006-01-02 15:04:05"),
	})
	p.positions.Net = append(p.positions.Net, models.Position{
		TradingSymbol: symbol,
		Exchange:      models.NFO,
		Product:       models.ProductMIS,
		NetQuantity:   -qty,
		AveragePrice:  price,
		LastPrice:     price,
		SellValue:     price * float64(qty),
	})
	p.charges = append(p.charges, paperCharge(symbol, qty, price))

	return models.OrderLeg{
		OrderID:       orderID,
		TradingSymbol: symbol,
		OptionType:    optType,
		Quantity:      qty,
		EntryPrice:    models.Float(price),
	}
}

// paperCharge approximates the statutory charges of one option sell order.
func paperCharge(symbol string, qty int, price float64) models.OrderCharge {
	turnover := price * float64(qty)
	round := func(v float64) float64 { return math.Round(v*100) / 100 }

	brokerage := 20.0
	stt := round(turnover * 0.000625)
	exch := round(turnover * 0.0003503)
	sebi := round(turnover * 0.000001)
	gst := round((brokerage + exch + sebi) * 0.18)
	total := round(brokerage + stt + exch + sebi + gst)

	return models.OrderCharge{
		TransactionType: models.OrderSideSell,
		TradingSymbol:   symbol,
		Exchange:        models.NFO,
		Variety:         "regular",
		Product:         models.ProductMIS,
		OrderType:       "MARKET",
		Quantity:        qty,
		Price:           price,
		Charges: &models.ChargeDetail{
			TransactionTax:         stt,
			TransactionTaxType:     "stt",
			ExchangeTurnoverCharge: exch,
			SEBITurnoverCharge:     sebi,
			Brokerage:              brokerage,
			GST:                    &models.GSTCharge{IGST: gst, Total: gst},
			Total:                  models.Float(total),
		},
	}
}

// ExecuteHistorical returns a deterministic replay curve for the request.
func (p *PaperService) ExecuteHistorical(ctx context.Context, req models.ExecuteRequest) (*models.HistoricalRunResult, error) {
	if err := p.enter(ctx, CallExecuteHistorical); err != nil {
		return nil, err
	}

	lots := req.Lots
	if lots < 1 {
		lots = 1
	}
	start := time.Date(2024, 11, 21, 9, 20, 0, 0, time.UTC)
	points := make([]models.HistoricalPnlPoint, 0, 75)
	for i := 0; i < 75; i++ {
		x := float64(i)
		pnl := float64(lots) * (40*math.Sin(x/9) + 2.5*x - 0.04*x*x)
		points = append(points, models.HistoricalPnlPoint{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute).Format("15:04"),
			PnL:       math.Round(pnl*100) / 100,
		})
	}

	return &models.HistoricalRunResult{
		ExecutionID: "hist-" + uuid.NewString(),
		FinalPnL:    points[len(points)-1].PnL,
		PnLData:     points,
		Message:     "Historical replay complete",
	}, nil
}

// StopMonitoring stops the monitor of one execution and marks it stopped.
func (p *PaperService) StopMonitoring(ctx context.Context, executionID string) (string, error) {
	if err := p.enter(ctx, CallStopMonitoring); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.strategies[executionID]
	if !ok {
		return "", apperrors.NewAPIError(http.MethodDelete, pathMonitoring+executionID, http.StatusNotFound,
			"Execution not found: "+executionID, apperrors.ErrDataNotFound)
	}
	p.stopLocked(s)
	p.refreshMonitoringLocked()
	return "Stopped monitoring for " + executionID, nil
}

// StopAll stops every active execution. Positions stay open.
func (p *PaperService) StopAll(ctx context.Context) (string, error) {
	if err := p.enter(ctx, CallStopAll); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.strategies))
	for id := range p.strategies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	stopped := 0
	for _, id := range ids {
		if s := p.strategies[id]; s.Status == models.StrategyActive {
			p.stopLocked(s)
			stopped++
		}
	}
	p.botStatus = models.BotStopped
	p.refreshMonitoringLocked()
	return fmt.Sprintf("Stopped %d strategies.", stopped), nil
}

func (p *PaperService) stopLocked(s *models.StrategyPosition) {
	if s.Status != models.StrategyActive {
		return
	}
	s.Status = models.StrategyStopped
	exit := p.now().UnixMilli()
	s.ExitTime = &exit
	if s.ProfitLoss == nil {
		s.ProfitLoss = models.Float(0)
	}
}
