// Package broker provides the trading-service interfaces and implementations.
package broker

import (
	"context"

	"botwatch/internal/models"
)

// Reader is the read side of the trading service, consumed by the poller
// and the session bootstrap.
type Reader interface {
	// Poll cycle reads
	ActiveStrategies(ctx context.Context) ([]models.StrategyPosition, error)
	MonitoringStatus(ctx context.Context) (*models.MonitoringStatus, error)
	Positions(ctx context.Context) ([]models.Position, error)
	Orders(ctx context.Context) ([]models.Order, error)
	OrderCharges(ctx context.Context) ([]models.OrderCharge, error)
	BotStatus(ctx context.Context) (*models.BotStatusResponse, error)
	LTP(ctx context.Context, instrumentName string) (float64, error)

	// Catalog
	StrategyTypes(ctx context.Context) ([]models.StrategyType, error)
	Instruments(ctx context.Context) ([]models.Instrument, error)
	Expiries(ctx context.Context, instrumentCode string) ([]string, error)

	// Session
	TradingMode(ctx context.Context) (*models.TradingModeStatus, error)
	Profile(ctx context.Context) (*models.UserProfile, error)
}

// Writer is the mutating side of the trading service.
type Writer interface {
	ExecuteStrategy(ctx context.Context, req models.ExecuteRequest) (*models.ExecuteResult, error)
	ExecuteHistorical(ctx context.Context, req models.ExecuteRequest) (*models.HistoricalRunResult, error)
	StopMonitoring(ctx context.Context, executionID string) (string, error)
	StopAll(ctx context.Context) (string, error)
	SetTradingMode(ctx context.Context, paper bool) (*models.TradingModeStatus, error)
	Logout(ctx context.Context) error
}

// TradingService is the full remote bot service.
type TradingService interface {
	Reader
	Writer
}

// Endpoint paths, relative to the /api root.
const (
	pathActiveStrategies = "/strategies/active"
	pathOrders           = "/orders"
	pathPositions        = "/portfolio/positions"
	pathCharges          = "/orders/charges"
	pathBotStatus        = "/strategies/bot-status"
	pathMonitoringStatus = "/monitoring/status"
	pathMonitoring       = "/monitoring/"
	pathLTP              = "/market/ltp"
	pathStrategyTypes    = "/strategies/types"
	pathInstruments      = "/strategies/instruments"
	pathExpiries         = "/strategies/expiries/"
	pathModeStatus       = "/paper-trading/status"
	pathMode             = "/paper-trading/mode"
	pathProfile          = "/auth/profile"
	pathLogout           = "/auth/logout"
	pathExecute          = "/strategies/execute"
	pathStopAll          = "/strategies/stop-all"
	pathHistorical       = "/historical/execute"
)

var descriptions = []struct {
	prefix string
	text   string
}{
	{"POST " + pathLogout, "Logging out"},
	{"GET " + pathProfile, "Fetching user profile"},
	{"GET " + pathLTP, "Fetching LTP"},
	{"GET " + pathStrategyTypes, "Loading strategy types"},
	{"GET " + pathInstruments, "Loading tradeable instruments"},
	{"GET " + pathExpiries, "Fetching expiries"},
	{"POST " + pathExecute, "Executing strategy"},
	{"GET " + pathActiveStrategies, "Fetching active strategies"},
	{"GET " + pathBotStatus, "Checking bot status"},
	{"DELETE " + pathStopAll, "Stopping all strategies"},
	{"GET " + pathCharges, "Fetching order charges"},
	{"GET " + pathOrders, "Fetching orders"},
	{"GET " + pathPositions, "Fetching positions"},
	{"GET " + pathMonitoringStatus, "Checking monitoring status"},
	{"DELETE " + pathMonitoring, "Stopping monitor"},
	{"GET " + pathModeStatus, "Checking trading mode"},
	{"POST " + pathMode, "Switching trading mode"},
	{"POST " + pathHistorical, "Running historical replay"},
}

// Describe returns a human-readable name for an API call.
func Describe(method, path string) string {
	key := method + " " + path
	for _, d := range descriptions {
		if len(key) >= len(d.prefix) && key[:len(d.prefix)] == d.prefix {
			return d.text
		}
	}
	return "API call to " + path
}
