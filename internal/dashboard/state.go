// Package dashboard holds the live view of one operator session: the
// reconciled service state, the strategy selection, the poll scheduler
// and the action controller.
package dashboard

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"botwatch/internal/broker"
	"botwatch/internal/config"
	apperrors "botwatch/internal/errors"
	"botwatch/internal/logging"
	"botwatch/internal/metrics"
	"botwatch/internal/models"
	"botwatch/internal/reconcile"
	"botwatch/pkg/utils"
)

// Settings are the operator-tunable parameters of a session.
type Settings struct {
	MaxLossLimit      float64
	Risk              config.RiskConfig
	DefaultStrategy   string
	DefaultInstrument string
	Lots              int
	StrikeGap         int
}

// SettingsFromConfig extracts the session settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MaxLossLimit:      cfg.Risk.MaxLossLimit,
		Risk:              cfg.Risk,
		DefaultStrategy:   cfg.Strategy.DefaultStrategy,
		DefaultInstrument: cfg.Strategy.DefaultInstrument,
		Lots:              cfg.Strategy.Lots,
		StrikeGap:         cfg.Strategy.StrikeGap,
	}
}

// Selection is the strategy the operator is about to run.
type Selection struct {
	Strategy   string `json:"strategy"`
	Instrument string `json:"instrument"`
	Expiry     string `json:"expiry"`
	Lots       int    `json:"lots"`
	StrikeGap  int    `json:"strikeGap"`
}

// Catalog is what the service offers for selection.
type Catalog struct {
	StrategyTypes []models.StrategyType `json:"strategyTypes"`
	Instruments   []models.Instrument   `json:"instruments"`
	Expiries      []string              `json:"expiries"`
}

// Dashboard is the reconciled state of one session.
type Dashboard struct {
	svc    broker.Reader
	log    logging.Sink
	logger zerolog.Logger
	retry  utils.RetryConfig

	mu       sync.RWMutex
	settings Settings
	catalog  Catalog
	profile  *models.UserProfile
	sel      Selection
	status   models.BotStatus
	latched  bool

	Strategies   *reconcile.Cell[[]models.StrategyPosition]
	Orders       *reconcile.Cell[[]models.Order]
	Positions    *reconcile.Cell[[]models.Position]
	Charges      *reconcile.Cell[[]models.OrderCharge]
	Monitoring   *reconcile.Cell[*models.MonitoringStatus]
	ServerStatus *reconcile.Cell[models.BotStatus]
	LTP          *reconcile.Cell[float64]
	Metrics      *reconcile.Cell[metrics.Result]
	Mode         *reconcile.Cell[*models.TradingModeStatus]
}

// New creates an empty dashboard reading from svc and reporting to log.
func New(svc broker.Reader, log logging.Sink, logger zerolog.Logger, settings Settings) *Dashboard {
	if settings.Lots < 1 {
		settings.Lots = 1
	}
	retry := utils.DefaultRetryConfig()
	retry.Retryable = func(err error) bool { return apperrors.Classify(err) == apperrors.KindTransient }

	d := &Dashboard{
		svc:      svc,
		log:      log,
		logger:   logging.WithOperation(logger, "dashboard"),
		retry:    retry,
		settings: settings,
		status:   models.BotInactive,
		sel:      Selection{Lots: settings.Lots},
	}
	d.initCells()
	return d
}

func (d *Dashboard) initCells() {
	d.Strategies = reconcile.NewCell([]models.StrategyPosition{}, models.StrategiesEqual)
	d.Orders = reconcile.NewCell([]models.Order{}, models.OrdersEqual)
	d.Positions = reconcile.NewCell([]models.Position{}, models.PositionsEqual)
	d.Charges = reconcile.NewCell([]models.OrderCharge{}, models.ChargesEqual)
	d.Monitoring = reconcile.NewCell[*models.MonitoringStatus](nil, models.MonitoringEqual)
	d.ServerStatus = reconcile.NewCell(models.BotStatus(""), func(a, b models.BotStatus) bool { return a == b })
	d.LTP = reconcile.NewCell(0.0, models.PriceEqual)
	d.Metrics = reconcile.NewCell(metrics.Result{}, metrics.Result.Equal)
	d.Mode = reconcile.NewCell[*models.TradingModeStatus](nil, modeEqual)

	d.ServerStatus.OnChange(func(s models.BotStatus) {
		d.logger.Info().Str("server_status", string(s)).Msg("Bot status changed")
	})
	d.Mode.OnChange(func(m *models.TradingModeStatus) {
		if m != nil {
			d.logger.Info().Str("mode", string(m.Mode)).Msg("Trading mode changed")
		}
	})
}

func modeEqual(a, b *models.TradingModeStatus) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Mode == b.Mode && a.PaperTradingEnabled == b.PaperTradingEnabled && a.Description == b.Description
}

// SetRetry overrides the retry policy of the catalog bootstrap.
func (d *Dashboard) SetRetry(cfg utils.RetryConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cfg.Retryable == nil {
		cfg.Retryable = d.retry.Retryable
	}
	d.retry = cfg
}

// LoadCatalog loads the strategy and instrument catalog, the user profile
// and the trading mode, then selects the default strategy and instrument.
func (d *Dashboard) LoadCatalog(ctx context.Context) error {
	d.log.Info("Loading configurations & user profile...")

	d.mu.RLock()
	retry := d.retry
	d.mu.RUnlock()

	var (
		types   []models.StrategyType
		insts   []models.Instrument
		profile *models.UserProfile
		mode    *models.TradingModeStatus
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		types, err = utils.RetryWithResult(gctx, retry, func() ([]models.StrategyType, error) {
			return d.svc.StrategyTypes(gctx)
		})
		return err
	})
	g.Go(func() (err error) {
		insts, err = utils.RetryWithResult(gctx, retry, func() ([]models.Instrument, error) {
			return d.svc.Instruments(gctx)
		})
		return err
	})
	g.Go(func() (err error) {
		profile, err = utils.RetryWithResult(gctx, retry, func() (*models.UserProfile, error) {
			return d.svc.Profile(gctx)
		})
		return err
	})
	g.Go(func() (err error) {
		mode, err = utils.RetryWithResult(gctx, retry, func() (*models.TradingModeStatus, error) {
			return d.svc.TradingMode(gctx)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		d.log.Error("Failed to load initial data: %s", apperrors.Message(err))
		return err
	}

	implemented := make([]models.StrategyType, 0, len(types))
	for _, t := range types {
		if t.Implemented {
			implemented = append(implemented, t)
		}
	}

	d.mu.Lock()
	d.catalog = Catalog{StrategyTypes: implemented, Instruments: insts}
	d.profile = profile
	d.sel.Strategy = pickDefault(d.settings.DefaultStrategy, len(implemented), func(i int) string { return implemented[i].Name })
	instrument := pickDefault(d.settings.DefaultInstrument, len(insts), func(i int) string { return insts[i].Code })
	d.mu.Unlock()
	d.Mode.Set(mode)

	name := ""
	if profile != nil {
		name = profile.UserName
	}
	d.log.Success("Welcome, %s. Configurations loaded.", name)

	if instrument == "" {
		d.log.Warning("No tradeable instruments available.")
		return nil
	}
	return d.SelectInstrument(ctx, instrument)
}

// pickDefault returns want if it is among the n names, else the first name.
func pickDefault(want string, n int, name func(int) string) string {
	for i := 0; i < n; i++ {
		if strings.EqualFold(name(i), want) {
			return name(i)
		}
	}
	if n == 0 {
		return ""
	}
	return name(0)
}

// SelectInstrument switches the selected instrument. The expiry, LTP and
// lot count are reset, and the strangle distance becomes the instrument's
// strike interval unless one is configured.
func (d *Dashboard) SelectInstrument(ctx context.Context, code string) error {
	inst, ok := d.instrument(code)
	if !ok {
		err := apperrors.NewValidationError("instrument", code, "unknown instrument "+code)
		d.log.Error("%s", err.Message)
		return err
	}

	d.mu.Lock()
	d.sel.Instrument = inst.Code
	d.sel.Expiry = ""
	d.sel.Lots = d.settings.Lots
	d.sel.StrikeGap = inst.StrikeInterval
	if d.settings.StrikeGap > 0 {
		d.sel.StrikeGap = d.settings.StrikeGap
	}
	d.catalog.Expiries = nil
	d.mu.Unlock()
	d.LTP.Reset(0)

	d.log.Info("Fetching expiries and latest price for %s...", inst.Code)

	fetched, err := d.svc.Expiries(ctx, inst.Code)
	if err != nil {
		d.log.Error("Failed to fetch expiries for %s: %s", inst.Code, apperrors.Message(err))
		return err
	}
	expiries := make([]string, 0, len(fetched))
	for _, e := range fetched {
		if e != "" {
			expiries = append(expiries, e)
		}
	}

	d.mu.Lock()
	d.catalog.Expiries = expiries
	if len(expiries) > 0 {
		d.sel.Expiry = expiries[0]
	}
	d.mu.Unlock()

	if len(expiries) > 0 {
		d.log.Success("Expiries loaded successfully for %s.", inst.Code)
	} else {
		d.log.Warning("Could not find any expiries for %s", inst.Code)
	}

	ltp, err := d.svc.LTP(ctx, inst.Name)
	if err != nil {
		d.log.Error("Failed to fetch latest price for %s: %s", inst.Code, apperrors.Message(err))
		return err
	}
	d.LTP.Set(ltp)
	return nil
}

func (d *Dashboard) instrument(code string) (models.Instrument, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, inst := range d.catalog.Instruments {
		if strings.EqualFold(inst.Code, code) {
			return inst, true
		}
	}
	return models.Instrument{}, false
}

// SelectedInstrument returns the catalog entry of the selected instrument.
func (d *Dashboard) SelectedInstrument() (models.Instrument, bool) {
	d.mu.RLock()
	code := d.sel.Instrument
	d.mu.RUnlock()
	if code == "" {
		return models.Instrument{}, false
	}
	return d.instrument(code)
}

// SelectStrategy selects an implemented strategy kind.
func (d *Dashboard) SelectStrategy(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.catalog.StrategyTypes {
		if strings.EqualFold(t.Name, name) {
			d.sel.Strategy = t.Name
			return nil
		}
	}
	return apperrors.NewValidationError("strategy", name, "unknown or unimplemented strategy "+name)
}

// SelectExpiry selects one of the loaded expiries.
func (d *Dashboard) SelectExpiry(expiry string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.catalog.Expiries {
		if e == expiry {
			d.sel.Expiry = e
			return nil
		}
	}
	return apperrors.NewValidationError("expiry", expiry, "expiry not available for "+d.sel.Instrument)
}

// SetLots sets the lot count.
func (d *Dashboard) SetLots(lots int) error {
	if lots < 1 {
		return apperrors.NewValidationError("lots", lots, "lots must be at least 1")
	}
	d.mu.Lock()
	d.sel.Lots = lots
	d.mu.Unlock()
	return nil
}

// IncrementLots adds one lot.
func (d *Dashboard) IncrementLots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sel.Lots++
	return d.sel.Lots
}

// DecrementLots removes one lot, never going below one.
func (d *Dashboard) DecrementLots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sel.Lots > 1 {
		d.sel.Lots--
	}
	return d.sel.Lots
}

// SetStrikeGap sets the strangle distance in points. Validation happens
// when a strategy is run.
func (d *Dashboard) SetStrikeGap(points int) {
	d.mu.Lock()
	d.sel.StrikeGap = points
	d.mu.Unlock()
}

// SetMaxLossLimit changes the max daily loss.
func (d *Dashboard) SetMaxLossLimit(limit float64) error {
	if limit <= 0 {
		return apperrors.NewValidationError("maxLossLimit", limit, "max loss limit must be positive")
	}
	d.mu.Lock()
	d.settings.MaxLossLimit = limit
	d.settings.Risk.MaxLossLimit = limit
	d.mu.Unlock()
	return nil
}

// Selection returns the current selection.
func (d *Dashboard) Selection() Selection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sel
}

// Catalog returns a copy of the loaded catalog.
func (d *Dashboard) Catalog() Catalog {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Catalog{
		StrategyTypes: append([]models.StrategyType(nil), d.catalog.StrategyTypes...),
		Instruments:   append([]models.Instrument(nil), d.catalog.Instruments...),
		Expiries:      append([]string(nil), d.catalog.Expiries...),
	}
}

// Profile returns the logged-in user, nil before LoadCatalog.
func (d *Dashboard) Profile() *models.UserProfile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.profile
}

// Settings returns the session settings.
func (d *Dashboard) Settings() Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings
}

// BotStatus returns the derived bot status.
func (d *Dashboard) BotStatus() models.BotStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// statusUpdate is the outcome of one recomputation.
type statusUpdate struct {
	result         metrics.Result
	previous       models.BotStatus
	status         models.BotStatus
	metricsChanged bool
	enteredMaxLoss bool
}

// recompute aggregates the held strategies and charges and derives the bot
// status from the held server report.
func (d *Dashboard) recompute() statusUpdate {
	d.mu.Lock()
	prev := d.status
	server := d.ServerStatus.Get()
	// Breach is judged against the current server report, latch included.
	effective := server
	if d.latched && server != models.BotStopped {
		effective = models.BotMaxLossReached
	}
	res := metrics.Aggregate(metrics.Input{
		Strategies:     d.Strategies.Get(),
		Charges:        d.Charges.Get(),
		MaxLossLimit:   d.settings.MaxLossLimit,
		PreviousStatus: effective,
	})
	status, latched := models.DeriveBotStatus(server, d.latched, res.GrossPL, d.settings.MaxLossLimit)
	d.status, d.latched = status, latched
	d.mu.Unlock()

	changed := d.Metrics.Set(res)
	return statusUpdate{
		result:         res,
		previous:       prev,
		status:         status,
		metricsChanged: changed,
		enteredMaxLoss: status == models.BotMaxLossReached && prev != models.BotMaxLossReached,
	}
}

// latchMaxLoss forces MAX_LOSS_REACHED until the server reports STOPPED.
func (d *Dashboard) latchMaxLoss() {
	d.mu.Lock()
	d.latched = true
	d.status = models.BotMaxLossReached
	d.mu.Unlock()
}

// markStopped applies the optimistic result of a successful stop-all. The
// next poll overrides it.
func (d *Dashboard) markStopped() {
	d.ServerStatus.Set(models.BotStopped)
	d.recompute()
}

// Reset clears every piece of session state. Used on logout.
func (d *Dashboard) Reset() {
	d.mu.Lock()
	d.catalog = Catalog{}
	d.profile = nil
	d.sel = Selection{Lots: d.settings.Lots}
	d.status = models.BotInactive
	d.latched = false
	d.mu.Unlock()

	d.Strategies.Reset([]models.StrategyPosition{})
	d.Orders.Reset([]models.Order{})
	d.Positions.Reset([]models.Position{})
	d.Charges.Reset([]models.OrderCharge{})
	d.Monitoring.Reset(nil)
	d.ServerStatus.Reset("")
	d.LTP.Reset(0)
	d.Metrics.Reset(metrics.Result{})
	d.Mode.Reset(nil)
}

// Snapshot returns the session figures for display.
func (d *Dashboard) Snapshot() models.PnLSnapshot {
	res := d.Metrics.Get()
	return models.PnLSnapshot{
		GrossPL:      res.GrossPL,
		TotalCharges: res.TotalCharges,
		NetPL:        res.NetPL,
		BotStatus:    d.BotStatus(),
	}
}
