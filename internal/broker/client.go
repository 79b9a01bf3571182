package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	apperrors "botwatch/internal/errors"
	"botwatch/internal/logging"
	"botwatch/internal/models"
	"botwatch/internal/security"
)

const maxResponseBytes = 8 << 20

// ClientConfig holds configuration for the HTTP trading service client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. "http://localhost:8080/api".
	BaseURL string
	Token   string
	UserID  string
	Timeout time.Duration
	// RateLimit is the sustained requests per second; 0 disables limiting.
	RateLimit float64
	RateBurst int
	Logger    zerolog.Logger
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the remote bot service over its JSON envelope API.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu     sync.RWMutex
	token  string
	userID string
}

var _ TradingService = (*Client)(nil)

// NewClient creates a new trading service client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	burst := cfg.RateBurst
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
	}

	logger := cfg.Logger.With().Str("component", "trading_client").Logger()
	logger.Debug().
		Str("base_url", cfg.BaseURL).
		Str("user_id", cfg.UserID).
		Str("token", security.MaskCredential(cfg.Token)).
		Msg("Trading service client configured")

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		token:   cfg.Token,
		userID:  cfg.UserID,
	}
}

// SetCredentials replaces the session credentials.
func (c *Client) SetCredentials(token, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.userID = userID
}

// ClearCredentials drops the session credentials.
func (c *Client) ClearCredentials() {
	c.SetCredentials("", "")
}

// HasCredentials reports whether a session token is configured.
func (c *Client) HasCredentials() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

func (c *Client) credentials() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.userID
}

// do performs one API call and returns the envelope's data field. A missing
// data field (204, empty body, or no "data" key) yields a zero Result.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) (gjson.Result, error) {
	requestID := uuid.NewString()
	start := time.Now()
	logger := logging.WithOperation(c.logger, Describe(method, path))

	data, err := c.roundTrip(ctx, method, path, query, body, requestID)
	logging.LogAPICall(logger, method, path, requestID, time.Since(start), err)
	return data, err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body interface{}, requestID string) (gjson.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, fmt.Errorf("rate limiter: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}

	token, userID := c.credentials()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	// Some backends reject GETs that carry a Content-Type.
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, transportError(method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, transportError(method, path, err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		if !ok {
			return gjson.Result{}, statusError(method, path, resp.StatusCode, "")
		}
		return gjson.Result{}, nil
	}

	if !gjson.ValidBytes(raw) {
		if !ok {
			return gjson.Result{}, statusError(method, path, resp.StatusCode, "")
		}
		return gjson.Result{}, apperrors.NewDataError(Describe(method, path), "response is not valid JSON", nil)
	}

	envelope := gjson.ParseBytes(raw)
	success := envelope.Get("success")
	if !ok || (success.Exists() && !success.Bool()) {
		return gjson.Result{}, statusError(method, path, resp.StatusCode, envelope.Get("message").String())
	}

	return envelope.Get("data"), nil
}

func statusError(method, path string, status int, message string) error {
	if message == "" {
		message = fmt.Sprintf("HTTP error! status: %d", status)
	}
	var cause error
	if status == http.StatusUnauthorized {
		cause = apperrors.ErrSessionExpired
	}
	return apperrors.NewAPIError(method, path, status, security.MaskSensitive(message), cause)
}

func transportError(method, path string, err error) error {
	sentinel := apperrors.ErrConnectionFailed
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		sentinel = apperrors.ErrTimeout
	}
	return fmt.Errorf("%w: %s %s: %s", sentinel, method, path, security.MaskSensitive(err.Error()))
}

func decodeList[T any](what string, data gjson.Result) ([]T, error) {
	if !data.Exists() || data.Type == gjson.Null {
		return []T{}, nil
	}
	var out []T
	if err := json.Unmarshal([]byte(data.Raw), &out); err != nil {
		return nil, apperrors.NewDataError(what, "unexpected response shape", err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func decodeObject[T any](what string, data gjson.Result) (*T, error) {
	if !data.Exists() || data.Type == gjson.Null {
		return nil, nil
	}
	var out T
	if err := json.Unmarshal([]byte(data.Raw), &out); err != nil {
		return nil, apperrors.NewDataError(what, "unexpected response shape", err)
	}
	return &out, nil
}

// dataMessage extracts a human-readable message from a write response, which
// is either a bare string or an object with a message field.
func dataMessage(data gjson.Result, fallback string) string {
	switch {
	case data.Type == gjson.String && data.String() != "":
		return data.String()
	case data.IsObject() && data.Get("message").String() != "":
		return data.Get("message").String()
	default:
		return fallback
	}
}

// ActiveStrategies fetches every execution of the current session.
func (c *Client) ActiveStrategies(ctx context.Context) ([]models.StrategyPosition, error) {
	data, err := c.do(ctx, http.MethodGet, pathActiveStrategies, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[models.StrategyPosition]("strategies", data)
}

// MonitoringStatus fetches the leg monitor state.
func (c *Client) MonitoringStatus(ctx context.Context) (*models.MonitoringStatus, error) {
	data, err := c.do(ctx, http.MethodGet, pathMonitoringStatus, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeObject[models.MonitoringStatus]("monitoring", data)
}

// Positions fetches positions, preferring the day list over net.
func (c *Client) Positions(ctx context.Context) ([]models.Position, error) {
	data, err := c.do(ctx, http.MethodGet, pathPositions, nil, nil)
	if err != nil {
		return nil, err
	}
	book, err := decodeObject[models.PositionBook]("positions", data)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return []models.Position{}, nil
	}
	return book.Preferred(), nil
}

// Orders fetches the order book.
func (c *Client) Orders(ctx context.Context) ([]models.Order, error) {
	data, err := c.do(ctx, http.MethodGet, pathOrders, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[models.Order]("orders", data)
}

// OrderCharges fetches per-order charge records.
func (c *Client) OrderCharges(ctx context.Context) ([]models.OrderCharge, error) {
	data, err := c.do(ctx, http.MethodGet, pathCharges, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[models.OrderCharge]("charges", data)
}

// BotStatus fetches the server-side run state.
func (c *Client) BotStatus(ctx context.Context) (*models.BotStatusResponse, error) {
	data, err := c.do(ctx, http.MethodGet, pathBotStatus, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeObject[models.BotStatusResponse]("bot status", data)
}

// LTP fetches the last traded price of an index by display name. An
// unexpected payload yields 0 rather than an error.
func (c *Client) LTP(ctx context.Context, instrumentName string) (float64, error) {
	key := models.Instrument{Name: instrumentName}.LTPKey()
	data, err := c.do(ctx, http.MethodGet, pathLTP, url.Values{"symbols": {key}}, nil)
	if err != nil {
		return 0, err
	}

	price, found := 0.0, false
	data.ForEach(func(k, v gjson.Result) bool {
		if k.String() != key {
			return true
		}
		if lp := v.Get("lastPrice"); lp.Type == gjson.Number {
			price, found = lp.Float(), true
		}
		return false
	})
	if !found {
		c.logger.Warn().Str("symbol", key).Str("payload", data.Raw).Msg("Unexpected LTP response structure")
	}
	return price, nil
}

// StrategyTypes fetches the strategy catalog.
func (c *Client) StrategyTypes(ctx context.Context) ([]models.StrategyType, error) {
	data, err := c.do(ctx, http.MethodGet, pathStrategyTypes, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[models.StrategyType]("strategy types", data)
}

// Instruments fetches the tradeable instrument catalog.
func (c *Client) Instruments(ctx context.Context) ([]models.Instrument, error) {
	data, err := c.do(ctx, http.MethodGet, pathInstruments, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[models.Instrument]("instruments", data)
}

// Expiries fetches the available expiries for an instrument code.
func (c *Client) Expiries(ctx context.Context, instrumentCode string) ([]string, error) {
	if err := security.ValidateInstrumentCode(instrumentCode); err != nil {
		return nil, err
	}
	data, err := c.do(ctx, http.MethodGet, pathExpiries+url.PathEscape(instrumentCode), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[string]("expiries", data)
}

// TradingMode fetches whether the bot trades on paper or live.
func (c *Client) TradingMode(ctx context.Context) (*models.TradingModeStatus, error) {
	data, err := c.do(ctx, http.MethodGet, pathModeStatus, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeObject[models.TradingModeStatus]("trading mode", data)
}

// SetTradingMode switches between paper and live trading.
func (c *Client) SetTradingMode(ctx context.Context, paper bool) (*models.TradingModeStatus, error) {
	query := url.Values{"paperTradingEnabled": {strconv.FormatBool(paper)}}
	data, err := c.do(ctx, http.MethodPost, pathMode, query, nil)
	if err != nil {
		return nil, err
	}
	return decodeObject[models.TradingModeStatus]("trading mode", data)
}

// Profile fetches the logged-in user.
func (c *Client) Profile(ctx context.Context) (*models.UserProfile, error) {
	data, err := c.do(ctx, http.MethodGet, pathProfile, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeObject[models.UserProfile]("profile", data)
}

// Logout ends the server session. Local credentials are cleared even when
// the call fails.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, pathLogout, nil, nil)
	c.ClearCredentials()
	return err
}

// ExecuteStrategy starts a strategy execution.
func (c *Client) ExecuteStrategy(ctx context.Context, req models.ExecuteRequest) (*models.ExecuteResult, error) {
	data, err := c.do(ctx, http.MethodPost, pathExecute, nil, req)
	if err != nil {
		return nil, err
	}
	res := &models.ExecuteResult{}
	if data.IsObject() {
		if err := json.Unmarshal([]byte(data.Raw), res); err != nil {
			return nil, apperrors.NewDataError("execute", "unexpected response shape", err)
		}
	}
	res.Message = dataMessage(data, res.Message)
	return res, nil
}

// ExecuteHistorical replays a strategy over historical data.
func (c *Client) ExecuteHistorical(ctx context.Context, req models.ExecuteRequest) (*models.HistoricalRunResult, error) {
	data, err := c.do(ctx, http.MethodPost, pathHistorical, nil, req)
	if err != nil {
		return nil, err
	}
	res, err := decodeObject[models.HistoricalRunResult]("historical", data)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &models.HistoricalRunResult{}, nil
	}
	return res, nil
}

// StopMonitoring stops the leg monitor of one execution.
func (c *Client) StopMonitoring(ctx context.Context, executionID string) (string, error) {
	if err := security.ValidateExecutionID(executionID); err != nil {
		return "", err
	}
	data, err := c.do(ctx, http.MethodDelete, pathMonitoring+url.PathEscape(executionID), nil, nil)
	if err != nil {
		return "", err
	}
	return dataMessage(data, "Stopped monitoring for "+executionID), nil
}

// StopAll stops every running strategy. Open positions are not closed.
func (c *Client) StopAll(ctx context.Context) (string, error) {
	data, err := c.do(ctx, http.MethodDelete, pathStopAll, nil, nil)
	if err != nil {
		return "", err
	}
	return dataMessage(data, "All strategies stopped."), nil
}
