package broker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "botwatch/internal/errors"
	"botwatch/internal/models"
)

type capturedRequest struct {
	Method      string
	Path        string
	Query       string
	Header      http.Header
	Body        string
	ContentType string
}

type fakeServer struct {
	mu       sync.Mutex
	requests []capturedRequest
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeServer(t *testing.T) (*fakeServer, *Client) {
	t.Helper()
	fs := &fakeServer{routes: make(map[string]func(http.ResponseWriter, *http.Request))}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fs.mu.Lock()
		fs.requests = append(fs.requests, capturedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			Query:       r.URL.RawQuery,
			Header:      r.Header.Clone(),
			Body:        string(body),
			ContentType: r.Header.Get("Content-Type"),
		})
		handler := fs.routes[r.Method+" "+r.URL.Path]
		fs.mu.Unlock()
		if handler == nil {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"message":"no route"}`))
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{
		BaseURL: srv.URL + "/api",
		Token:   "jwt-token-123456",
		UserID:  "AB1234",
		Timeout: 2 * time.Second,
		Logger:  zerolog.Nop(),
	})
	return fs, client
}

func (fs *fakeServer) handle(method, path string, status int, body string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.routes[method+" /api"+path] = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (fs *fakeServer) last() capturedRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.requests[len(fs.requests)-1]
}

func TestClient_DecodesEnvelopeAndSetsHeaders(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.handle(http.MethodGet, "/strategies/active", http.StatusOK, `{
		"success": true,
		"data": [{
			"executionId": "exec-1",
			"strategyType": "ATM_STRADDLE",
			"instrumentType": "NIFTY",
			"status": "COMPLETED",
			"profitLoss": null,
			"orderLegs": [
				{"orderId": "o1", "tradingSymbol": "NIFTY24NOV24350CE", "quantity": 75, "realizedPnl": 100},
				{"orderId": "o2", "tradingSymbol": "NIFTY24NOV24350PE", "quantity": 75, "realizedPnl": -20}
			]
		}]
	}`)

	strategies, err := client.ActiveStrategies(context.Background())
	require.NoError(t, err)
	require.Len(t, strategies, 1)
	assert.Nil(t, strategies[0].ProfitLoss)
	pnl, ok := strategies[0].RealizedPnL()
	assert.True(t, ok)
	assert.Equal(t, 80.0, pnl)

	req := fs.last()
	assert.Equal(t, "Bearer jwt-token-123456", req.Header.Get("Authorization"))
	assert.Equal(t, "AB1234", req.Header.Get("X-User-Id"))
	assert.Empty(t, req.ContentType, "GET requests carry no Content-Type")
	_, err = uuid.Parse(req.Header.Get("X-Request-Id"))
	assert.NoError(t, err)
}

func TestClient_PostSendsJSONBody(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.handle(http.MethodPost, "/strategies/execute", http.StatusOK,
		`{"success":true,"data":{"executionId":"exec-9","status":"ACTIVE","message":"Strategy executed"}}`)

	gap := 100
	res, err := client.ExecuteStrategy(context.Background(), models.ExecuteRequest{
		StrategyType:   models.StrategyOTMStrangle,
		InstrumentType: "NIFTY",
		Expiry:         "WEEKLY",
		Lots:           2,
		MaxLossLimit:   3000,
		StopLossPoints: models.Float(10),
		TargetPoints:   models.Float(15),
		StrikeGap:      &gap,
	})
	require.NoError(t, err)
	assert.Equal(t, "exec-9", res.ExecutionID)
	assert.Equal(t, "Strategy executed", res.Message)

	req := fs.last()
	assert.Equal(t, "application/json", req.ContentType)
	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(req.Body), &sent))
	assert.Equal(t, float64(100), sent["strikeGap"])
	assert.Equal(t, float64(10), sent["stopLossPoints"])
	assert.NotContains(t, sent, "stopLossPercent")
}

func TestClient_UnauthorizedIsSessionExpired(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.handle(http.MethodGet, "/orders", http.StatusUnauthorized, `{"success":false,"message":"Token expired"}`)

	_, err := client.Orders(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSessionExpired)
	assert.True(t, apperrors.IsUnauthorized(err))
	assert.Equal(t, apperrors.KindAuth, apperrors.Classify(err))
	assert.Equal(t, "Unauthorized", apperrors.Message(err))
}

func TestClient_SuccessFalseIsAPIError(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.handle(http.MethodGet, "/orders/charges", http.StatusOK, `{"success":false,"message":"Charges unavailable"}`)

	_, err := client.OrderCharges(context.Background())
	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Charges unavailable", apiErr.Message)
	assert.Equal(t, apperrors.KindTransient, apperrors.Classify(err))
	assert.False(t, apperrors.IsUnauthorized(err))
}

func TestClient_NoContentIsNoData(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.handle(http.MethodDelete, "/monitoring/exec-1", http.StatusNoContent, "")
	fs.handle(http.MethodPost, "/auth/logout", http.StatusOK, "")

	msg, err := client.StopMonitoring(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "Stopped monitoring for exec-1", msg)

	require.NoError(t, client.Logout(context.Background()))
	assert.False(t, client.HasCredentials())
}

func TestClient_PositionsPreferDayThenNet(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.handle(http.MethodGet, "/portfolio/positions", http.StatusOK, `{"success":true,"data":{
		"net": [{"tradingSymbol":"A","exchange":"NFO","product":"MIS","netQuantity":-75}],
		"day": []
	}}`)

	positions, err := client.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "A", positions[0].TradingSymbol)

	fs.handle(http.MethodGet, "/portfolio/positions", http.StatusOK, `{"success":true,"data":{
		"net": [{"tradingSymbol":"A"}],
		"day": [{"tradingSymbol":"B"},{"tradingSymbol":"C"}]
	}}`)
	positions, err = client.Positions(context.Background())
	require.NoError(t, err)
	assert.Len(t, positions, 2)

	fs.handle(http.MethodGet, "/portfolio/positions", http.StatusNoContent, "")
	positions, err = client.Positions(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, positions)
	assert.Empty(t, positions)
}

func TestClient_LTPByQualifiedKey(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.handle(http.MethodGet, "/market/ltp", http.StatusOK,
		`{"success":true,"data":{"NSE:NIFTY 50":{"lastPrice":24350.15}}}`)

	ltp, err := client.LTP(context.Background(), "NIFTY 50")
	require.NoError(t, err)
	assert.Equal(t, 24350.15, ltp)
	assert.Equal(t, "symbols=NSE%3ANIFTY+50", fs.last().Query)

	fs.handle(http.MethodGet, "/market/ltp", http.StatusOK, `{"success":true,"data":{}}`)
	ltp, err = client.LTP(context.Background(), "NIFTY 50")
	require.NoError(t, err)
	assert.Equal(t, 0.0, ltp)
}

func TestClient_SetTradingModeQuery(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.handle(http.MethodPost, "/paper-trading/mode", http.StatusOK,
		`{"success":true,"data":{"paperTradingEnabled":false,"mode":"LIVE_TRADING","description":"Live"}}`)

	status, err := client.SetTradingMode(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.LiveTrading, status.Mode)
	assert.Equal(t, "paperTradingEnabled=false", fs.last().Query)
	assert.Empty(t, fs.last().ContentType)
}

func TestClient_RejectsUnsafeExecutionID(t *testing.T) {
	fs, client := newFakeServer(t)

	_, err := client.StopMonitoring(context.Background(), "../strategies/stop-all")
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
	fs.mu.Lock()
	assert.Empty(t, fs.requests, "no request is sent for invalid input")
	fs.mu.Unlock()
}

func TestClient_ConnectionFailure(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1/api", Timeout: time.Second, Logger: zerolog.Nop()})

	_, err := client.BotStatus(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindTransient, apperrors.Classify(err))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Fetching order charges", Describe(http.MethodGet, "/orders/charges"))
	assert.Equal(t, "Fetching orders", Describe(http.MethodGet, "/orders"))
	assert.Equal(t, "Stopping monitor", Describe(http.MethodDelete, "/monitoring/exec-1"))
	assert.Equal(t, "API call to /unknown", Describe(http.MethodGet, "/unknown"))
}
