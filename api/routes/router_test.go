package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stkpush-backend/internal/payments"
	"github.com/angelmondragon/stkpush-backend/pkg/auth"
	"github.com/angelmondragon/stkpush-backend/pkg/config"
	"github.com/angelmondragon/stkpush-backend/pkg/enums"
	"github.com/angelmondragon/stkpush-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memStore struct {
	mu       sync.Mutex
	data     map[string]string
	counters map[string]int64
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}, counters: map[string]int64{}}
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

type countingInitiator struct {
	calls int
	last  payments.InitiateInput
}

func (c *countingInitiator) Initiate(_ context.Context, in payments.InitiateInput) (*payments.InitiateResult, error) {
	c.calls++
	c.last = in
	return &payments.InitiateResult{IntentID: uuid.New(), CheckoutRequestID: "ws_CO_router", ProviderMessage: "accepted"}, nil
}

type fixedStatus struct{}

func (fixedStatus) Status(_ context.Context, intentID uuid.UUID) (*payments.StatusView, error) {
	return &payments.StatusView{IntentID: intentID, Status: enums.ClientPaymentStatusPending, Message: "Waiting for payment"}, nil
}

type ackReconciler struct{ calls int }

func (a *ackReconciler) Reconcile(context.Context, []byte) (*payments.ReconcileResult, error) {
	a.calls++
	return &payments.ReconcileResult{Outcome: enums.CallbackOutcomeParked}, nil
}

type harness struct {
	handler    http.Handler
	initiator  *countingInitiator
	reconciler *ackReconciler
	cfg        *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Env: "dev", CORSOrigins: []string{"http://localhost:3000"}},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "identity"},
		MPesa: config.MPesaConfig{
			CallbackToken: "cb-token",
		},
		Payments: config.PaymentsConfig{
			InitiateRateWindow: time.Minute,
			InitiateIPLimit:    30,
			InitiatePhoneLimit: 2,
		},
	}
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "router_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	h := &harness{initiator: &countingInitiator{}, reconciler: &ackReconciler{}, cfg: cfg}
	h.handler = NewRouter(RouterParams{
		Config:     cfg,
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:         stubPinger{},
		Redis:      stubPinger{},
		Store:      newMemStore(),
		Initiator:  h.initiator,
		Status:     fixedStatus{},
		Reconciler: h.reconciler,
		Gatherer:   registry,
	})
	return h
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, req)
	return resp
}

func initiate(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/stk-push", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestHealthRoutes(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.do(httptest.NewRequest(http.MethodGet, "/health/live", nil)).Code)
	require.Equal(t, http.StatusOK, h.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil)).Code)
}

func TestMetricsRoute(t *testing.T) {
	h := newHarness(t)
	resp := h.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "router_test_total 1")
}

func TestInitiateRequiresIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	resp := h.do(initiate("", `{"amount":10,"phone":"0712345678","tier":"basic"}`))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Zero(t, h.initiator.calls)
}

func TestInitiateReplaysByIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	body := `{"amount":10,"phone":"0712345678","tier":"basic"}`

	first := h.do(initiate("key-1", body))
	require.Equal(t, http.StatusCreated, first.Code)
	require.Contains(t, first.Body.String(), "ws_CO_router")

	second := h.do(initiate("key-1", body))
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, h.initiator.calls)
}

func TestInitiateRateLimitsPerPhone(t *testing.T) {
	h := newHarness(t)
	body := `{"amount":10,"phone":"0712345678","tier":"basic"}`

	require.Equal(t, http.StatusCreated, h.do(initiate("a", body)).Code)
	require.Equal(t, http.StatusCreated, h.do(initiate("b", body)).Code)
	resp := h.do(initiate("c", body))
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	require.Equal(t, 2, h.initiator.calls)
}

func TestInitiateAttachesBearerIdentity(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	token, err := auth.MintAccessToken(h.cfg.JWT, time.Now(), time.Hour, userID)
	require.NoError(t, err)

	req := initiate("key-auth", `{"amount":10,"phone":"0712345678","tier":"basic"}`)
	req.Header.Set("Authorization", "Bearer "+token)
	require.Equal(t, http.StatusCreated, h.do(req).Code)
	require.NotNil(t, h.initiator.last.UserID)
	require.Equal(t, userID, *h.initiator.last.UserID)

	bad := initiate("key-bad", `{"amount":10,"phone":"0712345678","tier":"basic"}`)
	bad.Header.Set("Authorization", "Bearer nonsense")
	require.Equal(t, http.StatusUnauthorized, h.do(bad).Code)
}

func TestStatusRoute(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()
	resp := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+id.String()+"/status", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"status":"PENDING"`)
	require.Contains(t, resp.Body.String(), id.String())
}

func TestMPesaWebhookRoute(t *testing.T) {
	h := newHarness(t)
	body := `{"Body":{"stkCallback":{"MerchantRequestID":"m","CheckoutRequestID":"c","ResultCode":1032,"ResultDesc":"cancelled"}}}`

	resp := h.do(httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mpesa", strings.NewReader(body)))
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = h.do(httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mpesa?token=cb-token", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, resp.Body.String())
	require.Equal(t, 1, h.reconciler.calls)
}
