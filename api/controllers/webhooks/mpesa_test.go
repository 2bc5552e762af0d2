package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stkpush-backend/internal/payments"
	"github.com/angelmondragon/stkpush-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stkpush-backend/pkg/errors"
)

const callbackBody = `{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok"}}}`

type stubReconciler struct {
	calls  int
	result *payments.ReconcileResult
	err    error
}

func (s *stubReconciler) Reconcile(ctx context.Context, raw []byte) (*payments.ReconcileResult, error) {
	s.calls++
	return s.result, s.err
}

type stubGuard struct {
	seen      map[string]bool
	forgotten int
	err       error
}

func newStubGuard() *stubGuard {
	return &stubGuard{seen: map[string]bool{}}
}

func (g *stubGuard) CheckAndMark(ctx context.Context, payload []byte) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	key := string(payload)
	if g.seen[key] {
		return true, nil
	}
	g.seen[key] = true
	return false, nil
}

func (g *stubGuard) Forget(ctx context.Context, payload []byte) error {
	g.forgotten++
	delete(g.seen, string(payload))
	return nil
}

func paidResult() *payments.ReconcileResult {
	id := uuid.New()
	return &payments.ReconcileResult{Outcome: enums.CallbackOutcomeApplied, IntentID: &id, Status: enums.PaymentStatusPaid}
}

func post(handler http.Handler, target, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func decodeAck(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body
}

func TestMPesaCallbackAcknowledgesApplied(t *testing.T) {
	svc := &stubReconciler{result: paidResult()}
	resp := post(MPesaCallback(svc, nil, "", nil), "/api/v1/webhooks/mpesa", callbackBody, nil)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, 1, svc.calls)
	ack := decodeAck(t, resp)
	require.EqualValues(t, 0, ack["ResultCode"])
	require.Equal(t, "Accepted", ack["ResultDesc"])
	require.NotContains(t, ack, "success")
}

func TestMPesaCallbackTokenCheck(t *testing.T) {
	svc := &stubReconciler{result: paidResult()}
	handler := MPesaCallback(svc, nil, "s3cret", nil)

	resp := post(handler, "/api/v1/webhooks/mpesa", callbackBody, nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = post(handler, "/api/v1/webhooks/mpesa", callbackBody, http.Header{"X-Callback-Token": {"wrong"}})
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	require.Zero(t, svc.calls)

	resp = post(handler, "/api/v1/webhooks/mpesa", callbackBody, http.Header{"X-Callback-Token": {"s3cret"}})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = post(handler, "/api/v1/webhooks/mpesa?token=s3cret", callbackBody, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, 2, svc.calls)
}

func TestMPesaCallbackMalformedPayload(t *testing.T) {
	guard := newStubGuard()
	svc := &stubReconciler{err: pkgerrors.Wrap(pkgerrors.CodeValidation, errors.New("missing stkCallback"), "invalid stk callback payload")}

	resp := post(MPesaCallback(svc, guard, "", nil), "/", `{"Body":{}}`, nil)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	ack := decodeAck(t, resp)
	require.EqualValues(t, 1, ack["ResultCode"])
	require.Equal(t, "invalid stk callback payload", ack["ResultDesc"])
	require.Equal(t, false, ack["success"])
	require.Equal(t, 1, guard.forgotten)
}

func TestMPesaCallbackEmptyBody(t *testing.T) {
	svc := &stubReconciler{}
	resp := post(MPesaCallback(svc, nil, "", nil), "/", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Zero(t, svc.calls)
}

func TestMPesaCallbackAcksInternalFailure(t *testing.T) {
	guard := newStubGuard()
	svc := &stubReconciler{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "lookup intent for callback")}
	handler := MPesaCallback(svc, guard, "", nil)

	resp := post(handler, "/", callbackBody, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.EqualValues(t, 0, decodeAck(t, resp)["ResultCode"])

	// forgotten deliveries reach the reconciler again on redelivery
	post(handler, "/", callbackBody, nil)
	require.Equal(t, 2, svc.calls)
}

func TestMPesaCallbackReplayShortCircuits(t *testing.T) {
	guard := newStubGuard()
	svc := &stubReconciler{result: paidResult()}
	handler := MPesaCallback(svc, guard, "", nil)

	first := post(handler, "/", callbackBody, nil)
	second := post(handler, "/", callbackBody, nil)

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, 1, svc.calls)
	require.Equal(t, "Accepted", decodeAck(t, second)["ResultDesc"])
}

func TestMPesaCallbackGuardFailureFallsThrough(t *testing.T) {
	guard := newStubGuard()
	guard.err = errors.New("redis down")
	svc := &stubReconciler{result: paidResult()}

	resp := post(MPesaCallback(svc, guard, "", nil), "/", callbackBody, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, 1, svc.calls)
}

func TestMPesaCallbackWithoutService(t *testing.T) {
	resp := post(MPesaCallback(nil, nil, "", nil), "/", callbackBody, nil)
	require.Equal(t, http.StatusInternalServerError, resp.Code)
}
