package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stkpush-backend/internal/entitlements"
	"github.com/angelmondragon/stkpush-backend/internal/intents"
	"github.com/angelmondragon/stkpush-backend/internal/users"
	"github.com/angelmondragon/stkpush-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stkpush-backend/pkg/db/models"
	"github.com/angelmondragon/stkpush-backend/pkg/enums"
	"github.com/angelmondragon/stkpush-backend/pkg/logger"
	"github.com/angelmondragon/stkpush-backend/pkg/mpesa"
)

type stubGateway struct {
	resp   *mpesa.STKPushResponse
	err    error
	calls  int32
	onPush func(ctx context.Context)
}

func (g *stubGateway) STKPush(ctx context.Context, _ mpesa.STKPushRequest) (*mpesa.STKPushResponse, error) {
	atomic.AddInt32(&g.calls, 1)
	if g.onPush != nil {
		g.onPush(ctx)
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.resp, nil
}

type countingGranter struct {
	inner *entitlements.Grantor
	calls int32
}

func (c *countingGranter) GrantForIntent(ctx context.Context, intent *models.PaymentIntent) entitlements.GrantResult {
	atomic.AddInt32(&c.calls, 1)
	return c.inner.GrantForIntent(ctx, intent)
}

type recordingObserver struct {
	mu         sync.Mutex
	failures   []string
	mismatches int
	grants     []entitlements.GrantResult
}

func (o *recordingObserver) SideEffectFailed(_ context.Context, effect string, _ uuid.UUID, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, effect)
}

func (o *recordingObserver) GrantCompleted(_ context.Context, _ uuid.UUID, result entitlements.GrantResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.grants = append(o.grants, result)
}

func (o *recordingObserver) AmountMismatch(context.Context, uuid.UUID, int64, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mismatches++
}

type failingInbox struct {
	intents.CallbackRepository
	err error
}

func (f failingInbox) Record(context.Context, *models.PaymentCallback) (*models.PaymentCallback, error) {
	return nil, f.err
}

type harness struct {
	db         *gorm.DB
	intents    intents.Repository
	callbacks  intents.CallbackRepository
	users      *users.Repository
	gateway    *stubGateway
	granter    *countingGranter
	observer   *recordingObserver
	reconciler *Reconciler
	initiator  *Initiator
	logg       *logger.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard})

	h := &harness{
		db:        conn,
		intents:   intents.NewRepository(conn),
		callbacks: intents.NewCallbackRepository(conn),
		users:     users.NewRepository(conn),
		gateway: &stubGateway{resp: &mpesa.STKPushResponse{
			MerchantRequestID: "29115-34620561-1",
			CheckoutRequestID: "ABC123",
			ResponseCode:      "0",
			CustomerMessage:   "Success. Request accepted for processing",
		}},
		observer: &recordingObserver{},
		logg:     logg,
	}

	grantor, err := entitlements.NewGrantor(h.users, h.intents)
	require.NoError(t, err)
	h.granter = &countingGranter{inner: grantor}

	h.reconciler, err = NewReconciler(ReconcilerParams{
		Intents:   h.intents,
		Callbacks: h.callbacks,
		Granter:   h.granter,
		Observer:  h.observer,
		Logger:    logg,
	})
	require.NoError(t, err)

	h.initiator, err = NewInitiator(InitiatorParams{
		Intents:    h.intents,
		Gateway:    h.gateway,
		Reconciler: h.reconciler,
		Observer:   h.observer,
		Logger:     logg,
		MaxAmount:  250000,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) seedUser(t *testing.T, tier enums.SubscriptionTier) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, h.db.Create(&models.User{ID: id, SubscriptionTier: tier, EntitlementSchemaVersion: 2}).Error)
	return id
}

func (h *harness) countIntents(t *testing.T, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := h.db.Model(&models.PaymentIntent{})
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func (h *harness) grants() int32 {
	return atomic.LoadInt32(&h.granter.calls)
}

func callbackPayload(checkoutID string, resultCode int, amount int64) []byte {
	if resultCode != 0 {
		return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":%q,"ResultCode":%d,"ResultDesc":"Request cancelled by user"}}}`, checkoutID, resultCode))
	}
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":%q,"ResultCode":0,"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[{"Name":"Amount","Value":%d},{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},{"Name":"TransactionDate","Value":20260301120000},{"Name":"PhoneNumber","Value":254712345678}]}}}}`, checkoutID, amount))
}

var errTransport = errors.New("dial tcp: i/o timeout")
