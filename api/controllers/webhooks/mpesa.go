package webhooks

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/stkpush-backend/api/responses"
	"github.com/angelmondragon/stkpush-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/stkpush-backend/pkg/errors"
	"github.com/angelmondragon/stkpush-backend/pkg/logger"
)

const (
	callbackTokenHeader = "X-Callback-Token"
	callbackTokenQuery  = "token"
	maxCallbackBytes    = 64 << 10
)

type MPesaCallbackService interface {
	Reconcile(ctx context.Context, raw []byte) (*payments.ReconcileResult, error)
}

// MPesaReplayGuard short-circuits byte-identical re-deliveries.
type MPesaReplayGuard interface {
	CheckAndMark(ctx context.Context, payload []byte) (bool, error)
	Forget(ctx context.Context, payload []byte) error
}

type callbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
	Success    *bool  `json:"success,omitempty"`
}

func accepted() callbackAck {
	return callbackAck{ResultCode: 0, ResultDesc: "Accepted"}
}

func rejected(desc string) callbackAck {
	success := false
	return callbackAck{ResultCode: 1, ResultDesc: desc, Success: &success}
}

// MPesaCallback receives Daraja STK callbacks. Anything the gateway cannot fix by
// retrying is acknowledged; only a malformed body is answered with 400.
// guard may be nil, in which case every delivery reaches the reconciler.
func MPesaCallback(svc MPesaCallbackService, guard MPesaReplayGuard, token string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "callback service unavailable"))
			return
		}

		if token != "" && !validCallbackToken(r, token) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid callback token"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}
		if len(payload) == 0 {
			responses.WriteJSON(w, http.StatusBadRequest, rejected("empty callback payload"))
			return
		}

		if guard != nil {
			seen, err := guard.CheckAndMark(ctx, payload)
			switch {
			case err != nil:
				if logg != nil {
					logg.Error(ctx, "mpesa callback replay check failed", err)
				}
			case seen:
				if logg != nil {
					logg.Info(ctx, "mpesa callback replay acknowledged")
				}
				responses.WriteJSON(w, http.StatusOK, accepted())
				return
			}
		}

		result, err := svc.Reconcile(ctx, payload)
		if err != nil {
			if guard != nil {
				_ = guard.Forget(ctx, payload)
			}
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeValidation {
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "mpesa callback rejected")
				}
				responses.WriteJSON(w, http.StatusBadRequest, rejected(typed.Message()))
				return
			}
			if logg != nil {
				logg.Error(ctx, "mpesa callback processing failed", err)
			}
			responses.WriteJSON(w, http.StatusOK, accepted())
			return
		}

		if logg != nil {
			fields := map[string]any{
				"outcome": result.Outcome.String(),
				"status":  result.Status.String(),
			}
			if result.IntentID != nil {
				fields["intent_id"] = result.IntentID.String()
			}
			logg.Info(logg.WithFields(ctx, fields), "mpesa callback processed")
		}
		responses.WriteJSON(w, http.StatusOK, accepted())
	}
}

func validCallbackToken(r *http.Request, want string) bool {
	got := strings.TrimSpace(r.Header.Get(callbackTokenHeader))
	if got == "" {
		got = strings.TrimSpace(r.URL.Query().Get(callbackTokenQuery))
	}
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
