package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/stkpush-backend/api/middleware"
	"github.com/angelmondragon/stkpush-backend/api/responses"
	"github.com/angelmondragon/stkpush-backend/api/validators"
	"github.com/angelmondragon/stkpush-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/stkpush-backend/pkg/errors"
	"github.com/angelmondragon/stkpush-backend/pkg/logger"
	"github.com/google/uuid"
)

type paymentInitiator interface {
	Initiate(ctx context.Context, in payments.InitiateInput) (*payments.InitiateResult, error)
}

type paymentStatusResolver interface {
	Status(ctx context.Context, intentID uuid.UUID) (*payments.StatusView, error)
}

type initiatePaymentRequest struct {
	Amount      json.Number `json:"amount" validate:"required"`
	Phone       string      `json:"phone" validate:"required"`
	Tier        string      `json:"tier" validate:"required"`
	ProductID   *uuid.UUID  `json:"productId"`
	AccountRef  string      `json:"accountRef"`
	Description string      `json:"description"`
	ChargeMode  string      `json:"chargeMode" validate:"omitempty,oneof=paybill till"`
}

type initiatePaymentResponse struct {
	IntentID          uuid.UUID `json:"intentId"`
	CheckoutRequestID string    `json:"checkoutRequestId"`
	MerchantRequestID string    `json:"merchantRequestId,omitempty"`
	Message           string    `json:"message"`
}

type paymentStatusResponse struct {
	IntentID          uuid.UUID  `json:"intentId"`
	Status            string     `json:"status"`
	Message           string     `json:"message"`
	CheckoutRequestID *string    `json:"checkoutRequestId,omitempty"`
	Receipt           *string    `json:"receipt,omitempty"`
	PaidAt            *time.Time `json:"paidAt,omitempty"`
}

// InitiatePayment starts an STK push. The bearer identity, when present, is the
// user the paid tier is granted to.
func InitiatePayment(svc paymentInitiator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment initiator unavailable"))
			return
		}

		var req initiatePaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var userID *uuid.UUID
		if id, ok := middleware.UserIDFromContext(r.Context()); ok {
			userID = &id
		}

		result, err := svc.Initiate(r.Context(), payments.InitiateInput{
			Amount:      strings.TrimSpace(req.Amount.String()),
			Phone:       req.Phone,
			Tier:        req.Tier,
			UserID:      userID,
			ProductID:   req.ProductID,
			AccountRef:  req.AccountRef,
			Description: req.Description,
			ChargeMode:  req.ChargeMode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		message := result.ProviderMessage
		if message == "" {
			message = "STK push sent"
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, initiatePaymentResponse{
			IntentID:          result.IntentID,
			CheckoutRequestID: result.CheckoutRequestID,
			MerchantRequestID: result.MerchantRequestID,
			Message:           message,
		})
	}
}

func PaymentStatus(svc paymentStatusResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment status unavailable"))
			return
		}

		intentID, err := validators.ParseUUIDParam(r, "intentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Status(r.Context(), intentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, paymentStatusResponse{
			IntentID:          view.IntentID,
			Status:            view.Status.String(),
			Message:           view.Message,
			CheckoutRequestID: view.CheckoutRequestID,
			Receipt:           view.Receipt,
			PaidAt:            view.PaidAt,
		})
	}
}
