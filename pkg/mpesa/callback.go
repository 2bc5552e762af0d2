package mpesa

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Metadata item names sent in CallbackMetadata.Item.
const (
	ItemAmount          = "Amount"
	ItemReceiptNumber   = "MpesaReceiptNumber"
	ItemTransactionDate = "TransactionDate"
	ItemPhoneNumber     = "PhoneNumber"
)

// ErrMalformedCallback marks a payload this service cannot process at all.
var ErrMalformedCallback = errors.New("malformed stk callback")

type callbackEnvelope struct {
	Body struct {
		STKCallback *struct {
			MerchantRequestID string          `json:"MerchantRequestID"`
			CheckoutRequestID string          `json:"CheckoutRequestID"`
			ResultCode        json.Number     `json:"ResultCode"`
			ResultDesc        string          `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// Callback is the parsed result of an STK push callback.
type Callback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string

	// Populated from metadata when present (successful payments only).
	Amount          *decimal.Decimal
	ReceiptNumber   string
	TransactionDate *time.Time
	PhoneNumber     string
}

// Succeeded reports whether the payer completed the charge.
func (c Callback) Succeeded() bool {
	return c.ResultCode == 0
}

// ParseCallback decodes the Daraja callback envelope. Payloads that are not JSON or
// carry neither correlation id return ErrMalformedCallback.
func ParseCallback(raw []byte) (*Callback, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var env callbackEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	stk := env.Body.STKCallback
	if stk == nil {
		return nil, fmt.Errorf("%w: missing Body.stkCallback", ErrMalformedCallback)
	}

	cb := &Callback{
		MerchantRequestID: strings.TrimSpace(stk.MerchantRequestID),
		CheckoutRequestID: strings.TrimSpace(stk.CheckoutRequestID),
		ResultDesc:        stk.ResultDesc,
	}
	if cb.MerchantRequestID == "" && cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: missing correlation ids", ErrMalformedCallback)
	}

	code, err := stk.ResultCode.Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: ResultCode %q", ErrMalformedCallback, stk.ResultCode)
	}
	cb.ResultCode = int(code)

	if stk.CallbackMetadata == nil {
		return cb, nil
	}
	for _, item := range stk.CallbackMetadata.Item {
		value := itemString(item.Value)
		if value == "" {
			continue
		}
		switch item.Name {
		case ItemAmount:
			if amount, err := decimal.NewFromString(value); err == nil {
				cb.Amount = &amount
			}
		case ItemReceiptNumber:
			cb.ReceiptNumber = value
		case ItemTransactionDate:
			if ts, err := time.ParseInLocation(timestampLayout, value, eat); err == nil {
				cb.TransactionDate = &ts
			}
		case ItemPhoneNumber:
			cb.PhoneNumber = value
		}
	}
	return cb, nil
}

func itemString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
