package mpesa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/angelmondragon/stkpush-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stkpush-backend/pkg/errors"
)

// pendingQueryErrorCode is returned by STK push query while the payer has not answered.
const pendingQueryErrorCode = "500.001.1001"

// STKPushRequest is the charge to push to the payer's handset.
type STKPushRequest struct {
	Amount      int64
	Phone       string
	AccountRef  string
	Description string
	Mode        enums.ChargeMode
}

// STKPushResponse carries the correlation ids Daraja issued.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPush asks Daraja to prompt the payer. Any transport failure or a
// ResponseCode other than "0" is a CodeGateway error.
func (c *Client) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mpesa client not configured")
	}

	password, timestamp := c.Password()
	partyB := c.shortCode
	if req.Mode == enums.ChargeModeTill && c.tillNumber != "" {
		partyB = c.tillNumber
	}

	payload := stkPushPayload{
		BusinessShortCode: c.shortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   req.Mode.TransactionType(),
		Amount:            req.Amount,
		PartyA:            req.Phone,
		PartyB:            partyB,
		PhoneNumber:       req.Phone,
		CallBackURL:       c.callbackURL,
		AccountReference:  Truncate(req.AccountRef, MaxAccountRefLen),
		TransactionDesc:   Truncate(req.Description, MaxDescriptionLen),
	}

	var out STKPushResponse
	status, raw, err := c.post(ctx, stkPushPath, payload, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, decodeAPIError(status, raw), "stk push rejected")
	}
	if out.ResponseCode != "0" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway,
			fmt.Errorf("response code %s: %s", out.ResponseCode, out.ResponseDescription), "stk push rejected")
	}
	if out.CheckoutRequestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "stk push response missing CheckoutRequestID")
	}
	return &out, nil
}

// QueryResult is the outcome of an STK push status query.
type QueryResult struct {
	// Pending is true while the payer has not completed the prompt.
	Pending           bool
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
}

type stkQueryPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// QuerySTKPush asks Daraja for the final result of a previously pushed charge.
func (c *Client) QuerySTKPush(ctx context.Context, checkoutRequestID string) (*QueryResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mpesa client not configured")
	}
	if checkoutRequestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout request id is required")
	}

	password, timestamp := c.Password()
	payload := stkQueryPayload{
		BusinessShortCode: c.shortCode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var out stkQueryResponse
	status, raw, err := c.post(ctx, stkQueryPath, payload, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		var apiErr apiError
		if jsonErr := json.Unmarshal(raw, &apiErr); jsonErr == nil && apiErr.ErrorCode == pendingQueryErrorCode {
			return &QueryResult{Pending: true, CheckoutRequestID: checkoutRequestID}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, decodeAPIError(status, raw), "stk push query failed")
	}

	code, err := strconv.Atoi(out.ResultCode)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "stk push query returned non-numeric ResultCode")
	}
	return &QueryResult{
		MerchantRequestID: out.MerchantRequestID,
		CheckoutRequestID: out.CheckoutRequestID,
		ResultCode:        code,
		ResultDesc:        out.ResultDesc,
	}, nil
}
