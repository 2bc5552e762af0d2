// Package mpesa is a thin client for the Safaricom Daraja STK push APIs.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/stkpush-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/stkpush-backend/pkg/errors"
)

const (
	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	timestampLayout        = "20060102150405"
	responseBodyReadLimit  = 4096
	tokenExpirySafetyDelta = time.Minute

	// MaxAccountRefLen and MaxDescriptionLen are the Daraja field limits.
	MaxAccountRefLen  = 12
	MaxDescriptionLen = 13
)

// Daraja computes the password timestamp in East Africa Time.
var eat = time.FixedZone("EAT", 3*60*60)

var (
	errCredentialsRequired = errors.New("mpesa consumer key and secret are required")
	errShortCodeRequired   = errors.New("mpesa shortcode and passkey are required")
)

// Client calls Daraja with a cached OAuth token.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	consumerKey    string
	consumerSecret string
	shortCode      string
	tillNumber     string
	passKey        string
	callbackURL    string
	now            func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the time source used for password timestamps and token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds a Daraja client from the injected configuration.
func NewClient(cfg config.MPesaConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.ConsumerKey) == "" || strings.TrimSpace(cfg.ConsumerSecret) == "" {
		return nil, errCredentialsRequired
	}
	if strings.TrimSpace(cfg.ShortCode) == "" || strings.TrimSpace(cfg.PassKey) == "" {
		return nil, errShortCodeRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        cfg.ResolvedBaseURL(),
		consumerKey:    strings.TrimSpace(cfg.ConsumerKey),
		consumerSecret: strings.TrimSpace(cfg.ConsumerSecret),
		shortCode:      strings.TrimSpace(cfg.ShortCode),
		tillNumber:     strings.TrimSpace(cfg.TillNumber),
		passKey:        strings.TrimSpace(cfg.PassKey),
		callbackURL:    strings.TrimSpace(cfg.CallbackURL),
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Password derives the Daraja password and the timestamp it was built for.
func (c *Client) Password() (password, timestamp string) {
	timestamp = c.now().In(eat).Format(timestampLayout)
	raw := c.shortCode + c.passKey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw)), timestamp
}

// AccessToken returns a cached OAuth token, refreshing it shortly before expiry.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeGateway, err, "build mpesa token request")
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeGateway, err, "execute mpesa token request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", pkgerrors.Wrap(pkgerrors.CodeGateway, statusError(resp), "mpesa token request failed")
	}

	var body struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decode mpesa token response")
	}
	if body.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeGateway, "mpesa token response missing access_token")
	}

	ttl := time.Hour
	if secs, err := body.ExpiresIn.Int64(); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	c.token = body.AccessToken
	c.tokenExpiry = c.now().Add(ttl - tokenExpirySafetyDelta)
	return c.token, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) (int, []byte, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return 0, nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "marshal mpesa request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "build mpesa request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "execute mpesa request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return resp.StatusCode, nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "read mpesa response")
	}
	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, raw, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decode mpesa response")
		}
	}
	return resp.StatusCode, raw, nil
}

// apiError is the body Daraja returns with non-200 statuses.
type apiError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func decodeAPIError(status int, raw []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.ErrorMessage != "" {
		return fmt.Errorf("status %d: %s (%s)", status, apiErr.ErrorMessage, apiErr.ErrorCode)
	}
	return fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(raw)))
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	return decodeAPIError(resp.StatusCode, msg)
}

// Truncate cuts value to at most n runes.
func Truncate(value string, n int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= n {
		return value
	}
	return string(runes[:n])
}
