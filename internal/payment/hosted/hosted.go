// Package hosted implements the Hosted-Redirect payment adapter (spec
// §4.6): a three-step token/endpoint/order protocol fronting a
// redirect-to-provider-page card payment flow, plus transaction-status
// polling for the webhook.
package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"ticketconcierge/internal/bookingerr"
	"ticketconcierge/internal/shared/config"
)

const provider = "hosted"

const tokenRefreshSkew = 30 * time.Second

// Booking is the minimal view of a booking the hosted adapter needs to
// mint a payment link. Kept decoupled from the booking package to avoid a
// payment → booking import cycle.
type Booking struct {
	ID          string
	AmountKES   int64
	Description string
	CallbackURL string
}

// TransactionStatus is the adapter's normalized view over the provider's
// status payload, extracting only the fields the webhook needs (spec §4.6).
type TransactionStatus struct {
	Completed        bool
	BookingID        string
	PaymentReference string
	PayerPhone       string
}

// Adapter is the Hosted-Redirect payment collaborator.
type Adapter interface {
	GetPaymentLink(ctx context.Context, b Booking) (redirectURL string, err error)
	GetTransactionStatus(ctx context.Context, orderTrackingID string) (TransactionStatus, error)
}

type adapter struct {
	cfg    config.HostedConfig
	client *http.Client

	mu             sync.Mutex
	token          string
	tokenExpiresAt time.Time
	endpointID     string
}

func NewAdapter(cfg config.HostedConfig) Adapter {
	return &adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetPaymentLink runs the three-step protocol: token, then notification
// endpoint id (lazily registered and memoized process-wide), then order
// submission. Both caches are best-effort per-process; a new process
// re-earns both, which is acceptable (spec §4.6).
func (a *adapter) GetPaymentLink(ctx context.Context, b Booking) (string, error) {
	if a.cfg.ConsumerKey == "" || a.cfg.ConsumerSecret == "" {
		return "", bookingerr.New(bookingerr.ConfigError, "hosted adapter credentials are not configured")
	}

	token, err := a.tokenForRequest(ctx, false)
	if err != nil {
		return "", err
	}

	endpointID, err := a.endpointIDForRequest(ctx, token, false)
	if err != nil {
		return "", err
	}

	redirectURL, err := a.submitOrder(ctx, token, endpointID, b)
	if err != nil {
		if be, ok := err.(*bookingerr.Error); ok && be.Code == "http_401" {
			token, err = a.tokenForRequest(ctx, true)
			if err != nil {
				return "", err
			}
			return a.submitOrder(ctx, token, endpointID, b)
		}
		return "", err
	}
	return redirectURL, nil
}

func (a *adapter) tokenForRequest(ctx context.Context, forceRefresh bool) (string, error) {
	a.mu.Lock()
	if !forceRefresh && a.token != "" && time.Now().Before(a.tokenExpiresAt.Add(-tokenRefreshSkew)) {
		token := a.token
		a.mu.Unlock()
		return token, nil
	}
	a.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/api/AccessToken/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", bookingerr.Wrap(bookingerr.InternalError, err)
	}
	req.SetBasicAuth(a.cfg.ConsumerKey, a.cfg.ConsumerSecret)

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := a.doJSON(req, &parsed); err != nil {
		return "", err
	}

	ttlSeconds := 3600
	fmt.Sscanf(parsed.ExpiresIn, "%d", &ttlSeconds)

	a.mu.Lock()
	a.token = parsed.AccessToken
	a.tokenExpiresAt = time.Now().Add(time.Duration(ttlSeconds) * time.Second)
	a.mu.Unlock()

	return parsed.AccessToken, nil
}

func (a *adapter) endpointIDForRequest(ctx context.Context, token string, forceRefresh bool) (string, error) {
	a.mu.Lock()
	if !forceRefresh && a.endpointID != "" {
		id := a.endpointID
		a.mu.Unlock()
		return id, nil
	}
	a.mu.Unlock()

	body, _ := json.Marshal(map[string]string{
		"url":               a.cfg.CallbackURL,
		"notification_type": "POST",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/URLSetup/registerIPN", bytes.NewReader(body))
	if err != nil {
		return "", bookingerr.Wrap(bookingerr.InternalError, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	var parsed struct {
		IPNID string `json:"ipn_id"`
	}
	if err := a.doJSON(req, &parsed); err != nil {
		return "", err
	}

	a.mu.Lock()
	a.endpointID = parsed.IPNID
	a.mu.Unlock()

	return parsed.IPNID, nil
}

func (a *adapter) submitOrder(ctx context.Context, token, endpointID string, b Booking) (string, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"id":                 b.ID,
		"amount":             b.AmountKES,
		"currency":           "KES",
		"description":        b.Description,
		"callback_url":       a.cfg.CallbackURL,
		"notification_id":    endpointID,
		"merchant_reference": b.ID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/Transactions/SubmitOrderRequest", bytes.NewReader(body))
	if err != nil {
		return "", bookingerr.Wrap(bookingerr.InternalError, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	var parsed struct {
		RedirectURL string `json:"redirect_url"`
	}
	if err := a.doJSON(req, &parsed); err != nil {
		return "", err
	}
	if parsed.RedirectURL == "" {
		return "", bookingerr.Payment(provider, "no_redirect_url", nil)
	}
	return parsed.RedirectURL, nil
}

// GetTransactionStatus polls the provider and normalizes the handful of
// field aliases the spec documents (different provider API versions use
// different key names for the same concepts).
func (a *adapter) GetTransactionStatus(ctx context.Context, orderTrackingID string) (TransactionStatus, error) {
	token, err := a.tokenForRequest(ctx, false)
	if err != nil {
		return TransactionStatus{}, err
	}

	q := url.Values{"orderTrackingId": {orderTrackingID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/api/Transactions/GetStatus?"+q.Encode(), nil)
	if err != nil {
		return TransactionStatus{}, bookingerr.Wrap(bookingerr.InternalError, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var raw map[string]interface{}
	if err := a.doJSON(req, &raw); err != nil {
		if be, ok := err.(*bookingerr.Error); ok && be.Code == "http_401" {
			token, err = a.tokenForRequest(ctx, true)
			if err != nil {
				return TransactionStatus{}, err
			}
			req.Header.Set("Authorization", "Bearer "+token)
			if err := a.doJSON(req, &raw); err != nil {
				return TransactionStatus{}, err
			}
		} else {
			return TransactionStatus{}, err
		}
	}

	desc := firstString(raw, "payment_status_description", "status")
	bookingID := firstString(raw, "order_merchant_reference", "merchant_reference", "confirmation_code")
	paymentRef := firstString(raw, "confirmation_code", "order_tracking_id")
	payerPhone := firstString(raw, "payer_phone", "phone_number")

	return TransactionStatus{
		Completed:        desc == "Completed" || desc == "COMPLETED",
		BookingID:        bookingID,
		PaymentReference: paymentRef,
		PayerPhone:       payerPhone,
	}, nil
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func (a *adapter) doJSON(req *http.Request, out interface{}) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return bookingerr.Payment(provider, "unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return bookingerr.Wrap(bookingerr.InternalError, err)
	}

	if resp.StatusCode >= 300 {
		return bookingerr.Payment(provider, fmt.Sprintf("http_%d", resp.StatusCode), fmt.Errorf("%s", raw))
	}

	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return bookingerr.Wrapf(bookingerr.InternalError, err, "malformed hosted-provider response: %s", raw)
	}
	return nil
}
