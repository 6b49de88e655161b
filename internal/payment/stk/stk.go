// Package stk implements the Mobile-STK payment adapter (spec §4.5): a
// single operation that pushes an in-chat payment prompt to a phone and
// returns a provider invoice id, correlated back by the booking id.
package stk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ticketconcierge/internal/bookingerr"
	"ticketconcierge/internal/phone"
	"ticketconcierge/internal/shared/config"
)

const provider = "stk"

const businessNotEligibleCode = "BusinessNotEligible"

// Status is the provider's immediate acknowledgement to an initiate call,
// not the final payment outcome — that arrives later on the webhook.
type Status string

const (
	StatusAccepted Status = "ACCEPTED"
	StatusFailed   Status = "FAILED"
)

// Adapter is the Mobile-STK payment collaborator.
type Adapter interface {
	Initiate(ctx context.Context, normalizedPhone string, amountKES int64, apiRef string) (invoiceID string, status Status, err error)
}

type adapter struct {
	cfg    config.STKConfig
	client *http.Client
}

func NewAdapter(cfg config.STKConfig) Adapter {
	return &adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type initiateRequest struct {
	PhoneNumber string `json:"phone_number"`
	Amount      int64  `json:"amount"`
	AccountRef  string `json:"account_reference"`
	IsTest      bool   `json:"is_test"`
}

type initiateResponse struct {
	InvoiceID    string `json:"invoice_id"`
	State        string `json:"state"`
	ErrorMessage string `json:"errorMessage"`
	ErrorCode    string `json:"errorCode"`
}

// Initiate pushes an STK prompt. apiRef is the booking id, echoed back by
// the provider's webhook as api_ref so the webhook can correlate the
// eventual payment notification to this booking.
func (a *adapter) Initiate(ctx context.Context, normalizedPhone string, amountKES int64, apiRef string) (string, Status, error) {
	if a.cfg.PublishableKey == "" || a.cfg.SecretKey == "" {
		return "", StatusFailed, bookingerr.New(bookingerr.ConfigError, "STK adapter credentials are not configured")
	}
	if !phone.Validate(normalizedPhone) {
		return "", StatusFailed, bookingerr.New(bookingerr.InvalidPhone, "phone is not a valid normalized subscriber number")
	}

	body, err := json.Marshal(initiateRequest{
		PhoneNumber: normalizedPhone,
		Amount:      amountKES,
		AccountRef:  apiRef,
		IsTest:      a.cfg.IsTest,
	})
	if err != nil {
		return "", StatusFailed, bookingerr.Wrap(bookingerr.InternalError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.stkprovider.example/v1/push", bytes.NewReader(body))
	if err != nil {
		return "", StatusFailed, bookingerr.Wrap(bookingerr.InternalError, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(a.cfg.PublishableKey, a.cfg.SecretKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", StatusFailed, bookingerr.Payment(provider, "unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", StatusFailed, bookingerr.Wrap(bookingerr.InternalError, err)
	}

	var parsed initiateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", StatusFailed, bookingerr.Wrapf(bookingerr.InternalError, err, "malformed STK response: %s", raw)
	}

	if resp.StatusCode >= 300 {
		code := parsed.ErrorCode
		if code == "" {
			code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		return "", StatusFailed, bookingerr.Payment(provider, code, fmt.Errorf("%s", parsed.ErrorMessage))
	}

	if parsed.InvoiceID == "" {
		return "", StatusFailed, bookingerr.Payment(provider, businessNotEligibleCode, fmt.Errorf("%s", parsed.ErrorMessage))
	}

	return parsed.InvoiceID, StatusAccepted, nil
}
