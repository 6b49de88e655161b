// Package messaging is the external messaging-platform collaborator
// (spec §6): outbound text/button/list/image sends, inbound message
// normalization, and the truncation rule the platform's wire limits
// require.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ticketconcierge/internal/bookingerr"
	"ticketconcierge/internal/shared/config"
)

const provider = "messaging"

// Button is one row of an interactive button set (1-3 buttons).
type Button struct {
	ID    string
	Title string
}

// ListRow is one row of an interactive list (id/title/description).
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListSection groups rows under a titled section.
type ListSection struct {
	Title string
	Rows  []ListRow
}

// Client is the outward messaging dependency. Implemented against a
// WhatsApp-Business-style Graph API, grounded on the shape of the
// teacher's configuration for an external HTTP collaborator.
type Client interface {
	SendText(ctx context.Context, phone, body string) error
	SendButtons(ctx context.Context, phone, body string, buttons []Button) error
	SendList(ctx context.Context, phone, body, buttonText string, sections []ListSection) error
	SendTicketImage(ctx context.Context, phone, mediaID, caption string) error
	UploadMedia(ctx context.Context, data []byte, mimeType string) (mediaID string, err error)
	SendReadReceipt(ctx context.Context, messageID string)
}

type client struct {
	cfg        config.MessagingConfig
	httpClient *http.Client
}

func NewClient(cfg config.MessagingConfig) Client {
	return &client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Truncation limits, spec §6.
const (
	buttonTitleLimit  = 20
	buttonIDLimit     = 256
	listRowIDLimit    = 200
	listRowTitleLimit = 24
	listRowDescLimit  = 72
	listSectionLimit  = 24
	listActionLimit   = 20
	maxButtons        = 3
	maxListRows       = 10
)

// truncate implements the spec §6 rule: strings exceeding their limit are
// cut to (limit-3) and suffixed with "...".
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[:limit]
	}
	return s[:limit-3] + "..."
}

func (c *client) endpoint(path string) string {
	return fmt.Sprintf("%s/%s/%s", c.cfg.BaseURL, c.cfg.PhoneID, path)
}

func (c *client) SendText(ctx context.Context, phone, body string) error {
	return c.post(ctx, c.endpoint("messages"), map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                phone,
		"type":              "text",
		"text":              map[string]string{"body": body},
	})
}

func (c *client) SendButtons(ctx context.Context, phone, body string, buttons []Button) error {
	if len(buttons) > maxButtons {
		buttons = buttons[:maxButtons]
	}
	rows := make([]map[string]interface{}, len(buttons))
	for i, b := range buttons {
		rows[i] = map[string]interface{}{
			"type": "reply",
			"reply": map[string]string{
				"id":    truncate(b.ID, buttonIDLimit),
				"title": truncate(b.Title, buttonTitleLimit),
			},
		}
	}
	return c.post(ctx, c.endpoint("messages"), map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                phone,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type": "button",
			"body": map[string]string{"text": body},
			"action": map[string]interface{}{
				"buttons": rows,
			},
		},
	})
}

func (c *client) SendList(ctx context.Context, phone, body, buttonText string, sections []ListSection) error {
	total := 0
	wireSections := make([]map[string]interface{}, 0, len(sections))
	for _, sec := range sections {
		rows := make([]map[string]interface{}, 0, len(sec.Rows))
		for _, r := range sec.Rows {
			if total >= maxListRows {
				break
			}
			rows = append(rows, map[string]interface{}{
				"id":          truncate(r.ID, listRowIDLimit),
				"title":       truncate(r.Title, listRowTitleLimit),
				"description": truncate(r.Description, listRowDescLimit),
			})
			total++
		}
		wireSections = append(wireSections, map[string]interface{}{
			"title": truncate(sec.Title, listSectionLimit),
			"rows":  rows,
		})
	}

	return c.post(ctx, c.endpoint("messages"), map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                phone,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type": "list",
			"body": map[string]string{"text": body},
			"action": map[string]interface{}{
				"button":   truncate(buttonText, listActionLimit),
				"sections": wireSections,
			},
		},
	})
}

func (c *client) SendTicketImage(ctx context.Context, phone, mediaID, caption string) error {
	return c.post(ctx, c.endpoint("messages"), map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                phone,
		"type":              "image",
		"image": map[string]string{
			"id":      mediaID,
			"caption": caption,
		},
	})
}

func (c *client) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("media"), bytes.NewReader(data))
	if err != nil {
		return "", bookingerr.Wrap(bookingerr.InternalError, err)
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", bookingerr.Payment(provider, "unreachable", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", bookingerr.Wrap(bookingerr.InternalError, err)
	}
	return parsed.ID, nil
}

// SendReadReceipt is fire-and-forget per spec §4.10: its failure is never
// surfaced to the caller.
func (c *client) SendReadReceipt(ctx context.Context, messageID string) {
	go func() {
		_ = c.post(context.Background(), c.endpoint("messages"), map[string]interface{}{
			"messaging_product": "whatsapp",
			"status":            "read",
			"message_id":        messageID,
		})
	}()
}

func (c *client) post(ctx context.Context, url string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return bookingerr.Wrap(bookingerr.InternalError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return bookingerr.Wrap(bookingerr.InternalError, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return bookingerr.Payment(provider, "unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return bookingerr.Payment(provider, fmt.Sprintf("http_%d", resp.StatusCode), nil)
	}
	return nil
}
