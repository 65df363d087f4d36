// Package whatsapp sends template messages through the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/config"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/logging"
)

// ErrNotConfigured is returned when the phone id or token is missing.
var ErrNotConfigured = errors.New("whatsapp: WHATSAPP_PHONE_ID or WHATSAPP_TOKEN not configured")

type language struct {
	Code string `json:"code"`
}

type template struct {
	Name     string   `json:"name"`
	Language language `json:"language"`
}

type messageRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Template         template `json:"template"`
}

type messageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Client calls the Cloud API messages endpoint.
type Client struct {
	baseURL    string
	token      string
	phoneID    string
	language   string
	httpClient *http.Client
}

// NewClient creates a Client from the WhatsApp settings in cfg.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.WhatsAppAPIURL, "/"),
		token:      cfg.WhatsAppToken,
		phoneID:    cfg.WhatsAppPhoneID,
		language:   cfg.WhatsAppLanguage,
		httpClient: &http.Client{Timeout: cfg.WhatsAppTimeout},
	}
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool {
	return c.phoneID != "" && c.token != ""
}

// SendTemplate sends the named template to phone, which must already be
// normalized, and returns the provider message id. The approved templates
// carry no body parameters, so data is not sent.
func (c *Client) SendTemplate(ctx context.Context, phone, name string, data map[string]any) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	payload, err := json.Marshal(messageRequest{
		MessagingProduct: "whatsapp",
		To:               phone,
		Type:             "template",
		Template:         template{Name: name, Language: language{Code: c.language}},
	})
	if err != nil {
		return "", fmt.Errorf("encode whatsapp request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call whatsapp api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read whatsapp response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("whatsapp api failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out messageResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("parse whatsapp response: %w", err)
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", fmt.Errorf("whatsapp response has no message id: %s", string(body))
	}

	log.Debugf("WhatsApp template %s sent to %s (id %s)", name, logging.RedactPhone(phone), out.Messages[0].ID)
	return out.Messages[0].ID, nil
}
