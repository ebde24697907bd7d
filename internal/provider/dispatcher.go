package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WhatsAppDispatcher delivers outbound messages through the WhatsApp
// business API.
type WhatsAppDispatcher struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewWhatsAppDispatcher creates a message dispatcher client.
func NewWhatsAppDispatcher(baseURL, token string, timeout time.Duration) *WhatsAppDispatcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WhatsAppDispatcher{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	To       string `json:"to"`
	Text     string `json:"text,omitempty"`
	MediaRef string `json:"media_ref,omitempty"`
}

// Send delivers one message. mediaRef may be empty for text-only messages.
func (d *WhatsAppDispatcher) Send(ctx context.Context, address, text, mediaRef string) error {
	body, err := json.Marshal(sendRequest{To: address, Text: text, MediaRef: mediaRef})
	if err != nil {
		return fmt.Errorf("%w: encode request: %w", ErrDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.token)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrDelivery, resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}
