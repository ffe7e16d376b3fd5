// Package evolution talks to an Evolution API gateway, the HTTP bridge in
// front of WhatsApp. Outbound replies go through SendText; inbound messages
// arrive as webhook payloads parsed by this package's types.
package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// sendDelayMillis is passed to the gateway so replies carry a short typing
// delay instead of landing instantly.
const sendDelayMillis = 2000

// Client sends messages through an Evolution API instance.
type Client struct {
	baseURL    string
	instance   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Client for the named instance.
func NewClient(baseURL, instance, apiKey string) *Client {
	return &Client{
		baseURL:  baseURL,
		instance: instance,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
	Delay  int    `json:"delay"`
}

// SendText delivers text to number (digits only, country code included).
func (c *Client) SendText(ctx context.Context, number, text string) error {
	body, err := json.Marshal(sendTextRequest{
		Number: number,
		Text:   text,
		Delay:  sendDelayMillis,
	})
	if err != nil {
		return fmt.Errorf("marshaling send request: %w", err)
	}

	url := fmt.Sprintf("%s/message/sendText/%s", c.baseURL, c.instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}
