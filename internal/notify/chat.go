package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// ChatWebhook posts operational alerts to an incoming-webhook URL (Slack/Mattermost style {"text": ...}).
type ChatWebhook struct {
	URL        string
	Token      string
	HTTPClient *http.Client
}

// NewChatWebhook returns a webhook client. token is sent as the Authorization header when non-empty.
func NewChatWebhook(url, token string) *ChatWebhook {
	return &ChatWebhook{
		URL:        url,
		Token:      token,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Send posts the alert. Recipients are ignored; the webhook decides the channel.
func (c *ChatWebhook) Send(ctx context.Context, msg Message) error {
	if c.URL == "" {
		return fmt.Errorf("notify: chat webhook URL not configured")
	}
	text := msg.Body
	if msg.Subject != "" {
		text = "*" + msg.Subject + "*\n" + msg.Body
	}
	raw, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notify: chat webhook failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
