package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is SignPayload(payload, secret).
func VerifySignature(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(signature))
}

type WebhookOption func(*WebhookPublisher)

func WithHTTPClient(c *http.Client) WebhookOption {
	return func(p *WebhookPublisher) { p.client = c }
}

// WebhookPublisher POSTs each event body to a single HTTP endpoint. When a
// secret is set the body is signed in X-Webhook-Signature. Each event is
// posted once; a failed delivery is reported, not retried.
type WebhookPublisher struct {
	url    string
	secret string
	client *http.Client
}

func NewWebhookPublisher(rawURL, secret string, opts ...WebhookOption) (*WebhookPublisher, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("webhook url must be an absolute http(s) url, got %q", rawURL)
	}
	p := &WebhookPublisher{
		url:    rawURL,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func (p *WebhookPublisher) Publish(ctx context.Context, topic string, msg Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", msg.ID)
	req.Header.Set("X-Event-Type", msg.Type)
	req.Header.Set("X-Event-Topic", topic)
	req.Header.Set("X-Webhook-Timestamp", time.Now().UTC().Format(time.RFC3339))
	if p.secret != "" {
		req.Header.Set("X-Webhook-Signature", "sha256="+SignPayload(msg.Body, p.secret))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook %s: %w", msg.Type, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s: endpoint responded %d", msg.Type, resp.StatusCode)
	}
	return nil
}

func (p *WebhookPublisher) Name() string { return "webhook" }

func (p *WebhookPublisher) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
