package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// FCMClient sends push notifications through the FCM HTTP endpoint. A
// circuit breaker sits in front of the provider so a hard outage fails fast
// instead of tying up queue workers for the full timeout on every attempt.
type FCMClient struct {
	endpoint  string
	serverKey string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[string]
}

func NewFCMClient(endpoint, serverKey string, timeout time.Duration) *FCMClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &FCMClient{
		endpoint:  endpoint,
		serverKey: serverKey,
		client: &http.Client{
			Timeout: timeout,
		},
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:    "fcm",
			Timeout: 30 * time.Second,
		}),
	}
}

var _ Notifier = (*FCMClient)(nil)

type fcmRequest struct {
	To           string            `json:"to"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

func (c *FCMClient) Deliver(ctx context.Context, token string, n Notification, data map[string]string) (string, error) {
	if c.serverKey == "" {
		return "", ErrUnavailable
	}

	return c.breaker.Execute(func() (string, error) {
		return c.send(ctx, token, n, data)
	})
}

func (c *FCMClient) send(ctx context.Context, token string, n Notification, data map[string]string) (string, error) {
	reqBody, err := json.Marshal(fcmRequest{
		To: token,
		Notification: fcmNotification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: data,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.serverKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fcm: unexpected status code %d body=%q", resp.StatusCode, string(body))
	}

	var fr fcmResponse
	if err := json.Unmarshal(body, &fr); err != nil {
		return "", fmt.Errorf("fcm: failed to decode response: %w body=%q", err, string(body))
	}

	if fr.Success < 1 || len(fr.Results) == 0 {
		reason := "unknown"
		if len(fr.Results) > 0 && fr.Results[0].Error != "" {
			reason = fr.Results[0].Error
		}
		return "", fmt.Errorf("fcm: delivery rejected: %s", reason)
	}
	if fr.Results[0].MessageID == "" {
		return "", fmt.Errorf("fcm: missing message_id in response body=%q", string(body))
	}

	return fr.Results[0].MessageID, nil
}
