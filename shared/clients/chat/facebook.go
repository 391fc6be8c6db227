package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// FacebookClient delivers through the Messenger Send API. Messenger has no
// flex equivalent so cards are flattened to text.
type FacebookClient struct {
	baseURL   string
	pageToken string
	http      *http.Client
}

func NewFacebookClient(baseURL string, pageToken string, timeout time.Duration) *FacebookClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FacebookClient{
		baseURL:   baseURL,
		pageToken: pageToken,
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *FacebookClient) PushText(ctx context.Context, to string, text string) error {
	if c == nil || c.http == nil {
		return errors.New("facebook client not initialized")
	}
	payload := map[string]any{
		"recipient": map[string]any{"id": to},
		"message":   map[string]any{"text": text},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	endpoint := c.baseURL + "/v19.0/me/messages?access_token=" + url.QueryEscape(c.pageToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("facebook api returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *FacebookClient) PushCard(ctx context.Context, to string, card Card) error {
	return c.PushText(ctx, to, Flatten(card))
}

// ReplyToken is a LINE concept; Messenger replies are plain pushes.
func (c *FacebookClient) ReplyText(ctx context.Context, replyToken string, text string) error {
	return c.PushText(ctx, replyToken, text)
}
