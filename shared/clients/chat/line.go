package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LineClient pushes messages through the LINE Messaging API. Rich cards
// are rendered as a minimal flex bubble; full flex layouts live in the
// front-end templates, not here.
type LineClient struct {
	baseURL      string
	channelToken string
	http         *http.Client
}

func NewLineClient(baseURL string, channelToken string, timeout time.Duration) *LineClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LineClient{
		baseURL:      baseURL,
		channelToken: channelToken,
		http:         &http.Client{Timeout: timeout},
	}
}

func (c *LineClient) PushText(ctx context.Context, to string, text string) error {
	return c.post(ctx, "/v2/bot/message/push", map[string]any{
		"to":       to,
		"messages": []any{map[string]any{"type": "text", "text": text}},
	})
}

func (c *LineClient) ReplyText(ctx context.Context, replyToken string, text string) error {
	return c.post(ctx, "/v2/bot/message/reply", map[string]any{
		"replyToken": replyToken,
		"messages":   []any{map[string]any{"type": "text", "text": text}},
	})
}

func (c *LineClient) PushCard(ctx context.Context, to string, card Card) error {
	return c.post(ctx, "/v2/bot/message/push", map[string]any{
		"to":       to,
		"messages": []any{flexMessage(card)},
	})
}

// GetMessageContent downloads media a citizen sent to the bot. The data
// endpoint host differs from the messaging host; callers pass the full
// content base URL at construction when self-hosting a proxy.
func (c *LineClient) GetMessageContent(ctx context.Context, messageID string) ([]byte, error) {
	if c == nil || c.http == nil {
		return nil, errors.New("line client not initialized")
	}
	url := c.baseURL + "/v2/bot/message/" + messageID + "/content"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.channelToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("line content api returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}

func (c *LineClient) post(ctx context.Context, path string, payload any) error {
	if c == nil || c.http == nil {
		return errors.New("line client not initialized")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.channelToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("line api returned status %d", resp.StatusCode)
	}
	return nil
}

func flexMessage(card Card) map[string]any {
	contents := make([]any, 0, len(card.Lines)+1)
	contents = append(contents, map[string]any{
		"type": "text", "text": card.Title, "weight": "bold", "wrap": true,
	})
	for _, l := range card.Lines {
		if l.Value == "" {
			continue
		}
		text := l.Value
		if l.Label != "" {
			text = l.Label + ": " + l.Value
		}
		contents = append(contents, map[string]any{"type": "text", "text": text, "size": "sm", "wrap": true})
	}

	bubble := map[string]any{
		"type": "bubble",
		"body": map[string]any{"type": "box", "layout": "vertical", "spacing": "sm", "contents": contents},
	}
	if card.ImageURL != "" {
		bubble["hero"] = map[string]any{
			"type": "image", "url": card.ImageURL, "size": "full", "aspectMode": "cover",
		}
	}
	if len(card.Actions) > 0 {
		buttons := make([]any, 0, len(card.Actions))
		for _, a := range card.Actions {
			var action map[string]any
			if a.URI != "" {
				action = map[string]any{"type": "uri", "label": a.Label, "uri": a.URI}
			} else {
				action = map[string]any{"type": "postback", "label": a.Label, "data": a.Data}
			}
			buttons = append(buttons, map[string]any{"type": "button", "style": "primary", "height": "sm", "action": action})
		}
		bubble["footer"] = map[string]any{"type": "box", "layout": "vertical", "spacing": "sm", "contents": buttons}
	}

	return map[string]any{
		"type":     "flex",
		"altText":  card.Title,
		"contents": bubble,
	}
}
