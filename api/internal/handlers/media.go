package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"municipal-complaint-service/api/internal/models"
	"municipal-complaint-service/shared/clients/chat"
)

// MediaResolver turns platform image references into URLs the officer
// console can render. Facebook attachments already arrive as CDN URLs; LINE
// media has to be pulled through the bot API and stored.
type MediaResolver struct {
	line    *chat.LineClient
	dir     string
	baseURL string
}

func NewMediaResolver(line *chat.LineClient, dir string, baseURL string) *MediaResolver {
	return &MediaResolver{line: line, dir: dir, baseURL: baseURL}
}

func (m *MediaResolver) Resolve(ctx context.Context, msg models.UnifiedMessage) (string, error) {
	ref := strings.TrimSpace(msg.ImageRef)
	if ref == "" {
		return "", fmt.Errorf("media: empty image ref")
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	if msg.Platform != models.PlatformLine || m.line == nil {
		return "", fmt.Errorf("media: cannot resolve ref %q for platform %s", ref, msg.Platform)
	}

	data, err := m.line.GetMessageContent(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("media: fetch line content: %w", err)
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", err
	}
	name := ref + ".jpg"
	if err := os.WriteFile(filepath.Join(m.dir, name), data, 0o644); err != nil {
		return "", err
	}
	if m.baseURL == "" {
		return "/media/" + name, nil
	}
	return strings.TrimRight(m.baseURL, "/") + "/" + name, nil
}
