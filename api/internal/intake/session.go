package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"municipal-complaint-service/api/internal/models"
	"municipal-complaint-service/shared/cachex"
)

// Store keeps per-citizen conversation state between webhook deliveries.
type Store interface {
	Get(ctx context.Context, platform string, userID string) (models.ConversationSession, error)
	Save(ctx context.Context, session models.ConversationSession) error
	Delete(ctx context.Context, platform string, userID string) error
}

func sessionKey(platform string, userID string) string {
	return fmt.Sprintf("intake:session:%s:%s", platform, userID)
}

func emptySession(platform string, userID string) models.ConversationSession {
	return models.ConversationSession{
		Platform: platform,
		UserID:   userID,
		Fields:   map[string]string{},
	}
}

type RedisStore struct {
	cache *cachex.Client
	ttl   time.Duration
}

func NewRedisStore(cache *cachex.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{cache: cache, ttl: ttl}
}

// Get returns the stored session, or a fresh one when nothing is stored.
// A payload that no longer decodes is dropped and replaced by a fresh
// session rather than wedging the conversation.
func (s *RedisStore) Get(ctx context.Context, platform string, userID string) (models.ConversationSession, error) {
	raw, found, err := s.cache.GetRaw(ctx, sessionKey(platform, userID))
	if err != nil {
		return models.ConversationSession{}, err
	}
	if !found {
		return emptySession(platform, userID), nil
	}
	var session models.ConversationSession
	if err := json.Unmarshal(raw, &session); err != nil {
		_ = s.cache.Delete(ctx, sessionKey(platform, userID))
		return emptySession(platform, userID), nil
	}
	if session.Fields == nil {
		session.Fields = map[string]string{}
	}
	return session, nil
}

func (s *RedisStore) Save(ctx context.Context, session models.ConversationSession) error {
	session.UpdatedAt = time.Now().UTC()
	return s.cache.SetJSON(ctx, sessionKey(session.Platform, session.UserID), session, s.ttl)
}

func (s *RedisStore) Delete(ctx context.Context, platform string, userID string) error {
	return s.cache.Delete(ctx, sessionKey(platform, userID))
}

// MemoryStore backs tests and local runs without redis.
type MemoryStore struct {
	sessions map[string]models.ConversationSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]models.ConversationSession{}}
}

func (s *MemoryStore) Get(ctx context.Context, platform string, userID string) (models.ConversationSession, error) {
	if session, ok := s.sessions[sessionKey(platform, userID)]; ok {
		if session.Fields == nil {
			session.Fields = map[string]string{}
		}
		return session, nil
	}
	return emptySession(platform, userID), nil
}

func (s *MemoryStore) Save(ctx context.Context, session models.ConversationSession) error {
	session.UpdatedAt = time.Now().UTC()
	s.sessions[sessionKey(session.Platform, session.UserID)] = session
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, platform string, userID string) error {
	delete(s.sessions, sessionKey(platform, userID))
	return nil
}
