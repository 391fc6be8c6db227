package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"municipal-complaint-service/shared/config"
)

// Task types handled by the worker binary.
const (
	TypeSurveySend = "survey.send"
	TypeNotifyPush = "notify.push"
)

// SurveyPayload schedules the post-completion satisfaction survey.
type SurveyPayload struct {
	ComplaintID string `json:"complaint_id"`
}

// NotifyPayload is a chat push that failed inline and is retried from the
// queue.
type NotifyPayload struct {
	Platform    string `json:"platform"`
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
}

func RedisOpt(cfg config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.AsynqRedisAddr,
		Password: cfg.AsynqRedisPass,
		DB:       cfg.AsynqRedisDB,
	}
}

type Client struct {
	inner    *asynq.Client
	queue    string
	maxRetry int
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		inner:    asynq.NewClient(RedisOpt(cfg)),
		queue:    cfg.AsynqQueue,
		maxRetry: cfg.NotifyMaxRetry,
	}
}

func (c *Client) Close() error {
	return c.inner.Close()
}

// EnqueueSurvey schedules a survey push after the given delay.
func (c *Client) EnqueueSurvey(ctx context.Context, complaintID uuid.UUID, delay time.Duration) error {
	payload, err := json.Marshal(SurveyPayload{ComplaintID: complaintID.String()})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeSurveySend, payload, asynq.Queue(c.queue), asynq.MaxRetry(c.maxRetry))
	_, err = c.inner.EnqueueContext(ctx, task, asynq.ProcessIn(delay))
	return err
}

// EnqueueNotify queues a chat push for retry by the worker.
func (c *Client) EnqueueNotify(ctx context.Context, p NotifyPayload) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeNotifyPush, payload, asynq.Queue(c.queue), asynq.MaxRetry(c.maxRetry))
	_, err = c.inner.EnqueueContext(ctx, task)
	return err
}
