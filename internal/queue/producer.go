package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// adder is the subset of the Redis client the producer needs
type adder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Producer publishes jobs
type Producer struct {
	client adder
	prefix string
	now    func() time.Time
}

// NewProducer creates a producer writing to streams under prefix
func NewProducer(client adder, prefix string) *Producer {
	return &Producer{client: client, prefix: prefix, now: time.Now}
}

// Enqueue publishes payload on queue and returns the message id
func (p *Producer) Enqueue(ctx context.Context, queue string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", queue, err)
	}

	msg := &Message{
		ID:        uuid.NewString(),
		Queue:     queue,
		Payload:   body,
		CreatedAt: p.now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(p.prefix, queue),
		ID:     "*",
		Values: map[string]interface{}{dataField: string(data)},
	}).Err()
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	return msg.ID, nil
}

// EnqueueAnalysis schedules analysis of an email
func (p *Producer) EnqueueAnalysis(ctx context.Context, emailID int64, indexID string) (string, error) {
	return p.Enqueue(ctx, Analysis, AnalysisPayload{EmailID: emailID, IndexID: indexID})
}

// EnqueueReply schedules a reply draft for a thread
func (p *Producer) EnqueueReply(ctx context.Context, threadID int64, indexID string) (string, error) {
	return p.Enqueue(ctx, Reply, ReplyPayload{ThreadID: threadID, IndexID: indexID})
}

// EnqueueFanout schedules task creation for an analysis generation
func (p *Producer) EnqueueFanout(ctx context.Context, generationID int64, force bool) (string, error) {
	return p.Enqueue(ctx, Fanout, FanoutPayload{GenerationID: generationID, Force: force})
}
