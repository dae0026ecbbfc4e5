package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// streamAPI is the subset of the Redis client the consumer needs
type streamAPI interface {
	adder
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
}

// ConsumerConfig holds consumer settings. Zero values take defaults.
type ConsumerConfig struct {
	Prefix string
	Group  string
	Name   string
	Queues []string

	Block   time.Duration // XREADGROUP block time
	Count   int64         // messages per read
	MinIdle time.Duration // pending messages idle this long are reclaimed
}

// Consumer reads jobs from the queue streams with a consumer group. Messages
// stay pending until Ack or DeadLetter, so jobs of a crashed worker are
// reclaimed by another one after MinIdle.
type Consumer struct {
	client   streamAPI
	prefix   string
	group    string
	name     string
	queues   []string
	block    time.Duration
	count    int64
	minIdle  time.Duration
	logger   zerolog.Logger
	lastScan time.Time
	now      func() time.Time
}

// NewConsumer creates a consumer
func NewConsumer(client streamAPI, cfg ConsumerConfig, logger zerolog.Logger) *Consumer {
	c := &Consumer{
		client:  client,
		prefix:  cfg.Prefix,
		group:   cfg.Group,
		name:    cfg.Name,
		queues:  cfg.Queues,
		block:   cfg.Block,
		count:   cfg.Count,
		minIdle: cfg.MinIdle,
		now:     time.Now,
	}
	if c.group == "" {
		c.group = DefaultGroup
	}
	if len(c.queues) == 0 {
		c.queues = Queues
	}
	if c.block == 0 {
		c.block = 5 * time.Second
	}
	if c.count == 0 {
		c.count = 10
	}
	if c.minIdle == 0 {
		// longer than a job with all its retries
		c.minIdle = 10 * time.Minute
	}
	c.logger = logger.With().Str("component", "consumer").Str("group", c.group).Str("consumer", c.name).Logger()
	return c
}

// EnsureGroups creates the consumer group on every stream
func (c *Consumer) EnsureGroups(ctx context.Context) error {
	for _, q := range c.queues {
		err := c.client.XGroupCreateMkStream(ctx, StreamKey(c.prefix, q), c.group, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group on %s: %w", q, err)
		}
	}
	return nil
}

// Run reads messages until ctx is done and hands each to submit
func (c *Consumer) Run(ctx context.Context, submit func(*Message)) error {
	if err := c.EnsureGroups(ctx); err != nil {
		return err
	}
	c.logger.Info().Strs("queues", c.queues).Msg("Consumer started")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.now().Sub(c.lastScan) >= c.minIdle/2 {
			c.reclaim(ctx, submit)
			c.lastScan = c.now()
		}

		n, err := c.Poll(ctx, submit)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(err).Msg("Error reading from streams")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if n > 0 {
			c.logger.Debug().Int("messages", n).Msg("Messages received")
		}
	}
}

// Poll performs one XREADGROUP and returns how many messages were submitted
func (c *Consumer) Poll(ctx context.Context, submit func(*Message)) (int, error) {
	args := make([]string, len(c.queues)*2)
	for i, q := range c.queues {
		args[i] = StreamKey(c.prefix, q)
		args[len(c.queues)+i] = ">"
	}

	res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  args,
		Count:    c.count,
		Block:    c.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n := 0
	for _, stream := range res {
		for _, xm := range stream.Messages {
			if c.dispatch(ctx, stream.Stream, xm, submit) {
				n++
			}
		}
	}
	return n, nil
}

func (c *Consumer) reclaim(ctx context.Context, submit func(*Message)) {
	for _, q := range c.queues {
		stream := StreamKey(c.prefix, q)
		msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    c.group,
			Consumer: c.name,
			MinIdle:  c.minIdle,
			Start:    "0-0",
			Count:    c.count,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				c.logger.Warn().Err(err).Str("stream", stream).Msg("Failed to reclaim pending messages")
			}
			continue
		}
		for _, xm := range msgs {
			c.logger.Info().Str("stream", stream).Str("id", xm.ID).Msg("Reclaimed stuck message")
			c.dispatch(ctx, stream, xm, submit)
		}
	}
}

// dispatch decodes one stream entry. Undecodable entries are dead-lettered.
func (c *Consumer) dispatch(ctx context.Context, stream string, xm redis.XMessage, submit func(*Message)) bool {
	msg, err := decodeEntry(xm)
	if err != nil {
		c.logger.Error().Err(err).Str("stream", stream).Str("id", xm.ID).Msg("Malformed message")
		if derr := c.deadLetterRaw(ctx, stream, xm, err); derr != nil {
			c.logger.Error().Err(derr).Str("id", xm.ID).Msg("Failed to dead-letter malformed message")
		}
		return false
	}
	msg.Stream, msg.StreamID = stream, xm.ID
	submit(msg)
	return true
}

func decodeEntry(xm redis.XMessage) (*Message, error) {
	raw, ok := xm.Values[dataField].(string)
	if !ok {
		return nil, fmt.Errorf("entry %s has no %s field", xm.ID, dataField)
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("entry %s: %w", xm.ID, err)
	}
	return &msg, nil
}

func (c *Consumer) deadLetterRaw(ctx context.Context, stream string, xm redis.XMessage, cause error) error {
	values := map[string]interface{}{
		"error":       cause.Error(),
		"original_id": xm.ID,
		"failed_at":   c.now().UTC().Format(time.RFC3339),
		"consumer":    c.name,
	}
	for k, v := range xm.Values {
		values["original_"+k] = v
	}
	err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: stream + deadSuffix, ID: "*", Values: values}).Err()
	if err != nil {
		return fmt.Errorf("failed to dead-letter %s: %w", xm.ID, err)
	}
	return c.client.XAck(ctx, stream, c.group, xm.ID).Err()
}

// Ack removes a finished message from the pending list
func (c *Consumer) Ack(ctx context.Context, msg *Message) error {
	if err := c.client.XAck(ctx, msg.Stream, c.group, msg.StreamID).Err(); err != nil {
		return fmt.Errorf("failed to ack %s: %w", msg.StreamID, err)
	}
	return nil
}

// DeadLetter copies msg with the failure cause to the dead letter stream and acks it
func (c *Consumer) DeadLetter(ctx context.Context, msg *Message, cause error) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}

	err = c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterKey(c.prefix, msg.Queue),
		ID:     "*",
		Values: map[string]interface{}{
			dataField:     string(data),
			"error":       reason,
			"original_id": msg.StreamID,
			"failed_at":   c.now().UTC().Format(time.RFC3339),
			"consumer":    c.name,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to dead-letter %s: %w", msg.StreamID, err)
	}
	return c.Ack(ctx, msg)
}
