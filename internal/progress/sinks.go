package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"

	"scriptreel/internal/config"
)

// RedisSink publishes JSON events on a Redis pub/sub channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink connects to addr and verifies the connection.
func NewRedisSink(ctx context.Context, addr, channel string) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return NewRedisSinkWithClient(client, channel), nil
}

// NewRedisSinkWithClient wraps an existing client.
func NewRedisSinkWithClient(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

// Name implements Sink.
func (s *RedisSink) Name() string { return "redis" }

// Publish implements Sink.
func (s *RedisSink) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode progress event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", s.channel, err)
	}
	return nil
}

// Close implements Sink.
func (s *RedisSink) Close() error { return s.client.Close() }

// PubSubSink publishes JSON events to a Google Pub/Sub topic.
type PubSubSink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubSink opens a client for project with application default
// credentials.
func NewPubSubSink(ctx context.Context, project, topic string) (*PubSubSink, error) {
	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("pubsub client %s: %w", project, err)
	}
	return &PubSubSink{client: client, topic: client.Topic(topic)}, nil
}

// Name implements Sink.
func (s *PubSubSink) Name() string { return "pubsub" }

// Publish implements Sink. It waits for the server acknowledgement.
func (s *PubSubSink) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode progress event: %w", err)
	}
	result := s.topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"generation_id": event.GenerationID,
			"stage":         event.Stage,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("pubsub publish %s: %w", s.topic.ID(), err)
	}
	return nil
}

// Close implements Sink.
func (s *PubSubSink) Close() error {
	s.topic.Stop()
	return s.client.Close()
}

// SinksFromConfig opens the sinks enabled in cfg. A sink that cannot connect
// is logged and skipped.
func SinksFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) []Sink {
	var sinks []Sink
	if addr := cfg.Progress.RedisAddr; addr != "" {
		sink, err := NewRedisSink(ctx, addr, cfg.Progress.RedisChannel)
		if err != nil {
			logger.Warn("redis progress sink disabled", "error", err, "event_type", "progress_sink_unavailable")
		} else {
			sinks = append(sinks, sink)
		}
	}
	if topic := cfg.Progress.PubSubTopic; topic != "" {
		sink, err := NewPubSubSink(ctx, cfg.Progress.PubSubProject, topic)
		if err != nil {
			logger.Warn("pubsub progress sink disabled", "error", err, "event_type", "progress_sink_unavailable")
		} else {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}
