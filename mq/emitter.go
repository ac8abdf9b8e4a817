// Package mq publishes domain events on a Redis channel so other processes
// can react to catalogue and session changes.
package mq

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// Channel is the Pub/Sub channel every event is published on.
const Channel = "recipebox-events"

// Event describes one change. EntityType is "user", "ingredient", "recipe"
// or "session"; Method is what happened to it.
type Event struct {
	EntityType string `json:"entity_type"`
	Method     string `json:"method"`
	EntityID   string `json:"entity_id"`
	UserID     string `json:"user_id,omitempty"`
}

// Emitter delivers events. Emit never fails the caller; delivery problems
// are logged.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, e Event)

func (f EmitterFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }

// Nop drops every event.
var Nop Emitter = EmitterFunc(func(context.Context, Event) {})

func mqLog() *log.Logger { return log.Default().WithPrefix("mq") }

// RedisEmitter publishes events as JSON on Channel.
type RedisEmitter struct {
	client redis.UniversalClient
}

func NewRedisEmitter(client redis.UniversalClient) *RedisEmitter {
	return &RedisEmitter{client: client}
}

func (r *RedisEmitter) Emit(ctx context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		mqLog().Error("failed to marshal event", "event", e, "err", err)
		return
	}
	// The request context may already be done once the handler has written
	// its response.
	if err := r.client.Publish(context.WithoutCancel(ctx), Channel, data).Err(); err != nil {
		mqLog().Warn("failed to publish event", "channel", Channel, "err", err)
		return
	}
	mqLog().Debug("event published", "type", e.EntityType, "method", e.Method, "id", e.EntityID)
}

// Listen subscribes to Channel and calls handle for each event until ctx is
// cancelled. Malformed payloads are skipped.
func Listen(ctx context.Context, client redis.UniversalClient, handle func(Event)) error {
	sub := client.Subscribe(ctx, Channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	mqLog().Info("listening for events", "channel", Channel)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				mqLog().Warn("skipping malformed event", "err", err)
				continue
			}
			handle(e)
		}
	}
}
