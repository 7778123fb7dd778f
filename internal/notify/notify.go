// Package notify hands interview events to the notification pipeline. Delivery
// (email, push, in-app) happens downstream of the channel.
package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

const (
	EventInterviewCompleted = "interview_completed"

	// EventStream keeps completion events for in-process consumers (report warming).
	EventStream       = "interview:events"
	eventStreamMaxLen = 10000
)

type InterviewCompleted struct {
	Type          string `json:"type"`
	SessionID     string `json:"session_id"`
	OwnerID       string `json:"owner_id"`
	InterviewType string `json:"interview_type"`
	OverallScore  int    `json:"overall_score"`
}

type Publisher interface {
	InterviewCompleted(ctx context.Context, evt InterviewCompleted) error
}

func Channel(ownerID string) string {
	return "notifications:" + ownerID
}

type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// InterviewCompleted publishes to the owner's notification channel and appends
// to EventStream in one round trip.
func (p *RedisPublisher) InterviewCompleted(ctx context.Context, evt InterviewCompleted) error {
	evt.Type = EventInterviewCompleted
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, Channel(evt.OwnerID), b)
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: EventStream,
			MaxLen: eventStreamMaxLen,
			Approx: true,
			Values: map[string]any{
				"type":           evt.Type,
				"session_id":     evt.SessionID,
				"owner_id":       evt.OwnerID,
				"interview_type": evt.InterviewType,
				"overall_score":  evt.OverallScore,
			},
		})
		return nil
	})
	return err
}

type Noop struct{}

func (Noop) InterviewCompleted(context.Context, InterviewCompleted) error { return nil }
