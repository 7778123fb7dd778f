package workers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/openprep/openprep/internal/notify"
	"github.com/openprep/openprep/internal/services"
)

// ReportWorkerPool consumes completion events and rebuilds the owner's cached
// report, so the history page after an interview is served from cache.
type ReportWorkerPool struct {
	Redis      *redis.Client
	Reports    services.ReportService
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *ReportWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Reports == nil {
		return errors.New("ReportWorkerPool missing dependency: Redis/Reports must be set")
	}
	if p.Stream == "" {
		p.Stream = notify.EventStream
	}
	if p.Group == "" {
		p.Group = "report-warmers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "w"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	// BUSYGROUP on restart is expected.
	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "$").Err()

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *ReportWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			p.Logger.WithError(err).WithField("consumer", consumer).Warn("event stream read failed")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				if err := p.Handle(ctx, msg.Values); err != nil {
					p.Logger.WithError(err).WithField("redis_id", msg.ID).Warn("report warm failed")
				}
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

// Handle warms the report for one stream entry. Entries of other event types
// are ignored.
func (p *ReportWorkerPool) Handle(ctx context.Context, values map[string]any) error {
	typ, _ := values["type"].(string)
	ownerID, _ := values["owner_id"].(string)
	if typ != notify.EventInterviewCompleted || ownerID == "" {
		return nil
	}

	rep, err := p.Reports.Report(ctx, ownerID, services.MaxHistoryLimit)
	if err != nil {
		return err
	}
	p.Logger.WithFields(logrus.Fields{
		"owner_id":   ownerID,
		"session_id": values["session_id"],
		"total":      rep.Stats.TotalInterviews,
	}).Debug("report warmed")
	return nil
}
