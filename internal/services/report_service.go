package services

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openprep/openprep/internal/cache"
	"github.com/openprep/openprep/internal/models"
	mongorepo "github.com/openprep/openprep/internal/repositories/mongo"
	"github.com/openprep/openprep/internal/utils"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 50
)

// ReportService summarizes an owner's completed interviews. It only reads.
type ReportService interface {
	History(ctx context.Context, ownerID string, limit int) ([]models.InterviewSummary, error)
	Stats(ctx context.Context, ownerID string) (*models.InterviewStats, error)
	Report(ctx context.Context, ownerID string, limit int) (*Report, error)
}

type Report struct {
	History []models.InterviewSummary `json:"history"`
	Stats   models.InterviewStats     `json:"stats"`
}

type reportService struct {
	repo mongorepo.InterviewRepository
	c    cache.Cache
	ttl  time.Duration
	log  *logrus.Logger
}

func NewReportService(repo mongorepo.InterviewRepository, c cache.Cache, ttl time.Duration, l *logrus.Logger) ReportService {
	if c == nil {
		c = cache.Noop{}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if l == nil {
		l = logrus.New()
	}
	return &reportService{repo: repo, c: c, ttl: ttl, log: l}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

func (s *reportService) History(ctx context.Context, ownerID string, limit int) ([]models.InterviewSummary, error) {
	const op = "ReportService.History"

	if ownerID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "ownerId is required", nil)
	}
	out, err := s.repo.ListCompleted(ctx, ownerID, int64(clampLimit(limit)))
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to list interview history", err)
	}
	if out == nil {
		out = []models.InterviewSummary{}
	}
	return out, nil
}

func (s *reportService) Stats(ctx context.Context, ownerID string) (*models.InterviewStats, error) {
	const op = "ReportService.Stats"

	if ownerID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "ownerId is required", nil)
	}
	aggs, err := s.repo.CompletedAggregates(ctx, ownerID)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to aggregate interview stats", err)
	}
	st := FoldStats(aggs)
	return &st, nil
}

// Report serves history and stats together, through the cache. The cached copy
// always holds MaxHistoryLimit entries so any limit can be cut from it. When the
// generation cannot be read the cache is bypassed.
func (s *reportService) Report(ctx context.Context, ownerID string, limit int) (*Report, error) {
	if ownerID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, "ReportService.Report", "ownerId is required", nil)
	}
	limit = clampLimit(limit)
	log := s.log.WithField("owner_id", ownerID)

	key := ""
	gen, err := s.c.Generation(ctx, cache.ReportGenKey(ownerID))
	if err != nil {
		log.WithError(err).Warn("report cache generation read failed")
	} else {
		key = cache.ReportKey(ownerID, gen)
	}

	var cached Report
	hit := false
	if key != "" {
		hit, err = s.c.GetJSON(ctx, key, &cached)
		if err != nil {
			log.WithError(err).Warn("report cache read failed")
		}
	}
	if !hit {
		history, err := s.History(ctx, ownerID, MaxHistoryLimit)
		if err != nil {
			return nil, err
		}
		stats, err := s.Stats(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		cached = Report{History: history, Stats: *stats}
		if key != "" {
			if err := s.c.SetJSON(ctx, key, cached, s.ttl); err != nil {
				log.WithError(err).Warn("report cache write failed")
			}
		}
	}

	if len(cached.History) > limit {
		cached.History = cached.History[:limit]
	}
	return &cached, nil
}

// FoldStats combines per-type aggregates. Every field is 0 when there are no sessions.
func FoldStats(aggs []models.TypeAggregate) models.InterviewStats {
	st := models.InterviewStats{ByType: map[models.InterviewType]int{}}

	var scoreSum, durationSum int64
	for _, a := range aggs {
		if a.Count == 0 {
			continue
		}
		st.TotalInterviews += a.Count
		st.ByType[a.Type] += a.Count
		scoreSum += a.ScoreSum
		durationSum += a.DurationSum
		if a.ScoreMax > st.BestScore {
			st.BestScore = a.ScoreMax
		}
	}
	if st.TotalInterviews > 0 {
		n := float64(st.TotalInterviews)
		st.AverageScore = int(math.Round(float64(scoreSum) / n))
		st.AverageDuration = int(math.Round(float64(durationSum) / n))
	}
	return st
}
