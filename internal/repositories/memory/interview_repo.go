// Package memory holds in-process repositories with the same semantics as the
// Mongo ones, including the conditional-write preconditions. Used by tests and
// local runs without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openprep/openprep/internal/models"
	"github.com/openprep/openprep/internal/utils"
)

type InterviewRepo struct {
	mu       sync.RWMutex
	sessions map[string]*models.InterviewSession
}

func NewInterviewRepo() *InterviewRepo {
	return &InterviewRepo{sessions: make(map[string]*models.InterviewSession)}
}

func (r *InterviewRepo) Create(ctx context.Context, s *models.InterviewSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.SessionID]; ok {
		return utils.ErrConflict
	}
	if s.Status == models.StatusInProgress {
		for _, other := range r.sessions {
			if other.OwnerID == s.OwnerID && other.Status == models.StatusInProgress {
				return utils.ErrConflict
			}
		}
	}
	r.sessions[s.SessionID] = clone(s)
	return nil
}

func (r *InterviewRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return clone(s), nil
}

func (r *InterviewRepo) FindInProgress(ctx context.Context, ownerID string) (*models.InterviewSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.OwnerID == ownerID && s.Status == models.StatusInProgress {
			return clone(s), nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r *InterviewRepo) RecordAnswer(ctx context.Context, sessionID string, index int, rec models.QuestionRecord, done *models.Completion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.Status != models.StatusInProgress || s.NextIndex != index || index >= len(s.Questions) {
		return utils.ErrConflict
	}
	s.Questions[index] = rec
	s.NextIndex = index + 1
	if done != nil {
		applyCompletion(s, *done)
	}
	return nil
}

func (r *InterviewRepo) Complete(ctx context.Context, sessionID string, done models.Completion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.Status != models.StatusInProgress {
		return utils.ErrConflict
	}
	applyCompletion(s, done)
	return nil
}

func (r *InterviewRepo) Abandon(ctx context.Context, sessionID string, endedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return utils.ErrNotFound
	}
	if s.Status != models.StatusInProgress {
		return utils.ErrConflict
	}
	abandon(s, endedAt)
	return nil
}

func (r *InterviewRepo) AbandonAllInProgress(ctx context.Context, ownerID string, endedAt time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.OwnerID == ownerID && s.Status == models.StatusInProgress {
			abandon(s, endedAt)
			n++
		}
	}
	return n, nil
}

func (r *InterviewRepo) ListCompleted(ctx context.Context, ownerID string, limit int64) ([]models.InterviewSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var done []*models.InterviewSession
	for _, s := range r.sessions {
		if s.OwnerID == ownerID && s.Status == models.StatusCompleted {
			done = append(done, s)
		}
	}

	sort.Slice(done, func(i, j int) bool { return done[i].CreatedAt.After(done[j].CreatedAt) })
	if int64(len(done)) > limit {
		done = done[:limit]
	}

	out := make([]models.InterviewSummary, 0, len(done))
	for _, s := range done {
		out = append(out, models.InterviewSummary{
			SessionID:    s.SessionID,
			Type:         s.Type,
			Date:         s.CreatedAt,
			Duration:     s.DurationSeconds,
			OverallScore: s.OverallScore,
		})
	}
	return out, nil
}

func (r *InterviewRepo) CompletedAggregates(ctx context.Context, ownerID string) ([]models.TypeAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	byType := map[models.InterviewType]*models.TypeAggregate{}
	for _, s := range r.sessions {
		if s.OwnerID != ownerID || s.Status != models.StatusCompleted {
			continue
		}
		agg, ok := byType[s.Type]
		if !ok {
			agg = &models.TypeAggregate{Type: s.Type, ScoreMax: s.OverallScore}
			byType[s.Type] = agg
		}
		agg.Count++
		agg.ScoreSum += int64(s.OverallScore)
		agg.DurationSum += s.DurationSeconds
		if s.OverallScore > agg.ScoreMax {
			agg.ScoreMax = s.OverallScore
		}
	}

	out := make([]models.TypeAggregate, 0, len(byType))
	for _, agg := range byType {
		out = append(out, *agg)
	}
	return out, nil
}

func applyCompletion(s *models.InterviewSession, done models.Completion) {
	end := done.EndTime.UTC()
	s.Status = models.StatusCompleted
	s.EndTime = &end
	s.DurationSeconds = done.DurationSeconds
	s.OverallScore = done.Assessment.OverallScore
	s.Strengths = append([]string(nil), done.Assessment.Strengths...)
	s.Improvements = append([]string(nil), done.Assessment.Improvements...)
	s.OverallFeedback = done.Assessment.Feedback
}

func abandon(s *models.InterviewSession, endedAt time.Time) {
	end := endedAt.UTC()
	s.Status = models.StatusAbandoned
	s.EndTime = &end
	s.DurationSeconds = int64(end.Sub(s.StartTime).Seconds())
	if s.DurationSeconds < 0 {
		s.DurationSeconds = 0
	}
}

func clone(s *models.InterviewSession) *models.InterviewSession {
	c := *s
	c.Questions = append([]models.QuestionRecord(nil), s.Questions...)
	c.Strengths = append([]string(nil), s.Strengths...)
	c.Improvements = append([]string(nil), s.Improvements...)
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	if s.ResumeContext != nil {
		rc := *s.ResumeContext
		c.ResumeContext = &rc
	}
	return &c
}
