package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/openprep/openprep/internal/cache"
	"github.com/openprep/openprep/internal/evaluator"
	"github.com/openprep/openprep/internal/models"
	"github.com/openprep/openprep/internal/notify"
	"github.com/openprep/openprep/internal/questionbank"
	"github.com/openprep/openprep/internal/quota"
	mongorepo "github.com/openprep/openprep/internal/repositories/mongo"
	pgrepo "github.com/openprep/openprep/internal/repositories/postgres"
	"github.com/openprep/openprep/internal/utils"
)

const MaxAnswerLength = 10000

type InterviewService interface {
	Start(ctx context.Context, owner models.Owner, typ models.InterviewType, ra *models.ResumeAnalysis) (*StartResult, error)
	SubmitAnswer(ctx context.Context, sessionID string, index int, answer string, timeSpent int) (*SubmitResult, error)
	Cleanup(ctx context.Context, ownerID string) (int64, error)
	FetchResults(ctx context.Context, sessionID string) (*models.InterviewSession, error)
	Get(ctx context.Context, sessionID string) (*models.InterviewSession, error)
}

type QuestionView struct {
	Index      int    `json:"index"`
	Question   string `json:"question"`
	Category   string `json:"category,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

type StartResult struct {
	SessionID            string               `json:"sessionId"`
	OwnerID              string               `json:"ownerId"`
	Type                 models.InterviewType `json:"type"`
	CurrentQuestionIndex int                  `json:"currentQuestionIndex"`
	TotalQuestions       int                  `json:"totalQuestions"`
	Question             string               `json:"question"`
	Category             string               `json:"category,omitempty"`
	Difficulty           string               `json:"difficulty,omitempty"`
	StartTime            time.Time            `json:"startTime"`
	Resumed              bool                 `json:"resumed,omitempty"`
	RemainingToday       *int                 `json:"remainingToday,omitempty"`
}

type SubmitResult struct {
	Completed    bool                 `json:"completed"`
	Evaluation   evaluator.Evaluation `json:"evaluation"`
	NextQuestion *QuestionView        `json:"nextQuestion,omitempty"`
	SessionID    string               `json:"sessionId,omitempty"`
	Assessment   *models.Assessment   `json:"assessment,omitempty"`
}

// InterviewDeps wires the orchestrator. Only Repo and Bank are required.
type InterviewDeps struct {
	Repo     mongorepo.InterviewRepository
	Bank     *questionbank.Bank
	Profiles pgrepo.ResumeProfileRepository
	Quota    quota.Limiter
	Cache    cache.Cache
	Notifier notify.Publisher
	Logger   *logrus.Logger
	Now      func() time.Time
}

type interviewService struct {
	repo     mongorepo.InterviewRepository
	bank     *questionbank.Bank
	profiles pgrepo.ResumeProfileRepository
	quota    quota.Limiter
	cache    cache.Cache
	notifier notify.Publisher
	log      *logrus.Logger
	now      func() time.Time
}

func NewInterviewService(d InterviewDeps) InterviewService {
	s := &interviewService{
		repo:     d.Repo,
		bank:     d.Bank,
		profiles: d.Profiles,
		quota:    d.Quota,
		cache:    d.Cache,
		notifier: d.Notifier,
		log:      d.Logger,
		now:      d.Now,
	}
	if s.quota == nil {
		s.quota = quota.Unlimited{}
	}
	if s.cache == nil {
		s.cache = cache.Noop{}
	}
	if s.notifier == nil {
		s.notifier = notify.Noop{}
	}
	if s.log == nil {
		s.log = logrus.New()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// AnonymousOwnerID derives a practice identity from the request time. It is not
// linkable across browser sessions.
func AnonymousOwnerID(now time.Time) string {
	return "anon-" + strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()[:8]
}

func (s *interviewService) Start(ctx context.Context, owner models.Owner, typ models.InterviewType, ra *models.ResumeAnalysis) (*StartResult, error) {
	const op = "InterviewService.Start"

	if !typ.Valid() {
		return nil, utils.E(utils.CodeInvalidArgument, op, "type must be one of technical, hr, resume-based", nil)
	}
	if owner.ID == "" {
		owner.ID = AnonymousOwnerID(s.now())
		owner.Anonymous = true
	}

	if typ == models.InterviewResumeBased {
		resolved, err := s.resolveResume(ctx, owner, ra)
		if err != nil {
			return nil, err
		}
		ra = resolved
	} else {
		ra = nil
	}

	log := s.log.WithFields(logrus.Fields{"owner_id": owner.ID, "type": typ})

	// The quota is reserved before an existing session is completed or
	// abandoned, so a refused Start leaves the owner's sessions untouched.
	// Every path that does not create a session hands the reservation back.
	reserved := false
	remaining := -1
	release := func() {
		if reserved {
			s.releaseQuota(ctx, owner)
			reserved = false
		}
	}

	// A losing concurrent Create surfaces as ErrConflict; the second pass then
	// sees the winner's session and resumes or replaces it.
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.repo.FindInProgress(ctx, owner.ID)
		switch {
		case err == nil:
			if existing.Type == typ && existing.NextIndex < len(existing.Questions) {
				release()
				log.WithField("session_id", existing.SessionID).Info("interview resumed")
				return resumeView(existing), nil
			}
		case errors.Is(err, utils.ErrNotFound):
			existing = nil
		default:
			release()
			return nil, utils.E(utils.CodeUnavailable, op, "failed to look up active session", err)
		}

		if !reserved {
			n, err := s.reserveQuota(ctx, owner)
			if err != nil {
				return nil, err
			}
			reserved, remaining = true, n
		}

		if existing != nil {
			if err := s.replace(ctx, existing, typ, log); err != nil {
				release()
				return nil, err
			}
		}

		res, err := s.create(ctx, owner, typ, ra)
		if errors.Is(err, utils.ErrConflict) {
			continue
		}
		if err != nil {
			release()
			return nil, err
		}
		if remaining >= 0 {
			res.RemainingToday = &remaining
		}
		log.WithField("session_id", res.SessionID).Info("interview created")
		return res, nil
	}
	release()
	return nil, utils.E(utils.CodeConflict, op, "another interview was started concurrently; retry", nil)
}

// replace clears the way for a new session: a same-type session with every
// answer stored but no completion write is completed, anything else abandoned.
func (s *interviewService) replace(ctx context.Context, existing *models.InterviewSession, typ models.InterviewType, log *logrus.Entry) error {
	const op = "InterviewService.Start"

	log = log.WithField("session_id", existing.SessionID)
	if existing.Type == typ {
		if err := s.finalize(ctx, existing); err != nil && !errors.Is(err, utils.ErrConflict) {
			return utils.E(utils.CodeUnavailable, op, "failed to complete stale session", err)
		}
		log.Warn("stale fully-answered interview force-completed")
		return nil
	}

	err := s.repo.Abandon(ctx, existing.SessionID, s.now())
	if err != nil && !errors.Is(err, utils.ErrConflict) && !errors.Is(err, utils.ErrNotFound) {
		return utils.E(utils.CodeUnavailable, op, "failed to abandon previous session", err)
	}
	log.WithField("previous_type", existing.Type).Info("previous interview abandoned")
	return nil
}

func (s *interviewService) reserveQuota(ctx context.Context, owner models.Owner) (int, error) {
	const op = "InterviewService.Start"

	n, err := s.quota.Consume(ctx, owner)
	if errors.Is(err, quota.ErrLimitReached) {
		return 0, utils.E(utils.CodeResourceExhausted, op, "daily interview limit reached for your plan", err)
	}
	if err != nil {
		return 0, utils.E(utils.CodeUnavailable, op, "failed to check interview quota", err)
	}
	return n, nil
}

func (s *interviewService) releaseQuota(ctx context.Context, owner models.Owner) {
	if err := s.quota.Release(ctx, owner); err != nil {
		s.log.WithError(err).WithField("owner_id", owner.ID).Warn("failed to release interview quota")
	}
}

func (s *interviewService) resolveResume(ctx context.Context, owner models.Owner, ra *models.ResumeAnalysis) (*models.ResumeAnalysis, error) {
	const op = "InterviewService.Start"

	if ra != nil && (len(ra.Skills) > 0 || len(ra.Technologies) > 0) {
		if len(ra.Skills) == 0 || len(ra.Technologies) == 0 {
			return nil, utils.E(utils.CodeInvalidArgument, op, "resumeAnalysis.skills and resumeAnalysis.technologies are required", nil)
		}
		return ra, nil
	}

	if owner.Anonymous || s.profiles == nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "resumeAnalysis is required for resume-based interviews", nil)
	}

	p, err := s.profiles.GetByUserID(ctx, owner.ID)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "upload a resume before starting a resume-based interview", err)
	}
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to load resume profile", err)
	}
	if len(p.Skills) == 0 || len(p.Technologies) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "stored resume has no skills or technologies", nil)
	}
	return &models.ResumeAnalysis{Skills: p.Skills, Technologies: p.Technologies}, nil
}

func (s *interviewService) create(ctx context.Context, owner models.Owner, typ models.InterviewType, ra *models.ResumeAnalysis) (*StartResult, error) {
	const op = "InterviewService.Start"

	var qs []questionbank.Question
	if typ == models.InterviewResumeBased {
		qs = s.bank.GenerateResumeBasedQuestions(*ra, typ.QuestionCount())
	} else {
		qs = s.bank.GetRandomQuestions(typ, typ.QuestionCount())
	}
	if len(qs) == 0 {
		return nil, utils.E(utils.CodeInternal, op, "question bank has no questions for "+string(typ), nil)
	}

	records := make([]models.QuestionRecord, len(qs))
	for i, q := range qs {
		records[i] = q.Record()
	}

	now := s.now().UTC()
	sess := &models.InterviewSession{
		SessionID:     uuid.NewString(),
		OwnerID:       owner.ID,
		Anonymous:     owner.Anonymous,
		Type:          typ,
		Status:        models.StatusInProgress,
		Questions:     records,
		ResumeContext: ra,
		CreatedAt:     now,
		StartTime:     now,
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, err
		}
		return nil, utils.E(utils.CodeUnavailable, op, "failed to create session", err)
	}

	res := resumeView(sess)
	res.Resumed = false
	return res, nil
}

func resumeView(s *models.InterviewSession) *StartResult {
	idx := s.NextIndex
	q := s.Questions[idx]
	return &StartResult{
		SessionID:            s.SessionID,
		OwnerID:              s.OwnerID,
		Type:                 s.Type,
		CurrentQuestionIndex: idx,
		TotalQuestions:       len(s.Questions),
		Question:             q.Question,
		Category:             q.Category,
		Difficulty:           q.Difficulty,
		StartTime:            s.StartTime,
		Resumed:              true,
	}
}

func (s *interviewService) SubmitAnswer(ctx context.Context, sessionID string, index int, answer string, timeSpent int) (*SubmitResult, error) {
	const op = "InterviewService.SubmitAnswer"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "sessionId is required", nil)
	}
	if timeSpent < 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "timeSpent must not be negative", nil)
	}
	if utf8.RuneCountInString(answer) > MaxAnswerLength {
		return nil, utils.E(utils.CodeInvalidArgument, op, fmt.Sprintf("answer exceeds %d characters", MaxAnswerLength), nil)
	}

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(sess.Questions) {
		return nil, utils.E(utils.CodeInvalidArgument, op, fmt.Sprintf("questionIndex must be between 0 and %d", len(sess.Questions)-1), nil)
	}
	if sess.Status != models.StatusInProgress {
		return nil, utils.E(utils.CodeInvalidState, op, "interview is "+string(sess.Status), nil)
	}
	if index != sess.NextIndex {
		return nil, utils.E(utils.CodeInvalidArgument, op, fmt.Sprintf("expected answer for question %d", sess.NextIndex), nil)
	}

	rec := sess.Questions[index]
	eval := evaluator.Evaluate(evaluator.Input{
		Answer:    answer,
		Keywords:  rec.Keywords,
		Category:  rec.Category,
		TimeSpent: timeSpent,
		Resume:    sess.ResumeContext,
	})
	rec.Answer = answer
	rec.TimeSpent = timeSpent
	rec.Score = eval.Score
	rec.Feedback = eval.Feedback
	rec.Answered = true
	sess.Questions[index] = rec

	last := index == len(sess.Questions)-1
	var done *models.Completion
	if last {
		c := s.completion(sess)
		done = &c
	}

	if err := s.repo.RecordAnswer(ctx, sessionID, index, rec, done); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, utils.E(utils.CodeConflict, op, "interview changed concurrently; reload and retry", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "failed to save answer", err)
	}

	log := s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"owner_id":   sess.OwnerID,
		"index":      index,
		"score":      eval.Score,
	})

	if last {
		s.afterCompletion(ctx, sess, done.Assessment)
		log.WithField("overall_score", done.Assessment.OverallScore).Info("interview completed")
		return &SubmitResult{
			Completed:  true,
			Evaluation: eval,
			SessionID:  sessionID,
			Assessment: &done.Assessment,
		}, nil
	}

	log.Debug("answer recorded")
	next := sess.Questions[index+1]
	return &SubmitResult{
		Completed:  false,
		Evaluation: eval,
		NextQuestion: &QuestionView{
			Index:      index + 1,
			Question:   next.Question,
			Category:   next.Category,
			Difficulty: next.Difficulty,
		},
	}, nil
}

func (s *interviewService) completion(sess *models.InterviewSession) models.Completion {
	end := s.now().UTC()
	dur := int64(end.Sub(sess.StartTime).Seconds())
	if dur < 0 {
		dur = 0
	}
	return models.Completion{
		EndTime:         end,
		DurationSeconds: dur,
		Assessment:      evaluator.GenerateOverallAssessment(sess.Questions, sess.Type),
	}
}

func (s *interviewService) finalize(ctx context.Context, sess *models.InterviewSession) error {
	done := s.completion(sess)
	if err := s.repo.Complete(ctx, sess.SessionID, done); err != nil {
		return err
	}
	s.afterCompletion(ctx, sess, done.Assessment)
	return nil
}

// afterCompletion moves the owner's report cache to a new generation and emits
// the completion event.
// Both are best effort: the session is already persisted.
func (s *interviewService) afterCompletion(ctx context.Context, sess *models.InterviewSession, a models.Assessment) {
	log := s.log.WithFields(logrus.Fields{"session_id": sess.SessionID, "owner_id": sess.OwnerID})
	if err := s.cache.Bump(ctx, cache.ReportGenKey(sess.OwnerID)); err != nil {
		log.WithError(err).Warn("failed to invalidate report cache")
	}
	if err := s.notifier.InterviewCompleted(ctx, notify.InterviewCompleted{
		SessionID:     sess.SessionID,
		OwnerID:       sess.OwnerID,
		InterviewType: string(sess.Type),
		OverallScore:  a.OverallScore,
	}); err != nil {
		log.WithError(err).Warn("failed to publish completion event")
	}
}

func (s *interviewService) Cleanup(ctx context.Context, ownerID string) (int64, error) {
	const op = "InterviewService.Cleanup"

	if ownerID == "" {
		return 0, utils.E(utils.CodeInvalidArgument, op, "ownerId is required", nil)
	}
	n, err := s.repo.AbandonAllInProgress(ctx, ownerID, s.now())
	if err != nil {
		return 0, utils.E(utils.CodeUnavailable, op, "failed to abandon sessions", err)
	}
	s.log.WithFields(logrus.Fields{"owner_id": ownerID, "affected": n}).Info("interview cleanup")
	return n, nil
}

func (s *interviewService) FetchResults(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	const op = "InterviewService.FetchResults"

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusCompleted {
		return nil, utils.E(utils.CodeNotFound, op, "interview results not found", nil)
	}
	return sess, nil
}

func (s *interviewService) Get(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	const op = "InterviewService.Get"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "sessionId is required", nil)
	}

	out, err := s.repo.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "failed to get session", err)
	}
	return out, nil
}
