package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openprep/openprep/internal/cache"
	"github.com/openprep/openprep/internal/logger"
	"github.com/openprep/openprep/internal/models"
	"github.com/openprep/openprep/internal/quota"
	"github.com/openprep/openprep/internal/repositories/memory"
	"github.com/openprep/openprep/internal/utils"
)

type fixture struct {
	svc      InterviewService
	repo     *memory.InterviewRepo
	profiles *memory.ResumeProfileRepo
	clock    *testClock
	notifier *recordingNotifier
	cache    *mapCache
}

func newFixture(t *testing.T, q quota.Limiter) *fixture {
	t.Helper()
	f := &fixture{
		repo:     memory.NewInterviewRepo(),
		profiles: memory.NewResumeProfileRepo(),
		clock:    newTestClock(),
		notifier: &recordingNotifier{},
		cache:    newMapCache(),
	}
	f.svc = NewInterviewService(InterviewDeps{
		Repo:     f.repo,
		Bank:     newTestBank(t),
		Profiles: f.profiles,
		Quota:    q,
		Cache:    f.cache,
		Notifier: f.notifier,
		Logger:   logger.Discard(),
		Now:      f.clock.Now,
	})
	return f
}

var alice = models.Owner{ID: "user-alice", Plan: models.PlanFree}

func requireCode(t *testing.T, err error, code utils.Code) {
	t.Helper()
	if !utils.IsCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestStartCreatesTechnicalSession(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.svc.Start(context.Background(), alice, models.InterviewTechnical, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.CurrentQuestionIndex != 0 || res.TotalQuestions != 5 || res.Resumed {
		t.Fatalf("unexpected start result %+v", res)
	}
	if res.Question == "" || res.Category == "" {
		t.Fatalf("expected current question details, got %+v", res)
	}

	sess, err := f.repo.GetBySessionID(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Status != models.StatusInProgress || len(sess.Questions) != 5 {
		t.Fatalf("unexpected session %+v", sess)
	}
	for i, q := range sess.Questions {
		if q.Answered || q.Answer != "" || q.Score != 0 || q.TimeSpent != 0 {
			t.Fatalf("record %d not blank: %+v", i, q)
		}
		if len(q.Keywords) == 0 {
			t.Fatalf("record %d carries no keywords", i)
		}
	}
}

func TestTechnicalInterviewEndToEnd(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	start, err := f.svc.Start(ctx, alice, models.InterviewTechnical, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i < 5; i++ {
		f.clock.Advance(45 * time.Second)
		res, err := f.svc.SubmitAnswer(ctx, start.SessionID, i, "uses quicksort and binary search", 45)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if res.Evaluation.Score <= 0 {
			t.Fatalf("submit %d: expected positive score, got %d", i, res.Evaluation.Score)
		}

		sess, _ := f.repo.GetBySessionID(ctx, start.SessionID)
		if len(sess.Questions) != 5 {
			t.Fatalf("question list length changed to %d", len(sess.Questions))
		}

		if i < 4 {
			if res.Completed {
				t.Fatalf("submit %d: unexpected completion", i)
			}
			if sess.Status != models.StatusInProgress {
				t.Fatalf("submit %d: status changed to %s", i, sess.Status)
			}
			if res.NextQuestion == nil || res.NextQuestion.Index != i+1 {
				t.Fatalf("submit %d: unexpected next question %+v", i, res.NextQuestion)
			}
			if res.NextQuestion.Question != sess.Questions[i+1].Question {
				t.Fatalf("submit %d: next question does not match record", i)
			}
			continue
		}

		if !res.Completed || res.SessionID != start.SessionID {
			t.Fatalf("expected completion, got %+v", res)
		}
	}

	sess, err := f.svc.FetchResults(ctx, start.SessionID)
	if err != nil {
		t.Fatalf("fetch results: %v", err)
	}
	if sess.Status != models.StatusCompleted || sess.EndTime == nil {
		t.Fatalf("expected completed session with end time, got %+v", sess)
	}
	total := 0
	for _, q := range sess.Questions {
		if !q.Answered || q.Feedback == "" {
			t.Fatalf("record not evaluated: %+v", q)
		}
		total += q.Score
	}
	want := int(math.Round(float64(total) / 5))
	if sess.OverallScore != want {
		t.Fatalf("expected overall score %d, got %d", want, sess.OverallScore)
	}
	if sess.DurationSeconds != 225 {
		t.Fatalf("expected 225s duration, got %d", sess.DurationSeconds)
	}
	if sess.OverallFeedback == "" {
		t.Fatalf("expected narrative feedback")
	}

	if len(f.notifier.events) != 1 || f.notifier.events[0].SessionID != start.SessionID {
		t.Fatalf("expected one completion event, got %+v", f.notifier.events)
	}
	if len(f.cache.bumped) != 1 || f.cache.bumped[0] != cache.ReportGenKey(alice.ID) {
		t.Fatalf("expected report cache generation bump, got %v", f.cache.bumped)
	}
}

func TestStartResumesSameTypeSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Start(ctx, alice, models.InterviewTechnical, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.SubmitAnswer(ctx, first.SessionID, 0, "quicksort", 30); err != nil {
		t.Fatalf("submit: %v", err)
	}

	again, err := f.svc.Start(ctx, alice, models.InterviewTechnical, nil)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if again.SessionID != first.SessionID || !again.Resumed || again.CurrentQuestionIndex != 1 {
		t.Fatalf("expected resume at question 1, got %+v", again)
	}
}

func TestResumeCountsEmptyAnswerAsAnswered(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, _ := f.svc.Start(ctx, alice, models.InterviewHR, nil)
	res, err := f.svc.SubmitAnswer(ctx, first.SessionID, 0, "", 5)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Evaluation.Score != 0 {
		t.Fatalf("expected 0 for empty answer, got %d", res.Evaluation.Score)
	}

	again, _ := f.svc.Start(ctx, alice, models.InterviewHR, nil)
	if again.CurrentQuestionIndex != 1 {
		t.Fatalf("expected resume past the skipped answer, got %d", again.CurrentQuestionIndex)
	}
}

func TestStartDifferentTypeAbandonsPrevious(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tech, err := f.svc.Start(ctx, alice, models.InterviewTechnical, nil)
	if err != nil {
		t.Fatalf("start technical: %v", err)
	}
	f.clock.Advance(time.Minute)

	hr, err := f.svc.Start(ctx, alice, models.InterviewHR, nil)
	if err != nil {
		t.Fatalf("start hr: %v", err)
	}
	if hr.SessionID == tech.SessionID || hr.Type != models.InterviewHR || hr.TotalQuestions != 5 || hr.Resumed {
		t.Fatalf("expected a brand-new hr session, got %+v", hr)
	}

	old, err := f.svc.Get(ctx, tech.SessionID)
	if err != nil {
		t.Fatalf("get old session: %v", err)
	}
	if old.Status != models.StatusAbandoned || old.EndTime == nil {
		t.Fatalf("expected abandoned with end time, got status=%s end=%v", old.Status, old.EndTime)
	}
	if old.DurationSeconds != 60 {
		t.Fatalf("expected 60s duration, got %d", old.DurationSeconds)
	}

	_, err = f.svc.FetchResults(ctx, tech.SessionID)
	requireCode(t, err, utils.CodeNotFound)

	active, err := f.repo.FindInProgress(ctx, alice.ID)
	if err != nil || active.SessionID != hr.SessionID {
		t.Fatalf("expected hr session to be the only in-progress one, got %+v, %v", active, err)
	}
}

func TestStartForceCompletesFullyAnsweredSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	stale := &models.InterviewSession{
		SessionID: "stale-1",
		OwnerID:   alice.ID,
		Type:      models.InterviewTechnical,
		Status:    models.StatusInProgress,
		Questions: []models.QuestionRecord{
			{Question: "q1", Category: "algorithms", Answer: "a", Score: 80, Answered: true},
			{Question: "q2", Category: "algorithms", Answer: "b", Score: 60, Answered: true},
		},
		NextIndex: 2,
		StartTime: f.clock.Now().Add(-time.Minute),
	}
	if err := f.repo.Create(ctx, stale); err != nil {
		t.Fatalf("seed stale session: %v", err)
	}

	res, err := f.svc.Start(ctx, alice, models.InterviewTechnical, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.SessionID == stale.SessionID || res.CurrentQuestionIndex != 0 {
		t.Fatalf("expected a fresh session, got %+v", res)
	}

	done, err := f.svc.FetchResults(ctx, stale.SessionID)
	if err != nil {
		t.Fatalf("stale session should be completed: %v", err)
	}
	if done.OverallScore != 70 || done.Questions[0].Answer != "a" {
		t.Fatalf("answers must be preserved, got %+v", done)
	}
}

func TestSubmitAnswerErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.SubmitAnswer(ctx, "missing", 0, "x", 10)
	requireCode(t, err, utils.CodeNotFound)

	start, _ := f.svc.Start(ctx, alice, models.InterviewTechnical, nil)

	_, err = f.svc.SubmitAnswer(ctx, start.SessionID, 5, "x", 10)
	requireCode(t, err, utils.CodeInvalidArgument)
	_, err = f.svc.SubmitAnswer(ctx, start.SessionID, -1, "x", 10)
	requireCode(t, err, utils.CodeInvalidArgument)
	_, err = f.svc.SubmitAnswer(ctx, start.SessionID, 2, "skipping ahead", 10)
	requireCode(t, err, utils.CodeInvalidArgument)
	_, err = f.svc.SubmitAnswer(ctx, start.SessionID, 0, "x", -1)
	requireCode(t, err, utils.CodeInvalidArgument)
	_, err = f.svc.SubmitAnswer(ctx, start.SessionID, 0, strings.Repeat("a", MaxAnswerLength+1), 10)
	requireCode(t, err, utils.CodeInvalidArgument)
	_, err = f.svc.SubmitAnswer(ctx, start.SessionID, 0, strings.Repeat("é", MaxAnswerLength+1), 10)
	requireCode(t, err, utils.CodeInvalidArgument)

	if _, err := f.svc.SubmitAnswer(ctx, start.SessionID, 0, "quicksort", 30); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err = f.svc.SubmitAnswer(ctx, start.SessionID, 0, "rewrite", 30)
	requireCode(t, err, utils.CodeInvalidArgument)

	sess, _ := f.repo.GetBySessionID(ctx, start.SessionID)
	if sess.Questions[0].Answer != "quicksort" {
		t.Fatalf("answered record was overwritten: %+v", sess.Questions[0])
	}

	if _, err := f.svc.Cleanup(ctx, alice.ID); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	_, err = f.svc.SubmitAnswer(ctx, start.SessionID, 1, "late", 30)
	requireCode(t, err, utils.CodeInvalidState)
}

func TestSubmitAfterCompletionIsInvalidState(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	start, _ := f.svc.Start(ctx, alice, models.InterviewHR, nil)
	for i := 0; i < start.TotalQuestions; i++ {
		if _, err := f.svc.SubmitAnswer(ctx, start.SessionID, i, "I improve with team feedback", 60); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	_, err := f.svc.SubmitAnswer(ctx, start.SessionID, start.TotalQuestions-1, "again", 60)
	requireCode(t, err, utils.CodeInvalidState)
}

func TestCleanupAbandonsInProgress(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	start, _ := f.svc.Start(ctx, alice, models.InterviewTechnical, nil)
	n, err := f.svc.Cleanup(ctx, alice.ID)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 abandoned, got %d, %v", n, err)
	}

	sess, _ := f.svc.Get(ctx, start.SessionID)
	if sess.Status != models.StatusAbandoned || sess.EndTime == nil {
		t.Fatalf("expected abandoned session, got %+v", sess)
	}

	n, err = f.svc.Cleanup(ctx, alice.ID)
	if err != nil || n != 0 {
		t.Fatalf("expected no-op cleanup, got %d, %v", n, err)
	}

	_, err = f.svc.Cleanup(ctx, "")
	requireCode(t, err, utils.CodeInvalidArgument)
}

func TestFetchResultsOnlyForCompleted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	start, _ := f.svc.Start(ctx, alice, models.InterviewTechnical, nil)
	_, err := f.svc.FetchResults(ctx, start.SessionID)
	requireCode(t, err, utils.CodeNotFound)

	_, err = f.svc.FetchResults(ctx, "nope")
	requireCode(t, err, utils.CodeNotFound)
}

func TestStartValidatesType(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Start(context.Background(), alice, models.InterviewType("trivia"), nil)
	requireCode(t, err, utils.CodeInvalidArgument)
}

func TestAnonymousOwnerGetsGeneratedID(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.svc.Start(context.Background(), models.Owner{}, models.InterviewHR, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.HasPrefix(res.OwnerID, "anon-") {
		t.Fatalf("expected anonymous owner id, got %q", res.OwnerID)
	}
	sess, _ := f.svc.Get(context.Background(), res.SessionID)
	if !sess.Anonymous || sess.OwnerID != res.OwnerID {
		t.Fatalf("anonymous flag not stored: %+v", sess)
	}
}

func TestResumeBasedSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, models.Owner{}, models.InterviewResumeBased, nil)
	requireCode(t, err, utils.CodeInvalidArgument)

	_, err = f.svc.Start(ctx, alice, models.InterviewResumeBased, &models.ResumeAnalysis{Skills: []string{"go"}})
	requireCode(t, err, utils.CodeInvalidArgument)

	ra := &models.ResumeAnalysis{Skills: []string{"Go", "React"}, Technologies: []string{"Docker"}}
	res, err := f.svc.Start(ctx, alice, models.InterviewResumeBased, ra)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.TotalQuestions != 8 {
		t.Fatalf("expected 8 questions, got %d", res.TotalQuestions)
	}

	sess, _ := f.svc.Get(ctx, res.SessionID)
	if sess.ResumeContext == nil || len(sess.ResumeContext.Skills) != 2 {
		t.Fatalf("resume context not stored: %+v", sess.ResumeContext)
	}
	if len(sess.Questions[0].Keywords) == 0 {
		t.Fatalf("resume questions must carry keywords")
	}
}

func TestResumeBasedFallsBackToStoredProfile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, alice, models.InterviewResumeBased, nil)
	requireCode(t, err, utils.CodeInvalidArgument)

	if err := f.profiles.Upsert(ctx, &models.ResumeProfile{
		UserID:       alice.ID,
		Skills:       []string{"go"},
		Technologies: []string{"react"},
	}); err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	res, err := f.svc.Start(ctx, alice, models.InterviewResumeBased, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	sess, _ := f.svc.Get(ctx, res.SessionID)
	if sess.ResumeContext == nil || sess.ResumeContext.Skills[0] != "go" {
		t.Fatalf("expected stored profile as context, got %+v", sess.ResumeContext)
	}
}

func TestQuotaAppliesOnlyToNewSessions(t *testing.T) {
	limiter := quota.NewMemory(quota.Limits{models.PlanFree: 1}, nil)
	f := newFixture(t, limiter)
	ctx := context.Background()

	first, err := f.svc.Start(ctx, alice, models.InterviewTechnical, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if first.RemainingToday == nil || *first.RemainingToday != 0 {
		t.Fatalf("expected 0 remaining, got %v", first.RemainingToday)
	}

	if _, err := f.svc.Start(ctx, alice, models.InterviewTechnical, nil); err != nil {
		t.Fatalf("resume must not consume quota: %v", err)
	}

	_, err = f.svc.Start(ctx, alice, models.InterviewHR, nil)
	requireCode(t, err, utils.CodeResourceExhausted)
}

func TestRefusedStartKeepsExistingSession(t *testing.T) {
	limiter := quota.NewMemory(quota.Limits{models.PlanFree: 1}, nil)
	f := newFixture(t, limiter)
	ctx := context.Background()

	tech, err := f.svc.Start(ctx, alice, models.InterviewTechnical, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.SubmitAnswer(ctx, tech.SessionID, 0, "quicksort", 30); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = f.svc.Start(ctx, alice, models.InterviewHR, nil)
	requireCode(t, err, utils.CodeResourceExhausted)

	old, err := f.svc.Get(ctx, tech.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if old.Status != models.StatusInProgress || old.EndTime != nil || old.NextIndex != 1 {
		t.Fatalf("refused start must not touch the active session, got status=%s next=%d", old.Status, old.NextIndex)
	}

	again, err := f.svc.Start(ctx, alice, models.InterviewTechnical, nil)
	if err != nil || again.SessionID != tech.SessionID || again.CurrentQuestionIndex != 1 {
		t.Fatalf("expected to resume the kept session, got %+v, %v", again, err)
	}
}

func TestRefusedStartKeepsFullyAnsweredSession(t *testing.T) {
	limiter := quota.NewMemory(quota.Limits{models.PlanFree: 0, models.PlanGuest: 1}, nil)
	f := newFixture(t, limiter)
	ctx := context.Background()
	guest := models.Owner{ID: "anon-1-abcdef12", Anonymous: true}

	if _, err := limiter.Consume(ctx, guest); err != nil {
		t.Fatalf("use up quota: %v", err)
	}
	stale := &models.InterviewSession{
		SessionID: "stale-guest",
		OwnerID:   guest.ID,
		Anonymous: true,
		Type:      models.InterviewHR,
		Status:    models.StatusInProgress,
		Questions: []models.QuestionRecord{{Question: "q", Category: "teamwork", Score: 50, Answered: true}},
		NextIndex: 1,
		StartTime: f.clock.Now(),
	}
	if err := f.repo.Create(ctx, stale); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := f.svc.Start(ctx, guest, models.InterviewHR, nil)
	requireCode(t, err, utils.CodeResourceExhausted)

	got, _ := f.svc.Get(ctx, stale.SessionID)
	if got.Status != models.StatusInProgress {
		t.Fatalf("expected stale session left in progress, got %s", got.Status)
	}
	if len(f.notifier.events) != 0 {
		t.Fatalf("no completion event expected, got %+v", f.notifier.events)
	}
}

// racingRepo lets a competing Start win the first Create.
type racingRepo struct {
	*memory.InterviewRepo
	competitor *models.InterviewSession
}

func (r *racingRepo) Create(ctx context.Context, s *models.InterviewSession) error {
	if r.competitor != nil {
		c := r.competitor
		r.competitor = nil
		if err := r.InterviewRepo.Create(ctx, c); err != nil {
			return err
		}
	}
	return r.InterviewRepo.Create(ctx, s)
}

func TestStartReleasesQuotaWhenResumingConcurrentWinner(t *testing.T) {
	clock := newTestClock()
	limiter := quota.NewMemory(quota.Limits{models.PlanFree: 1}, clock.Now)
	repo := &racingRepo{
		InterviewRepo: memory.NewInterviewRepo(),
		competitor: &models.InterviewSession{
			SessionID: "winner",
			OwnerID:   alice.ID,
			Type:      models.InterviewTechnical,
			Status:    models.StatusInProgress,
			Questions: []models.QuestionRecord{{Question: "q1"}, {Question: "q2"}},
			StartTime: clock.Now(),
		},
	}
	svc := NewInterviewService(InterviewDeps{
		Repo:   repo,
		Bank:   newTestBank(t),
		Quota:  limiter,
		Logger: logger.Discard(),
		Now:    clock.Now,
	})
	ctx := context.Background()

	res, err := svc.Start(ctx, alice, models.InterviewTechnical, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.SessionID != "winner" || !res.Resumed {
		t.Fatalf("expected to resume the concurrent winner, got %+v", res)
	}

	remaining, err := limiter.Consume(ctx, alice)
	if err != nil || remaining != 0 {
		t.Fatalf("expected the reservation to be handed back, got %d, %v", remaining, err)
	}
}

func TestConcurrentStartsKeepOneInProgressSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.Start(ctx, alice, models.InterviewTechnical, nil)
			errs[i] = err
			if err == nil {
				ids[i] = res.SessionID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("start %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("start %d returned session %s, expected %s", i, ids[i], ids[0])
		}
	}
}

func TestRepositoryErrorsSurfaceAsUnavailable(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Start(ctx, alice, models.InterviewTechnical, nil)
	requireCode(t, err, utils.CodeUnavailable)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected wrapped context error, got %v", err)
	}
}

func TestAnswerLengthCountsCharacters(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	start, _ := f.svc.Start(ctx, alice, models.InterviewHR, nil)
	answer := strings.Repeat("é", 6000)
	if len(answer) <= MaxAnswerLength {
		t.Fatalf("answer must exceed the cap in bytes for this test")
	}
	if _, err := f.svc.SubmitAnswer(ctx, start.SessionID, 0, answer, 60); err != nil {
		t.Fatalf("6000-character answer rejected: %v", err)
	}

	sess, _ := f.svc.Get(ctx, start.SessionID)
	if sess.Questions[0].Answer != answer {
		t.Fatalf("answer not stored intact")
	}
}
