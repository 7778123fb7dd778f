package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openprep/openprep/internal/models"
	"github.com/openprep/openprep/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const InterviewCollection = "interview_sessions"

// InterviewRepository persists interview sessions. Conditional writes return
// utils.ErrConflict when their precondition no longer holds, and Create returns it
// when the owner already has an in-progress session.
type InterviewRepository interface {
	Create(ctx context.Context, s *models.InterviewSession) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.InterviewSession, error)
	FindInProgress(ctx context.Context, ownerID string) (*models.InterviewSession, error)
	RecordAnswer(ctx context.Context, sessionID string, index int, rec models.QuestionRecord, done *models.Completion) error
	Complete(ctx context.Context, sessionID string, done models.Completion) error
	Abandon(ctx context.Context, sessionID string, endedAt time.Time) error
	AbandonAllInProgress(ctx context.Context, ownerID string, endedAt time.Time) (int64, error)
	ListCompleted(ctx context.Context, ownerID string, limit int64) ([]models.InterviewSummary, error)
	CompletedAggregates(ctx context.Context, ownerID string) ([]models.TypeAggregate, error)
}

type interviewRepo struct {
	col *mongo.Collection
}

func NewInterviewRepo(db *mongo.Database) InterviewRepository {
	return &interviewRepo{col: db.Collection(InterviewCollection)}
}

func (r *interviewRepo) Create(ctx context.Context, s *models.InterviewSession) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, s)
	if mongo.IsDuplicateKeyError(err) {
		return utils.ErrConflict
	}
	return err
}

func (r *interviewRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	return r.findOne(ctx, bson.M{"session_id": sessionID})
}

func (r *interviewRepo) FindInProgress(ctx context.Context, ownerID string) (*models.InterviewSession, error) {
	return r.findOne(ctx, bson.M{"owner_id": ownerID, "status": models.StatusInProgress})
}

func (r *interviewRepo) findOne(ctx context.Context, filter bson.M) (*models.InterviewSession, error) {
	var s models.InterviewSession
	err := r.col.FindOne(ctx, filter).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// RecordAnswer writes record index and, when done is set, the completion fields in
// one single-document update, so either everything applies or nothing does.
func (r *interviewRepo) RecordAnswer(ctx context.Context, sessionID string, index int, rec models.QuestionRecord, done *models.Completion) error {
	set := bson.M{"next_index": index + 1}
	set[fmt.Sprintf("questions.%d", index)] = rec
	if done != nil {
		for k, v := range completionFields(*done) {
			set[k] = v
		}
	}

	res, err := r.col.UpdateOne(ctx,
		bson.M{
			"session_id": sessionID,
			"status":     models.StatusInProgress,
			"next_index": index,
		},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrConflict
	}
	return nil
}

func (r *interviewRepo) Complete(ctx context.Context, sessionID string, done models.Completion) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "status": models.StatusInProgress},
		bson.M{"$set": completionFields(done)},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrConflict
	}
	return nil
}

func completionFields(done models.Completion) bson.M {
	return bson.M{
		"status":           models.StatusCompleted,
		"end_time":         done.EndTime.UTC(),
		"duration_seconds": done.DurationSeconds,
		"overall_score":    done.Assessment.OverallScore,
		"strengths":        done.Assessment.Strengths,
		"improvements":     done.Assessment.Improvements,
		"overall_feedback": done.Assessment.Feedback,
	}
}

// Abandon ends one in-progress session in a single write. A miss is resolved
// with a count: an unknown id is ErrNotFound, a session already ended is ErrConflict.
func (r *interviewRepo) Abandon(ctx context.Context, sessionID string, endedAt time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "status": models.StatusInProgress},
		abandonStage(endedAt),
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := r.col.CountDocuments(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return err
	}
	if n == 0 {
		return utils.ErrNotFound
	}
	return utils.ErrConflict
}

func (r *interviewRepo) AbandonAllInProgress(ctx context.Context, ownerID string, endedAt time.Time) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{"owner_id": ownerID, "status": models.StatusInProgress},
		abandonStage(endedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// abandonStage is a pipeline update so each document's duration is computed
// from its own start_time, clamped at zero.
func abandonStage(endedAt time.Time) mongo.Pipeline {
	end := endedAt.UTC()
	elapsedMS := bson.M{"$subtract": bson.A{end, "$start_time"}}
	duration := bson.M{"$max": bson.A{0, bson.M{"$toLong": bson.M{"$divide": bson.A{elapsedMS, 1000}}}}}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"status":           models.StatusAbandoned,
			"end_time":         end,
			"duration_seconds": duration,
		}}},
	}
}

func (r *interviewRepo) ListCompleted(ctx context.Context, ownerID string, limit int64) ([]models.InterviewSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	cur, err := r.col.Find(ctx,
		bson.M{"owner_id": ownerID, "status": models.StatusCompleted},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(limit).
			SetProjection(bson.M{
				"session_id":       1,
				"type":             1,
				"created_at":       1,
				"duration_seconds": 1,
				"overall_score":    1,
			}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.InterviewSummary{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *interviewRepo) CompletedAggregates(ctx context.Context, ownerID string) ([]models.TypeAggregate, error) {
	cur, err := r.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"owner_id": ownerID, "status": models.StatusCompleted}}},
		{{Key: "$group", Value: bson.M{
			"_id":          "$type",
			"count":        bson.M{"$sum": 1},
			"score_sum":    bson.M{"$sum": "$overall_score"},
			"score_max":    bson.M{"$max": "$overall_score"},
			"duration_sum": bson.M{"$sum": "$duration_seconds"},
		}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.TypeAggregate
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
