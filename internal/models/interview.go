package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type InterviewType string

const (
	InterviewTechnical   InterviewType = "technical"
	InterviewHR          InterviewType = "hr"
	InterviewResumeBased InterviewType = "resume-based"
)

func (t InterviewType) Valid() bool {
	switch t {
	case InterviewTechnical, InterviewHR, InterviewResumeBased:
		return true
	}
	return false
}

// QuestionCount is the fixed number of question records a session of this type holds.
func (t InterviewType) QuestionCount() int {
	if t == InterviewResumeBased {
		return 8
	}
	return 5
}

type SessionStatus string

const (
	StatusInProgress SessionStatus = "in-progress"
	StatusCompleted  SessionStatus = "completed"
	StatusAbandoned  SessionStatus = "abandoned"
)

func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

type ResumeAnalysis struct {
	Skills       []string `bson:"skills" json:"skills"`
	Technologies []string `bson:"technologies" json:"technologies"`
}

// QuestionRecord is one slot of a session. Keywords and category are stored at
// creation so scoring never needs the question bank again.
type QuestionRecord struct {
	Question   string   `bson:"question" json:"question"`
	Category   string   `bson:"category" json:"category"`
	Difficulty string   `bson:"difficulty" json:"difficulty"`
	Keywords   []string `bson:"keywords" json:"keywords"`

	Answer    string `bson:"answer" json:"answer"`
	TimeSpent int    `bson:"time_spent" json:"timeSpent"`
	Score     int    `bson:"score" json:"score"`
	Feedback  string `bson:"feedback" json:"feedback"`
	Answered  bool   `bson:"answered" json:"answered"`
}

type InterviewSession struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SessionID string             `bson:"session_id" json:"sessionId"` // uuid v4
	OwnerID   string             `bson:"owner_id" json:"ownerId"`
	Anonymous bool               `bson:"anonymous" json:"anonymous"`

	Type   InterviewType `bson:"type" json:"type"`
	Status SessionStatus `bson:"status" json:"status"`

	Questions []QuestionRecord `bson:"questions" json:"questions"`
	// NextIndex is the number of answered records; answers are written strictly in order.
	NextIndex int `bson:"next_index" json:"nextIndex"`

	ResumeContext *ResumeAnalysis `bson:"resume_context,omitempty" json:"resumeContext,omitempty"`

	CreatedAt       time.Time  `bson:"created_at" json:"createdAt"`
	StartTime       time.Time  `bson:"start_time" json:"startTime"`
	EndTime         *time.Time `bson:"end_time,omitempty" json:"endTime,omitempty"`
	DurationSeconds int64      `bson:"duration_seconds" json:"duration"`

	OverallScore    int      `bson:"overall_score" json:"overallScore"`
	Strengths       []string `bson:"strengths,omitempty" json:"strengths"`
	Improvements    []string `bson:"improvements,omitempty" json:"improvements"`
	OverallFeedback string   `bson:"overall_feedback,omitempty" json:"overallFeedback"`
}

// Assessment is the overall outcome written when a session completes.
type Assessment struct {
	OverallScore int      `json:"overallScore"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Feedback     string   `json:"feedback"`
}

// Completion carries the fields applied atomically with the last answer.
type Completion struct {
	EndTime         time.Time
	DurationSeconds int64
	Assessment      Assessment
}

// InterviewSummary is the history projection of a completed session.
type InterviewSummary struct {
	SessionID    string        `bson:"session_id" json:"sessionId"`
	Type         InterviewType `bson:"type" json:"type"`
	Date         time.Time     `bson:"created_at" json:"date"`
	Duration     int64         `bson:"duration_seconds" json:"duration"`
	OverallScore int           `bson:"overall_score" json:"score"`
}

type InterviewStats struct {
	TotalInterviews int                   `json:"totalInterviews"`
	ByType          map[InterviewType]int `json:"byType"`
	AverageScore    int                   `json:"averageScore"`
	BestScore       int                   `json:"bestScore"`
	AverageDuration int                   `json:"averageDuration"`
}

// TypeAggregate is the per-type fold of an owner's completed sessions.
type TypeAggregate struct {
	Type        InterviewType `bson:"_id"`
	Count       int           `bson:"count"`
	ScoreSum    int64         `bson:"score_sum"`
	ScoreMax    int           `bson:"score_max"`
	DurationSum int64         `bson:"duration_sum"`
}
