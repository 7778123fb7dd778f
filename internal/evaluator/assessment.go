package evaluator

import (
	"fmt"
	"math"

	"github.com/openprep/openprep/internal/models"
)

const (
	strengthThreshold    = 75
	improvementThreshold = 50
	maxBullets           = 3
)

// GenerateOverallAssessment rolls per-question scores into the session outcome.
// An empty record list scores 0.
func GenerateOverallAssessment(records []models.QuestionRecord, typ models.InterviewType) models.Assessment {
	out := models.Assessment{
		Strengths:    []string{},
		Improvements: []string{},
	}
	if len(records) == 0 {
		out.Feedback = "No questions were answered in this interview."
		return out
	}

	total := 0
	for _, r := range records {
		total += r.Score
	}
	out.OverallScore = int(math.Round(float64(total) / float64(len(records))))

	strong := map[string]bool{}
	weak := map[string]bool{}
	for _, r := range records {
		cat := r.Category
		if cat == "" {
			cat = "general"
		}
		switch {
		case r.Score >= strengthThreshold && !strong[cat] && len(out.Strengths) < maxBullets:
			strong[cat] = true
			out.Strengths = append(out.Strengths, fmt.Sprintf("Strong performance on %s questions", cat))
		case r.Score < improvementThreshold && !weak[cat] && len(out.Improvements) < maxBullets:
			weak[cat] = true
			out.Improvements = append(out.Improvements, fmt.Sprintf("Review and practice %s questions", cat))
		}
	}

	out.Feedback = narrative(out.OverallScore, typ)
	return out
}

func narrative(score int, typ models.InterviewType) string {
	label := string(typ)
	switch typ {
	case models.InterviewHR:
		label = "HR"
	case models.InterviewResumeBased:
		label = "resume-based"
	}

	switch {
	case score >= 80:
		return fmt.Sprintf("Outstanding %s interview. You are well prepared; keep practising to stay sharp.", label)
	case score >= 60:
		return fmt.Sprintf("Solid %s interview. Tighten the weaker answers with more specific examples.", label)
	case score >= 40:
		return fmt.Sprintf("Average %s interview. Focus on the improvement areas and practise structured answers.", label)
	default:
		return fmt.Sprintf("This %s interview shows gaps. Revisit the fundamentals and try again.", label)
	}
}
