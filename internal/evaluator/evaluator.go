// Package evaluator scores interview answers with fixed keyword, length and
// timing heuristics. Everything here is pure: the same input always yields the
// same score and feedback.
package evaluator

import (
	"math"
	"strings"

	"github.com/openprep/openprep/internal/models"
)

// Input is one answer to be scored.
type Input struct {
	Answer    string
	Keywords  []string
	Category  string
	TimeSpent int // seconds
	Resume    *models.ResumeAnalysis
}

type Evaluation struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// weights splits the 100 points between keyword coverage and answer length.
// Behavioural categories lean on a complete story, technical ones on terminology.
type weights struct {
	keyword float64
	length  float64
}

var (
	technicalWeights  = weights{keyword: 60, length: 25}
	behaviouralWeight = weights{keyword: 45, length: 40}
	// with no keywords to look for, length carries the whole content score
	lengthOnlyWeights = weights{keyword: 0, length: 85}
)

var behaviouralCategories = map[string]struct{}{
	"introduction":    {},
	"motivation":      {},
	"teamwork":        {},
	"self-awareness":  {},
	"achievement":     {},
	"time-management": {},
	"communication":   {},
	"experience":      {},
}

const (
	targetWords = 60

	tooFastSeconds  = 10
	targetMaxSecond = 180
	slowMaxSeconds  = 300

	tooFastPenalty = -10
	targetBonus    = 15
	slowBonus      = 5
	tooSlowPenalty = -5

	resumeBonus = 5
)

// Evaluate scores a single answer.
func Evaluate(in Input) Evaluation {
	answer := strings.TrimSpace(in.Answer)
	if answer == "" {
		return Evaluation{Score: 0, Feedback: "No answer was provided."}
	}
	lower := strings.ToLower(answer)

	w := technicalWeights
	if _, ok := behaviouralCategories[strings.ToLower(in.Category)]; ok {
		w = behaviouralWeight
	}

	keywords := normalizeKeywords(in.Keywords)
	var matched []string
	var missed []string
	if len(keywords) == 0 {
		w = lengthOnlyWeights
	} else {
		for _, k := range keywords {
			if strings.Contains(lower, k) {
				matched = append(matched, k)
			} else {
				missed = append(missed, k)
			}
		}
	}

	keywordScore := 0.0
	if len(keywords) > 0 {
		keywordScore = w.keyword * float64(len(matched)) / float64(len(keywords))
	}

	words := len(strings.Fields(answer))
	lengthScore := w.length * math.Min(float64(words)/targetWords, 1)

	timeAdj, timeNote := timeBand(in.TimeSpent)

	bonus := 0
	if in.Resume != nil && mentionsAny(lower, in.Resume.Skills, in.Resume.Technologies) {
		bonus = resumeBonus
	}

	score := clamp(int(math.Round(keywordScore+lengthScore))+timeAdj+bonus, 0, 100)

	return Evaluation{
		Score:    score,
		Feedback: feedback(score, words, matched, missed, timeNote),
	}
}

func timeBand(seconds int) (int, string) {
	switch {
	case seconds < tooFastSeconds:
		return tooFastPenalty, "You answered very quickly; take time to structure a fuller response."
	case seconds <= targetMaxSecond:
		return targetBonus, ""
	case seconds <= slowMaxSeconds:
		return slowBonus, "Try to be a little more concise."
	default:
		return tooSlowPenalty, "Your answer took a long time; practice delivering it more concisely."
	}
}

func feedback(score, words int, matched, missed []string, timeNote string) string {
	var b strings.Builder

	switch {
	case score >= 80:
		b.WriteString("Excellent answer.")
	case score >= 60:
		b.WriteString("Good answer.")
	case score >= 40:
		b.WriteString("Fair answer with room for improvement.")
	default:
		b.WriteString("This answer needs significant improvement.")
	}

	if len(matched) > 0 {
		b.WriteString(" You covered: " + strings.Join(matched, ", ") + ".")
	}
	if len(missed) > 0 {
		b.WriteString(" Consider mentioning: " + strings.Join(firstN(missed, 3), ", ") + ".")
	}
	if words < targetWords/3 {
		b.WriteString(" Add more detail and a concrete example.")
	}
	if timeNote != "" {
		b.WriteString(" " + timeNote)
	}
	return b.String()
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func mentionsAny(lower string, lists ...[]string) bool {
	for _, list := range lists {
		for _, s := range list {
			s = strings.ToLower(strings.TrimSpace(s))
			if s != "" && strings.Contains(lower, s) {
				return true
			}
		}
	}
	return false
}

func firstN(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
