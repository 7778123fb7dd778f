package questionbank

import (
	"math/rand/v2"
	"strings"

	"github.com/openprep/openprep/internal/models"
)

// Question is a candidate question with the keywords its answers are scored against.
type Question struct {
	Text       string   `yaml:"question"`
	Category   string   `yaml:"category"`
	Difficulty string   `yaml:"difficulty"`
	Keywords   []string `yaml:"keywords"`
}

type resumeTemplate struct {
	Text       string   `yaml:"text"`
	Category   string   `yaml:"category"`
	Difficulty string   `yaml:"difficulty"`
	Keywords   []string `yaml:"keywords"`
}

// Bank is loaded once at startup and never mutated afterwards, so it is safe
// for concurrent use without locking.
type Bank struct {
	pools     map[models.InterviewType][]Question
	skills    map[string][]string
	templates []resumeTemplate
}

// Record turns a question into an unanswered session slot.
func (q Question) Record() models.QuestionRecord {
	return models.QuestionRecord{
		Question:   q.Text,
		Category:   q.Category,
		Difficulty: q.Difficulty,
		Keywords:   append([]string(nil), q.Keywords...),
	}
}

// PoolSize reports how many questions are tagged with typ.
func (b *Bank) PoolSize(typ models.InterviewType) int {
	return len(b.pools[typ])
}

// GetRandomQuestions draws count questions of typ without replacement. A pool
// smaller than count yields every question it has.
func (b *Bank) GetRandomQuestions(typ models.InterviewType, count int) []Question {
	pool := b.pools[typ]
	if count <= 0 || len(pool) == 0 {
		return nil
	}
	if count > len(pool) {
		count = len(pool)
	}

	out := make([]Question, 0, count)
	for _, i := range rand.Perm(len(pool))[:count] {
		out = append(out, pool[i])
	}
	return out
}

// GenerateResumeBasedQuestions builds up to count questions around the skills and
// technologies found in a resume. Skills the bank knows come first; unknown ones
// still get template questions but only carry the template keywords and the skill name.
// Short lists are padded from the technical pool.
func (b *Bank) GenerateResumeBasedQuestions(ra models.ResumeAnalysis, count int) []Question {
	if count <= 0 {
		return nil
	}

	subjects := orderSubjects(b.skills, ra.Skills, ra.Technologies)

	seen := map[string]struct{}{}
	out := make([]Question, 0, count)
	add := func(q Question) {
		key := strings.ToLower(q.Text)
		if _, dup := seen[key]; dup || len(out) >= count {
			return
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}

	// Round-robin over templates so one skill does not take every slot.
	for round := 0; round < len(b.templates) && len(out) < count; round++ {
		for i, subject := range subjects {
			if len(out) >= count {
				break
			}
			t := b.templates[(round+i)%len(b.templates)]
			add(b.fromTemplate(t, subject))
		}
	}

	if len(out) < count {
		for _, q := range b.GetRandomQuestions(models.InterviewTechnical, b.PoolSize(models.InterviewTechnical)) {
			add(q)
		}
	}
	return out
}

func (b *Bank) fromTemplate(t resumeTemplate, subject string) Question {
	kw := make([]string, 0, len(t.Keywords)+6)
	kw = append(kw, subject)
	kw = append(kw, b.skills[strings.ToLower(subject)]...)
	kw = append(kw, t.Keywords...)
	return Question{
		Text:       strings.ReplaceAll(t.Text, "{skill}", subject),
		Category:   t.Category,
		Difficulty: t.Difficulty,
		Keywords:   dedupe(kw),
	}
}

// orderSubjects merges skills and technologies, case-insensitively deduped,
// with entries known to the bank moved to the front.
func orderSubjects(known map[string][]string, lists ...[]string) []string {
	seen := map[string]struct{}{}
	var matched, rest []string
	for _, list := range lists {
		for _, s := range list {
			s = strings.TrimSpace(s)
			key := strings.ToLower(s)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if _, ok := known[key]; ok {
				matched = append(matched, s)
			} else {
				rest = append(rest, s)
			}
		}
	}
	return append(matched, rest...)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, s := range in {
		k := strings.ToLower(strings.TrimSpace(s))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}
