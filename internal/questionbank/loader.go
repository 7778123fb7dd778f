package questionbank

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openprep/openprep/internal/models"
)

//go:embed default_bank.yaml
var defaultBank []byte

type fileFormat struct {
	Pools     map[string][]Question `yaml:"pools"`
	Skills    map[string][]string   `yaml:"skills"`
	Templates []resumeTemplate      `yaml:"resume_templates"`
}

// Load reads the bank from path, or the embedded default when path is empty.
func Load(path string) (*Bank, error) {
	if path == "" {
		return Parse(defaultBank)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the embedded bank. It panics only if the embedded file is broken.
func Default() *Bank {
	b, err := Parse(defaultBank)
	if err != nil {
		panic(err)
	}
	return b
}

func Parse(data []byte) (*Bank, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	if err := validate(&f); err != nil {
		return nil, fmt.Errorf("validate question bank: %w", err)
	}

	b := &Bank{
		pools:     make(map[models.InterviewType][]Question, len(f.Pools)),
		skills:    make(map[string][]string, len(f.Skills)),
		templates: f.Templates,
	}
	for typ, qs := range f.Pools {
		b.pools[models.InterviewType(typ)] = qs
	}
	for skill, kws := range f.Skills {
		b.skills[strings.ToLower(strings.TrimSpace(skill))] = kws
	}
	return b, nil
}

func validate(f *fileFormat) error {
	for _, typ := range []models.InterviewType{models.InterviewTechnical, models.InterviewHR} {
		if len(f.Pools[string(typ)]) == 0 {
			return fmt.Errorf("pool %q must not be empty", typ)
		}
	}
	for typ, qs := range f.Pools {
		if !models.InterviewType(typ).Valid() || models.InterviewType(typ) == models.InterviewResumeBased {
			return fmt.Errorf("unknown pool %q", typ)
		}
		for i, q := range qs {
			if strings.TrimSpace(q.Text) == "" {
				return fmt.Errorf("pool %q question %d has no text", typ, i)
			}
			if q.Category == "" {
				return fmt.Errorf("pool %q question %d has no category", typ, i)
			}
		}
	}
	if len(f.Templates) == 0 {
		return fmt.Errorf("resume_templates must not be empty")
	}
	for i, t := range f.Templates {
		if !strings.Contains(t.Text, "{skill}") {
			return fmt.Errorf("resume template %d must contain {skill}", i)
		}
	}
	return nil
}
