package sandbox

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-portal/internal/model"
	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Catalog is the set of exams the sandbox serves.
type Catalog struct {
	Exams []Exam `yaml:"exams"`
}

// Exam is one catalog entry. Start and End bound the window in which
// sessions may be initialized.
type Exam struct {
	ID              string         `yaml:"id"`
	Title           string         `yaml:"title"`
	Type            model.ExamType `yaml:"type"`
	DurationMinutes int            `yaml:"duration_minutes"`
	Start           *time.Time     `yaml:"start,omitempty"`
	End             *time.Time     `yaml:"end,omitempty"`
	Questions       []Question     `yaml:"questions"`
}

// Question carries the correct option, which is never sent to the portal.
type Question struct {
	ID      string   `yaml:"id"`
	Content string   `yaml:"content"`
	Options []string `yaml:"options"`
	Answer  int      `yaml:"answer"`
}

// LoadCatalog reads a YAML catalog from path, or the built-in demo catalog
// when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = raw
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Exams) == 0 {
		return fmt.Errorf("catalog has no exams")
	}
	seen := make(map[string]bool, len(c.Exams))
	for _, e := range c.Exams {
		if e.ID == "" {
			return fmt.Errorf("catalog exam without id")
		}
		if seen[e.ID] {
			return fmt.Errorf("duplicate exam id %q", e.ID)
		}
		seen[e.ID] = true

		if e.DurationMinutes <= 0 {
			return fmt.Errorf("exam %q: duration_minutes must be positive", e.ID)
		}
		if len(e.Questions) == 0 {
			return fmt.Errorf("exam %q has no questions", e.ID)
		}
		for _, q := range e.Questions {
			if q.Answer < 0 || q.Answer >= len(q.Options) {
				return fmt.Errorf("exam %q question %q: answer out of range", e.ID, q.ID)
			}
		}
	}
	return nil
}

// open reports whether sessions may be initialized at now.
func (e *Exam) open(now time.Time) bool {
	if e.Start != nil && now.Before(*e.Start) {
		return false
	}
	if e.End != nil && now.After(*e.End) {
		return false
	}
	return true
}

func (e *Exam) question(id string) (int, *Question) {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return i, &e.Questions[i]
		}
	}
	return -1, nil
}

// publicQuestions strips the answers.
func (e *Exam) publicQuestions() []model.Question {
	out := make([]model.Question, len(e.Questions))
	for i, q := range e.Questions {
		opts, _ := json.Marshal(q.Options)
		out[i] = model.Question{
			ID:       q.ID,
			Content:  q.Content,
			Options:  opts,
			OrderNum: i + 1,
		}
	}
	return out
}
