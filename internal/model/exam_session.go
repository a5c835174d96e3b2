package model

import "sort"

// AnswerMap maps question id to the selected option index.
type AnswerMap map[string]int

// Clone returns an independent copy.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MarkedSet holds question ids flagged for review.
type MarkedSet map[string]struct{}

// NewMarkedSet builds a set from ids; duplicates collapse.
func NewMarkedSet(ids ...string) MarkedSet {
	s := make(MarkedSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s MarkedSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the marked ids in ascending order.
func (s MarkedSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s MarkedSet) Clone() MarkedSet {
	out := make(MarkedSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// SessionState is the aggregate exam state owned by the session store.
//
// Once loaded, TimeRemaining is within [0, Metadata.DurationSeconds()] and
// CurrentQuestion is within [1, len(Questions)] whenever Questions is non-empty.
type SessionState struct {
	CurrentQuestion int           `json:"current_question"`
	Answers         AnswerMap     `json:"answers"`
	Marked          MarkedSet     `json:"-"`
	TimeRemaining   int           `json:"time_remaining"`
	Submitted       bool          `json:"submitted"`
	Metadata        *ExamMetadata `json:"metadata,omitempty"`
	Questions       []Question    `json:"questions"`
	Token           string        `json:"-"`
}

// Clone returns a deep copy safe to hand out of the store.
func (s SessionState) Clone() SessionState {
	out := s
	out.Answers = s.Answers.Clone()
	out.Marked = s.Marked.Clone()
	if s.Metadata != nil {
		meta := *s.Metadata
		out.Metadata = &meta
	}
	if s.Questions != nil {
		out.Questions = make([]Question, len(s.Questions))
		copy(out.Questions, s.Questions)
	}
	return out
}

// Loaded reports whether metadata and questions are present.
func (s SessionState) Loaded() bool {
	return s.Metadata != nil && len(s.Questions) > 0
}

// Consistent reports whether the stored question count matches the count
// declared in metadata.
func (s SessionState) Consistent() bool {
	return s.Loaded() && len(s.Questions) == s.Metadata.TotalQuestions
}

// Active reports whether the exam should still be running.
func (s SessionState) Active() bool {
	return s.Loaded() && !s.Submitted && s.TimeRemaining > 0
}

// SessionID returns the loaded session id or "".
func (s SessionState) SessionID() string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata.SessionID
}

// Question returns the question with the given id.
func (s SessionState) Question(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}
