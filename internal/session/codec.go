package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/stemsi/exstem-portal/internal/model"
)

// EnvelopeVersion marks the layout of persisted session data. Data written
// with any other version is treated as absent.
const EnvelopeVersion = 1

// ErrUnknownVersion is returned by Decode for envelopes of another version.
var ErrUnknownVersion = errors.New("unknown session envelope version")

// AnswerPair is one flattened AnswerMap entry. It is stored as a two-element
// JSON array: ["q1", 2].
type AnswerPair struct {
	QuestionID string
	Option     int
}

func (p AnswerPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.QuestionID, p.Option})
}

func (p *AnswerPair) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("answer pair: expected 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.QuestionID); err != nil {
		return fmt.Errorf("answer pair question id: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.Option); err != nil {
		return fmt.Errorf("answer pair option: %w", err)
	}
	return nil
}

// FlattenAnswers converts an AnswerMap to pairs ordered by question id.
func FlattenAnswers(m model.AnswerMap) []AnswerPair {
	pairs := make([]AnswerPair, 0, len(m))
	for id, opt := range m {
		pairs = append(pairs, AnswerPair{QuestionID: id, Option: opt})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].QuestionID < pairs[j].QuestionID
	})
	return pairs
}

// ExpandAnswers rebuilds an AnswerMap. A repeated id keeps its last value.
func ExpandAnswers(pairs []AnswerPair) model.AnswerMap {
	m := make(model.AnswerMap, len(pairs))
	for _, p := range pairs {
		m[p.QuestionID] = p.Option
	}
	return m
}

// FlattenMarked converts a MarkedSet to a sorted id list.
func FlattenMarked(s model.MarkedSet) []string {
	return s.IDs()
}

// ExpandMarked rebuilds a MarkedSet from an id list.
func ExpandMarked(ids []string) model.MarkedSet {
	return model.NewMarkedSet(ids...)
}

type envelope struct {
	Version int            `json:"version"`
	State   persistedState `json:"state"`
}

type persistedState struct {
	Token           string              `json:"token,omitempty"`
	CurrentQuestion int                 `json:"current_question"`
	Answers         []AnswerPair        `json:"answers"`
	Marked          []string            `json:"marked_questions"`
	TimeRemaining   int                 `json:"time_remaining"`
	Submitted       bool                `json:"submitted"`
	Metadata        *model.ExamMetadata `json:"metadata,omitempty"`
	Questions       []model.Question    `json:"questions"`
}

// Encode serializes state into the versioned storage envelope.
func Encode(state model.SessionState) ([]byte, error) {
	env := envelope{
		Version: EnvelopeVersion,
		State: persistedState{
			Token:           state.Token,
			CurrentQuestion: state.CurrentQuestion,
			Answers:         FlattenAnswers(state.Answers),
			Marked:          FlattenMarked(state.Marked),
			TimeRemaining:   state.TimeRemaining,
			Submitted:       state.Submitted,
			Metadata:        state.Metadata,
			Questions:       state.Questions,
		},
	}
	return json.Marshal(env)
}

// Decode parses a storage envelope back into a SessionState with keyed
// containers. Out-of-range timer and pointer values are clamped.
func Decode(data []byte) (model.SessionState, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.SessionState{}, fmt.Errorf("unmarshal session envelope: %w", err)
	}
	if env.Version != EnvelopeVersion {
		return model.SessionState{}, fmt.Errorf("%w: %d", ErrUnknownVersion, env.Version)
	}

	p := env.State
	state := model.SessionState{
		Token:           p.Token,
		CurrentQuestion: p.CurrentQuestion,
		Answers:         ExpandAnswers(p.Answers),
		Marked:          ExpandMarked(p.Marked),
		TimeRemaining:   p.TimeRemaining,
		Submitted:       p.Submitted,
		Metadata:        p.Metadata,
		Questions:       p.Questions,
	}

	if state.TimeRemaining < 0 {
		state.TimeRemaining = 0
	}
	if state.Metadata != nil && state.TimeRemaining > state.Metadata.DurationSeconds() {
		state.TimeRemaining = state.Metadata.DurationSeconds()
	}
	state.CurrentQuestion = clampPointer(state.CurrentQuestion, len(state.Questions))
	return state, nil
}

func clampPointer(n, total int) int {
	if total == 0 {
		return 0
	}
	if n < 1 {
		return 1
	}
	if n > total {
		return total
	}
	return n
}
