package model

import (
	"encoding/json"
	"time"
)

// ExamType enumerates the kinds of exam attempt the portal serves.
type ExamType string

const (
	ExamTypeCompetition ExamType = "competition"
	ExamTypeMockTest    ExamType = "mock-test"
)

// ExamMetadata identifies one exam attempt. It is replaced wholesale whenever a
// new session is loaded.
type ExamMetadata struct {
	SessionID       string     `json:"session_id"`
	SubmissionID    string     `json:"submission_id"`
	ExamType        ExamType   `json:"exam_type"`
	ExamID          string     `json:"exam_id"`
	Title           string     `json:"title"`
	DurationMinutes int        `json:"duration_minutes"`
	TotalQuestions  int        `json:"total_questions"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
}

// DurationSeconds is the upper bound of the session's remaining time.
func (m ExamMetadata) DurationSeconds() int {
	return m.DurationMinutes * 60
}

// Question is a question as served to the exam taker (no correct answer).
type Question struct {
	ID       string          `json:"id"`
	Content  string          `json:"content"`
	Options  json.RawMessage `json:"options"`
	OrderNum int             `json:"order_num"`
}

// OptionCount returns the number of selectable options, or -1 when the options
// payload is not a JSON array (e.g. free-form operations).
func (q Question) OptionCount() int {
	if len(q.Options) == 0 {
		return 0
	}
	var items []json.RawMessage
	if err := json.Unmarshal(q.Options, &items); err != nil {
		return -1
	}
	return len(items)
}
