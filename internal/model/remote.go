package model

// SessionPayload is the result of InitializeSession.
type SessionPayload struct {
	ExamMetadata         ExamMetadata   `json:"exam_metadata"`
	Questions            []Question     `json:"questions"`
	TotalQuestions       int            `json:"total_questions"`
	SavedAnswers         map[string]int `json:"saved_answers,omitempty"`
	TimeRemaining        *int           `json:"time_remaining,omitempty"`
	LastQuestionIndex    *int           `json:"last_question_index,omitempty"`
	SavedMarkedQuestions []string       `json:"saved_marked_questions,omitempty"`
}

// HeartbeatStatus is the server-side state of an attempt.
type HeartbeatStatus string

const (
	HeartbeatActive    HeartbeatStatus = "active"
	HeartbeatSubmitted HeartbeatStatus = "submitted"
	HeartbeatExpired   HeartbeatStatus = "expired"
)

// Heartbeat is the server's authoritative view of remaining time and status.
type Heartbeat struct {
	TimeRemaining    int             `json:"time_remaining"`
	Status           HeartbeatStatus `json:"status"`
	ShouldAutoSubmit bool            `json:"should_auto_submit"`
}

// Terminal reports whether the server considers the attempt over.
func (h Heartbeat) Terminal() bool {
	return h.Status == HeartbeatSubmitted || h.Status == HeartbeatExpired || h.ShouldAutoSubmit
}

// SubmitResult is returned by SubmitExam.
type SubmitResult struct {
	SubmissionID   string   `json:"submission_id"`
	Score          *float64 `json:"score,omitempty"`
	CorrectCount   *int     `json:"correct_count,omitempty"`
	TotalQuestions *int     `json:"total_questions,omitempty"`
}
