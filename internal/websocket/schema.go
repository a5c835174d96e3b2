package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionMark     Action = "mark"
	ActionNext     Action = "next"
	ActionPrevious Action = "previous"
	ActionGoto     Action = "goto"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload is the single shape of every client message; fields not
// used by an action are ignored.
type RequestPayload struct {
	Action      Action `json:"action"`
	RequestID   string `json:"request_id,omitempty"`
	QuestionID  string `json:"question_id,omitempty"`
	OptionIndex *int   `json:"option_index,omitempty"`
	Question    int    `json:"question,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventAck       Event = "ack"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
	EventSnapshot  Event = "snapshot"
)

// SnapshotResponse is sent once on connect with the full portal state.
type SnapshotResponse struct {
	Event Event       `json:"event"`
	State interface{} `json:"state"`
}

// AckResponse confirms an action was applied.
type AckResponse struct {
	Event           Event  `json:"event"`
	Action          Action `json:"action"`
	RequestID       string `json:"request_id,omitempty"`
	CurrentQuestion int    `json:"current_question,omitempty"`
}

// SubmittedResponse answers a successful submit action.
type SubmittedResponse struct {
	Event        Event  `json:"event"`
	RequestID    string `json:"request_id,omitempty"`
	SubmissionID string `json:"submission_id"`
}

type ErrorResponse struct {
	Event     Event  `json:"event"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Error     string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
