package model

// ─── Portal API requests ────────────────────────────────────────────

// EnterQuery carries the optional session token from the entry URL.
type EnterQuery struct {
	Token string `form:"token"`
}

// SelectAnswerRequest records the chosen option of one question.
type SelectAnswerRequest struct {
	QuestionID  string `json:"question_id" binding:"required"`
	OptionIndex *int   `json:"option_index" binding:"required,min=0"`
}

// GotoQuestionRequest jumps to a 1-based question number.
type GotoQuestionRequest struct {
	Question int `json:"question" binding:"required,min=1"`
}

// QuestionURI identifies a question in the path.
type QuestionURI struct {
	QuestionID string `uri:"question_id" binding:"required"`
}

// NotificationURI identifies a notification in the path.
type NotificationURI struct {
	ID string `uri:"id" binding:"required"`
}
