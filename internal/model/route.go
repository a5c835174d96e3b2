package model

import (
	"fmt"
	"time"
)

// RouteName enumerates the views the portal can send the UI to.
type RouteName string

const (
	RouteNone         RouteName = ""
	RouteInstructions RouteName = "instructions"
	RouteExam         RouteName = "exam"
	RouteCompletion   RouteName = "completion"
	RouteError        RouteName = "error"
	// RouteExit means there is no session context; the UI leaves the application.
	RouteExit RouteName = "exit"
)

// Route is a navigation target with its parameters.
type Route struct {
	Name         RouteName  `json:"name"`
	SubmissionID string     `json:"submission_id,omitempty"`
	Error        *LoadError `json:"error,omitempty"`
}

// LoadErrorCode is a machine-readable load failure code.
type LoadErrorCode string

const (
	LoadErrSessionInvalid   LoadErrorCode = "SESSION_INVALID"
	LoadErrSessionExpired   LoadErrorCode = "SESSION_EXPIRED"
	LoadErrExamNotAvailable LoadErrorCode = "EXAM_NOT_AVAILABLE"
	LoadErrAlreadyAttempted LoadErrorCode = "ALREADY_ATTEMPTED"
	LoadErrQuestionMismatch LoadErrorCode = "QUESTION_COUNT_MISMATCH"
	LoadErrCorruptedSession LoadErrorCode = "CORRUPTED_SESSION"
	LoadErrMissingToken     LoadErrorCode = "TOKEN_REQUIRED"
	LoadErrUnavailable      LoadErrorCode = "LOAD_FAILED"
)

// LoadError is a terminal failure of a load attempt.
type LoadError struct {
	Code    LoadErrorCode `json:"code"`
	Message string        `json:"message"`
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewLoadError builds a LoadError with the default message for code.
func NewLoadError(code LoadErrorCode) *LoadError {
	return &LoadError{Code: code, Message: LoadErrorMessage(code)}
}

// LoadErrorMessage returns a human-readable message for a load error code.
func LoadErrorMessage(code LoadErrorCode) string {
	switch code {
	case LoadErrSessionInvalid:
		return "Token sesi ujian tidak valid."
	case LoadErrSessionExpired:
		return "Token sesi ujian telah kedaluwarsa."
	case LoadErrExamNotAvailable:
		return "Ujian ini tidak tersedia pada waktu sekarang."
	case LoadErrAlreadyAttempted:
		return "Anda sudah menyelesaikan ujian ini."
	case LoadErrQuestionMismatch:
		return "Jumlah soal tidak sesuai dengan data ujian."
	case LoadErrCorruptedSession:
		return "Data sesi ujian rusak. Silakan buka kembali tautan ujian."
	case LoadErrMissingToken:
		return "Token sesi ujian diperlukan."
	default:
		return "Gagal memuat ujian. Silakan coba lagi."
	}
}

// NotificationKind classifies long-lived notifications shown to the exam taker.
type NotificationKind string

const (
	// NotificationManualSubmit offers a manual submit after auto-submit gave up.
	NotificationManualSubmit NotificationKind = "manual-submit"
)

// Notification is a persistent, user-actionable message.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	Action    string           `json:"action,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
