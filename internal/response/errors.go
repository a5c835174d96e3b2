package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Session token ─────────────────────────────────────────────────
	ErrTokenRequired    ErrCode = "TOKEN_REQUIRED"
	ErrSessionInvalid   ErrCode = "SESSION_INVALID"
	ErrSessionExpired   ErrCode = "SESSION_EXPIRED"
	ErrAlreadyAttempted ErrCode = "ALREADY_ATTEMPTED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound             ErrCode = "NOT_FOUND"
	ErrQuestionNotFound     ErrCode = "QUESTION_NOT_FOUND"
	ErrNotificationNotFound ErrCode = "NOTIFICATION_NOT_FOUND"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrExamNotAvailable  ErrCode = "EXAM_NOT_AVAILABLE"
	ErrExamNotActive     ErrCode = "EXAM_NOT_ACTIVE"
	ErrOptionOutOfRange  ErrCode = "OPTION_OUT_OF_RANGE"
	ErrInvalidRoute      ErrCode = "INVALID_ROUTE"
	ErrSubmitInProgress  ErrCode = "SUBMIT_IN_PROGRESS"
	ErrAlreadySubmitted  ErrCode = "ALREADY_SUBMITTED"
	ErrSubmitFailed      ErrCode = "SUBMIT_FAILED"
	ErrSessionNotStarted ErrCode = "SESSION_NOT_STARTED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"
	ErrInternal          ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Session token ─────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token sesi ujian diperlukan."
	case ErrSessionInvalid:
		return "Token sesi ujian tidak valid."
	case ErrSessionExpired:
		return "Token sesi ujian telah kedaluwarsa."
	case ErrAlreadyAttempted:
		return "Anda sudah menyelesaikan ujian ini."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrQuestionNotFound:
		return "Soal tidak ditemukan."
	case ErrNotificationNotFound:
		return "Notifikasi tidak ditemukan."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "Ujian ini tidak tersedia pada waktu sekarang."
	case ErrExamNotActive:
		return "Ujian tidak sedang berlangsung."
	case ErrOptionOutOfRange:
		return "Pilihan jawaban tidak valid."
	case ErrInvalidRoute:
		return "Tindakan ini tidak diperbolehkan pada halaman ini."
	case ErrSubmitInProgress:
		return "Jawaban sedang dikumpulkan. Mohon tunggu."
	case ErrAlreadySubmitted:
		return "Ujian sudah dikumpulkan."
	case ErrSubmitFailed:
		return "Gagal mengumpulkan ujian. Silakan coba lagi."
	case ErrSessionNotStarted:
		return "Sesi ujian belum dimulai."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba beberapa saat lagi."
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
