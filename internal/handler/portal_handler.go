package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-portal/internal/client"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/submission"
	"github.com/stemsi/exstem-portal/internal/validator"
)

// PortalHandler exposes the tab's exam session to the UI.
type PortalHandler struct {
	portal *service.PortalService
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(portal *service.PortalService) *PortalHandler {
	return &PortalHandler{portal: portal}
}

// Enter godoc
// GET /api/v1/portal/enter?token=...
// Runs the entry decision and returns the route the UI must show.
func (h *PortalHandler) Enter(c *gin.Context) {
	var q model.EnterQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	route, err := h.portal.Enter(c.Request.Context(), q.Token)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"route": route})
}

// GetSession godoc
// GET /api/v1/portal/session
func (h *PortalHandler) GetSession(c *gin.Context) {
	response.Success(c, http.StatusOK, h.portal.State())
}

// StartExam godoc
// POST /api/v1/portal/session/start
// Leaves the instructions view; the countdown starts.
func (h *PortalHandler) StartExam(c *gin.Context) {
	route, err := h.portal.Begin()
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"route": route})
}

// SelectAnswer godoc
// PUT /api/v1/portal/session/answers
func (h *PortalHandler) SelectAnswer(c *gin.Context) {
	var req model.SelectAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.portal.SelectAnswer(req.QuestionID, *req.OptionIndex); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"question_id":  req.QuestionID,
		"option_index": *req.OptionIndex,
	})
}

// ToggleMark godoc
// POST /api/v1/portal/session/marks/:question_id
func (h *PortalHandler) ToggleMark(c *gin.Context) {
	var uri model.QuestionURI
	if fields := validator.BindURI(c, &uri); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.portal.ToggleMark(uri.QuestionID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"marked_questions": h.portal.State().Marked})
}

// NextQuestion godoc
// POST /api/v1/portal/session/next
func (h *PortalHandler) NextQuestion(c *gin.Context) {
	h.respondPosition(c, h.portal.Next)
}

// PreviousQuestion godoc
// POST /api/v1/portal/session/previous
func (h *PortalHandler) PreviousQuestion(c *gin.Context) {
	h.respondPosition(c, h.portal.Previous)
}

// SetCurrentQuestion godoc
// PUT /api/v1/portal/session/current
func (h *PortalHandler) SetCurrentQuestion(c *gin.Context) {
	var req model.GotoQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	h.respondPosition(c, func() (int, error) { return h.portal.Goto(req.Question) })
}

func (h *PortalHandler) respondPosition(c *gin.Context, move func() (int, error)) {
	current, err := move()
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"current_question": current})
}

// SubmitExam godoc
// POST /api/v1/portal/session/submit
// User-confirmed submission; a single attempt.
func (h *PortalHandler) SubmitExam(c *gin.Context) {
	res, err := h.portal.Submit(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"submission_id": res.SubmissionID,
		"route":         h.portal.Route(),
	})
}

// FinishSession godoc
// DELETE /api/v1/portal/session
// Ends the flow: local state is wiped and the UI is sent away.
func (h *PortalHandler) FinishSession(c *gin.Context) {
	route, err := h.portal.Finish()
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"route": route})
}

// DismissNotification godoc
// DELETE /api/v1/portal/notifications/:id
func (h *PortalHandler) DismissNotification(c *gin.Context) {
	var uri model.NotificationURI
	if fields := validator.BindURI(c, &uri); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.portal.Dismiss(uri.ID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"notifications": h.portal.Notifications()})
}

// ─── Error mapping ──────────────────────────────────────────────────

// classifyError maps a portal error to an HTTP status and API error code.
func classifyError(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrQuestionNotFound):
		return http.StatusNotFound, response.ErrQuestionNotFound
	case errors.Is(err, service.ErrNotificationNotFound):
		return http.StatusNotFound, response.ErrNotificationNotFound
	case errors.Is(err, service.ErrOptionOutOfRange):
		return http.StatusBadRequest, response.ErrOptionOutOfRange
	case errors.Is(err, service.ErrInvalidRoute):
		return http.StatusConflict, response.ErrInvalidRoute
	case errors.Is(err, service.ErrNotActive):
		return http.StatusConflict, response.ErrExamNotActive
	case errors.Is(err, submission.ErrSubmitInProgress):
		return http.StatusConflict, response.ErrSubmitInProgress
	case errors.Is(err, submission.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, submission.ErrNotLoaded), errors.Is(err, submission.ErrSessionReset):
		return http.StatusConflict, response.ErrSessionNotStarted
	case errors.Is(err, client.ErrSession), errors.Is(err, client.ErrTransport):
		return http.StatusBadGateway, response.ErrSubmitFailed
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

func fail(c *gin.Context, err error) {
	status, code := classifyError(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.Fail(c, status, code)
}
