// Package sandbox is a local stand-in for the exam server. It serves the four
// session endpoints the portal calls, backed by a YAML catalog and in-memory
// attempts.
package sandbox

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/validator"
)

// attempt is the server-side state of one session token.
type attempt struct {
	examID       string
	startedAt    time.Time
	answers      map[string]int
	lastIndex    int
	submitted    bool
	submissionID string
	result       model.SubmitResult
}

// Server holds the catalog and every attempt started against it.
type Server struct {
	exams  map[string]*Exam
	order  []string
	issuer *Issuer
	log    zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	attempts map[string]*attempt
}

// Option customizes a Server.
type Option func(*Server)

// WithClock replaces time.Now for window, token and timer checks.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a sandbox server for catalog, signing tokens with secret.
func New(catalog *Catalog, secret string, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		exams:    make(map[string]*Exam, len(catalog.Exams)),
		log:      log.With().Str("component", "sandbox").Logger(),
		now:      time.Now,
		attempts: make(map[string]*attempt),
	}
	for _, opt := range opts {
		opt(s)
	}
	for i := range catalog.Exams {
		e := &catalog.Exams[i]
		s.exams[e.ID] = e
		s.order = append(s.order, e.ID)
	}
	s.issuer = NewIssuer(secret, func() time.Time { return s.now() })
	return s
}

// IssueToken creates a session token for a new attempt of examID.
func (s *Server) IssueToken(examID string, ttl time.Duration) (string, error) {
	if _, ok := s.exams[examID]; !ok {
		return "", errors.New("unknown exam " + examID)
	}
	token, _, err := s.issuer.Issue(examID, ttl)
	return token, err
}

// IssueAll returns one fresh token per catalog exam, keyed by exam id.
func (s *Server) IssueAll(ttl time.Duration) (map[string]string, error) {
	out := make(map[string]string, len(s.order))
	for _, id := range s.order {
		token, err := s.IssueToken(id, ttl)
		if err != nil {
			return nil, err
		}
		out[id] = token
	}
	return out, nil
}

// Router builds the sandbox HTTP API rooted at /api/v1.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), response.RequestIDMiddleware(), middleware.Brotli())

	r.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1/exam-session")
	api.Use(middleware.RequireBearer())
	{
		api.POST("/initialize", s.Initialize)
		api.PUT("/answers", s.SaveAnswer)
		api.GET("/heartbeat", s.Heartbeat)
		api.POST("/submit", s.Submit)
	}
	return r
}

// ─── Handlers ───────────────────────────────────────────────────────

type answerRequest struct {
	QuestionID          string `json:"question_id" binding:"required"`
	SelectedOptionIndex *int   `json:"selected_option_index" binding:"required,min=0"`
}

// Initialize godoc
// POST /api/v1/exam-session/initialize
// Starts the attempt on first call; later calls return resume data.
func (s *Server) Initialize(c *gin.Context) {
	claims, ok := s.claims(c)
	if !ok {
		return
	}
	exam := s.exams[claims.ExamID]
	if exam == nil {
		response.Fail(c, http.StatusNotFound, response.ErrExamNotAvailable)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, started := s.attempts[claims.SessionID]
	if !started {
		if !exam.open(s.now()) {
			response.Fail(c, http.StatusForbidden, response.ErrExamNotAvailable)
			return
		}
		a = &attempt{
			examID:       exam.ID,
			startedAt:    s.now(),
			answers:      make(map[string]int),
			submissionID: uuid.New().String(),
		}
		s.attempts[claims.SessionID] = a
		s.log.Info().Str("session_id", claims.SessionID).Str("exam_id", exam.ID).Msg("Attempt started")
	}

	remaining := s.remainingLocked(exam, a)
	if !a.submitted && remaining == 0 {
		s.finalizeLocked(exam, a)
		s.log.Info().Str("session_id", claims.SessionID).Msg("Attempt expired before resume, finalized")
	}
	if a.submitted {
		response.Fail(c, http.StatusConflict, response.ErrAlreadyAttempted)
		return
	}

	payload := model.SessionPayload{
		ExamMetadata: model.ExamMetadata{
			SessionID:       claims.SessionID,
			SubmissionID:    a.submissionID,
			ExamType:        exam.Type,
			ExamID:          exam.ID,
			Title:           exam.Title,
			DurationMinutes: exam.DurationMinutes,
			TotalQuestions:  len(exam.Questions),
			StartTime:       exam.Start,
			EndTime:         exam.End,
		},
		Questions:      exam.publicQuestions(),
		TotalQuestions: len(exam.Questions),
		TimeRemaining:  &remaining,
	}
	if len(a.answers) > 0 {
		payload.SavedAnswers = make(map[string]int, len(a.answers))
		for k, v := range a.answers {
			payload.SavedAnswers[k] = v
		}
		last := a.lastIndex
		payload.LastQuestionIndex = &last
	}

	response.Success(c, http.StatusOK, payload)
}

// SaveAnswer godoc
// PUT /api/v1/exam-session/answers
func (s *Server) SaveAnswer(c *gin.Context) {
	claims, ok := s.claims(c)
	if !ok {
		return
	}

	var req answerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, exam, ok := s.attemptLocked(c, claims)
	if !ok {
		return
	}
	if a.submitted {
		response.Fail(c, http.StatusConflict, response.ErrAlreadyAttempted)
		return
	}

	idx, q := exam.question(req.QuestionID)
	if q == nil {
		response.Fail(c, http.StatusNotFound, response.ErrQuestionNotFound)
		return
	}
	if *req.SelectedOptionIndex >= len(q.Options) {
		response.Fail(c, http.StatusBadRequest, response.ErrOptionOutOfRange)
		return
	}

	a.answers[q.ID] = *req.SelectedOptionIndex
	a.lastIndex = idx
	response.Success(c, http.StatusOK, gin.H{"saved": true})
}

// Heartbeat godoc
// GET /api/v1/exam-session/heartbeat
func (s *Server) Heartbeat(c *gin.Context) {
	claims, ok := s.claims(c)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, exam, ok := s.attemptLocked(c, claims)
	if !ok {
		return
	}

	hb := model.Heartbeat{Status: model.HeartbeatActive}
	switch remaining := s.remainingLocked(exam, a); {
	case a.submitted:
		hb.Status = model.HeartbeatSubmitted
	case remaining == 0:
		hb.Status = model.HeartbeatExpired
		hb.ShouldAutoSubmit = true
	default:
		hb.TimeRemaining = remaining
	}
	response.Success(c, http.StatusOK, hb)
}

// Submit godoc
// POST /api/v1/exam-session/submit
// Grades the saved answers. A second submit is rejected.
func (s *Server) Submit(c *gin.Context) {
	claims, ok := s.claims(c)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, exam, ok := s.attemptLocked(c, claims)
	if !ok {
		return
	}
	if a.submitted {
		response.Fail(c, http.StatusConflict, response.ErrAlreadyAttempted)
		return
	}

	s.finalizeLocked(exam, a)
	s.log.Info().
		Str("session_id", claims.SessionID).
		Int("correct", *a.result.CorrectCount).
		Int("total", *a.result.TotalQuestions).
		Msg("Attempt submitted and graded")

	response.Success(c, http.StatusOK, a.result)
}

// ─── Helpers ────────────────────────────────────────────────────────

// claims validates the bearer token, answering the request on failure.
func (s *Server) claims(c *gin.Context) (*Claims, bool) {
	claims, err := s.issuer.Parse(middleware.BearerToken(c))
	switch {
	case errors.Is(err, ErrTokenExpired):
		response.Fail(c, http.StatusUnauthorized, response.ErrSessionExpired)
		return nil, false
	case err != nil:
		response.Fail(c, http.StatusUnauthorized, response.ErrSessionInvalid)
		return nil, false
	}
	return claims, true
}

func (s *Server) attemptLocked(c *gin.Context, claims *Claims) (*attempt, *Exam, bool) {
	a := s.attempts[claims.SessionID]
	exam := s.exams[claims.ExamID]
	if a == nil || exam == nil {
		response.Fail(c, http.StatusNotFound, response.ErrSessionInvalid)
		return nil, nil, false
	}
	return a, exam, true
}

func (s *Server) remainingLocked(exam *Exam, a *attempt) int {
	elapsed := int(s.now().Sub(a.startedAt) / time.Second)
	return max(exam.DurationMinutes*60-elapsed, 0)
}

// finalizeLocked grades the attempt and freezes it.
func (s *Server) finalizeLocked(exam *Exam, a *attempt) {
	correct := 0
	for _, q := range exam.Questions {
		if ans, ok := a.answers[q.ID]; ok && ans == q.Answer {
			correct++
		}
	}
	total := len(exam.Questions)

	var score float64
	if total > 0 {
		score = float64(correct) / float64(total) * 100
	}

	a.submitted = true
	a.result = model.SubmitResult{
		SubmissionID:   a.submissionID,
		Score:          &score,
		CorrectCount:   &correct,
		TotalQuestions: &total,
	}
}
