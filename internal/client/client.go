// Package client talks to the exam server on behalf of one portal tab.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/model"
)

// Remote endpoints, relative to the configured base URL.
const (
	PathInitialize = "/exam-session/initialize"
	PathAnswers    = "/exam-session/answers"
	PathHeartbeat  = "/exam-session/heartbeat"
	PathSubmit     = "/exam-session/submit"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 8 << 20
)

// Client is the HTTP/JSON client for the four remote exam operations.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the exam API rooted at baseURL.
func New(baseURL string, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        log.With().Str("component", "exam_client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AnswerRequest is the body of SubmitAnswer.
type AnswerRequest struct {
	QuestionID          string `json:"question_id"`
	SelectedOptionIndex int    `json:"selected_option_index"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// InitializeSession fetches metadata, questions, and any resume data.
func (c *Client) InitializeSession(ctx context.Context, token string) (*model.SessionPayload, error) {
	var payload model.SessionPayload
	if err := c.do(ctx, http.MethodPost, PathInitialize, token, nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// SubmitAnswer records one answer server-side.
func (c *Client) SubmitAnswer(ctx context.Context, token, questionID string, optionIndex int) error {
	body := AnswerRequest{QuestionID: questionID, SelectedOptionIndex: optionIndex}
	return c.do(ctx, http.MethodPut, PathAnswers, token, body, nil)
}

// Heartbeat returns the server's view of remaining time and status.
func (c *Client) Heartbeat(ctx context.Context, token string) (model.Heartbeat, error) {
	var hb model.Heartbeat
	err := c.do(ctx, http.MethodGet, PathHeartbeat, token, nil, &hb)
	return hb, err
}

// SubmitExam finalizes the attempt.
func (c *Client) SubmitExam(ctx context.Context, token string) (model.SubmitResult, error) {
	var res model.SubmitResult
	err := c.do(ctx, http.MethodPost, PathSubmit, token, nil, &res)
	return res, err
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return transportError(path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return transportError(path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(path, err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "br") {
		reader = brotli.NewReader(resp.Body)
	}
	raw, err := io.ReadAll(io.LimitReader(reader, maxResponseBytes))
	if err != nil {
		return transportError(path, err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Exam API call")

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return transportError(path, fmt.Errorf("status %d: decode body: %w", resp.StatusCode, err))
	}

	if env.Error != nil {
		return NewAPIError(resp.StatusCode, env.Error.Code, env.Error.Message)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return transportError(path, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return transportError(path, fmt.Errorf("decode data: %w", err))
	}
	return nil
}

// ErrorCode returns the server error code carried by err, if any.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
