package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/rs/zerolog"
)

type seenRequest struct {
	mu   sync.Mutex
	path string
	auth string
}

func (s *seenRequest) get() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path, s.auth
}

func newTestServer(t *testing.T, status int, body string) (*Client, *seenRequest) {
	t.Helper()
	seen := &seenRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.mu.Lock()
		seen.path, seen.auth = r.URL.Path, r.Header.Get("Authorization")
		seen.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api/v1/", zerolog.Nop()), seen
}

func TestErrorTranslation(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{CodeSessionInvalid, ErrSession},
		{CodeSessionExpired, ErrSession},
		{CodeExamNotAvailable, ErrSession},
		{CodeAlreadyAttempted, ErrAlreadyAttempted},
		{"INTERNAL_ERROR", ErrTransport},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			body := `{"data":null,"error":{"code":"` + tc.code + `","message":"x"}}`
			c, _ := newTestServer(t, http.StatusForbidden, body)

			_, err := c.InitializeSession(context.Background(), "abc")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if ErrorCode(err) != tc.code {
				t.Fatalf("expected code %s, got %q", tc.code, ErrorCode(err))
			}
		})
	}
}

func TestTransportFailures(t *testing.T) {
	c, _ := newTestServer(t, http.StatusBadGateway, "<html>bad gateway</html>")
	if _, err := c.Heartbeat(context.Background(), "abc"); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport for non-JSON body, got %v", err)
	}

	c, _ = newTestServer(t, http.StatusInternalServerError, `{"data":null}`)
	if _, err := c.SubmitExam(context.Background(), "abc"); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport for 500 without error body, got %v", err)
	}

	unreachable := New("http://127.0.0.1:1", zerolog.Nop())
	if err := unreachable.SubmitAnswer(context.Background(), "abc", "q1", 2); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport for refused connection, got %v", err)
	}
}

func TestHeartbeatDecodes(t *testing.T) {
	c, req := newTestServer(t, http.StatusOK,
		`{"data":{"time_remaining":93,"status":"expired","should_auto_submit":true},"metadata":{}}`)

	hb, err := c.Heartbeat(context.Background(), "abc")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if hb.TimeRemaining != 93 || !hb.Terminal() {
		t.Fatalf("unexpected heartbeat %+v", hb)
	}
	path, auth := req.get()
	if path != "/api/v1"+PathHeartbeat {
		t.Fatalf("unexpected path %s", path)
	}
	if auth != "Bearer abc" {
		t.Fatalf("expected bearer token, got %q", auth)
	}
}

func TestSubmitAnswerSendsBody(t *testing.T) {
	bodies := make(chan AnswerRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		var in AnswerRequest
		_ = json.NewDecoder(r.Body).Decode(&in)
		bodies <- in
		_, _ = w.Write([]byte(`{"data":{"saved":true}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, zerolog.Nop())
	if err := c.SubmitAnswer(context.Background(), "abc", "q3", 1); err != nil {
		t.Fatalf("submit answer: %v", err)
	}
	got := <-bodies
	if got.QuestionID != "q3" || got.SelectedOptionIndex != 1 {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestBrotliEncodedResponse(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, _ = bw.Write([]byte(`{"data":{"time_remaining":321,"status":"active","should_auto_submit":false}}`))
	if err := bw.Close(); err != nil {
		t.Fatalf("compress: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Accept-Encoding") != "br" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"data":null,"error":{"code":"NO_BROTLI","message":"x"}}`))
			return
		}
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)

	hb, err := New(srv.URL, zerolog.Nop()).Heartbeat(context.Background(), "abc")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if hb.TimeRemaining != 321 {
		t.Fatalf("time remaining = %d, want 321", hb.TimeRemaining)
	}
}
