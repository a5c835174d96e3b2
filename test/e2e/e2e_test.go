//go:build e2e
// +build e2e

// Package e2e drives a running portal ("portal serve") that talks to a
// running sandbox exam server ("portal sandbox") sharing SANDBOX_SECRET.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/sandbox"
)

const (
	defaultBaseURL = "http://localhost:8090/api/v1/portal"
	defaultSecret  = "change-this-sandbox-secret"
	defaultExam    = "demo-competition"
)

var (
	baseURL string
	token   string
	// slotDBURL, when set, is checked for the persisted session row
	// (portal running with SLOT_BACKEND=postgres).
	slotDBURL string
	tabID     string
)

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	baseURL = getenv("PORTAL_URL", defaultBaseURL)
	slotDBURL = os.Getenv("E2E_SLOT_DATABASE_URL")
	tabID = getenv("TAB_ID", "default")

	issuer := sandbox.NewIssuer(getenv("SANDBOX_SECRET", defaultSecret), nil)
	signed, _, err := issuer.Issue(getenv("E2E_EXAM_ID", defaultExam), time.Hour)
	if err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}
	token = signed

	os.Exit(m.Run())
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestE2EFlow(t *testing.T) {
	t.Run("Enter", func(t *testing.T) {
		var out struct {
			Route struct {
				Name string `json:"name"`
			} `json:"route"`
		}
		call(t, http.MethodGet, "/enter?token="+token, nil, http.StatusOK, &out)
		if out.Route.Name != "instructions" {
			t.Fatalf("expected instructions, got %q", out.Route.Name)
		}
	})

	t.Run("Start", func(t *testing.T) {
		call(t, http.MethodPost, "/session/start", nil, http.StatusOK, nil)
	})

	t.Run("AnswerAndNavigate", func(t *testing.T) {
		call(t, http.MethodPut, "/session/answers", map[string]any{"question_id": "q1", "option_index": 1}, http.StatusOK, nil)
		call(t, http.MethodPost, "/session/marks/q2", nil, http.StatusOK, nil)

		var pos struct {
			Current int `json:"current_question"`
		}
		call(t, http.MethodPost, "/session/next", nil, http.StatusOK, &pos)
		if pos.Current != 2 {
			t.Fatalf("expected question 2, got %d", pos.Current)
		}
	})

	t.Run("ResumeWithSameToken", func(t *testing.T) {
		var out struct {
			Route struct {
				Name string `json:"name"`
			} `json:"route"`
		}
		call(t, http.MethodGet, "/enter?token="+token, nil, http.StatusOK, &out)
		if out.Route.Name != "exam" {
			t.Fatalf("expected resume straight into the exam, got %q", out.Route.Name)
		}

		var view struct {
			Answers         map[string]int `json:"answers"`
			CurrentQuestion int            `json:"current_question"`
			TimeRemaining   int            `json:"time_remaining"`
		}
		call(t, http.MethodGet, "/session", nil, http.StatusOK, &view)
		if view.Answers["q1"] != 1 || view.CurrentQuestion != 2 || view.TimeRemaining <= 0 {
			t.Fatalf("unexpected resumed view %+v", view)
		}
	})

	t.Run("PersistedSlot", func(t *testing.T) {
		if slotDBURL == "" {
			t.Skip("E2E_SLOT_DATABASE_URL not set")
		}
		ctx := context.Background()
		conn, err := pgx.Connect(ctx, slotDBURL)
		if err != nil {
			t.Fatalf("db connect: %v", err)
		}
		defer conn.Close(ctx)

		var payload []byte
		err = conn.QueryRow(ctx, `SELECT payload FROM session_slots WHERE slot_key = $1`,
			config.SlotKey.ExamSessionSlot(tabID)).Scan(&payload)
		if err != nil {
			t.Fatalf("select slot: %v", err)
		}
		if !bytes.Contains(payload, []byte(`["q1",1]`)) {
			t.Fatalf("expected persisted answer in %s", payload)
		}
	})

	t.Run("Submit", func(t *testing.T) {
		var out struct {
			SubmissionID string `json:"submission_id"`
		}
		call(t, http.MethodPost, "/session/submit", nil, http.StatusOK, &out)
		if out.SubmissionID == "" {
			t.Fatal("submission id missing")
		}
	})

	t.Run("Finish", func(t *testing.T) {
		call(t, http.MethodDelete, "/session", nil, http.StatusOK, nil)

		var out struct {
			Route struct {
				Name  string `json:"name"`
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			} `json:"route"`
		}
		call(t, http.MethodGet, "/enter?token="+token, nil, http.StatusOK, &out)
		if out.Route.Name != "error" || out.Route.Error.Code != "ALREADY_ATTEMPTED" {
			t.Fatalf("expected already-attempted error after finishing, got %+v", out.Route)
		}
	})
}

func call(t *testing.T, method, path string, body any, wantStatus int, out any) {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, baseURL+path, bodyReader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status %d: %s", method, path, resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
