package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ok", func(c *gin.Context) { Success(c, http.StatusOK, gin.H{"route": "exam"}) })
	r.GET("/fail", func(c *gin.Context) {
		FailWithFields(c, http.StatusBadRequest, ErrValidation, map[string]string{"token": "wajib diisi"})
	})
	r.GET("/abort", func(c *gin.Context) {
		AbortFail(c, http.StatusUnauthorized, ErrTokenRequired)
	}, func(c *gin.Context) {
		c.String(http.StatusOK, "unreachable")
	})
	return r
}

func decode(t *testing.T, body []byte) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp
}

func TestRequestIDIsEchoed(t *testing.T) {
	r := newEngine()

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(HeaderRequestID, "ui-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get(HeaderRequestID); got != "ui-42" {
		t.Fatalf("header = %q, want ui-42", got)
	}
	if resp := decode(t, w.Body.Bytes()); resp.Metadata.RequestID != "ui-42" {
		t.Fatalf("metadata request id = %q", resp.Metadata.RequestID)
	}
}

func TestRequestIDReplacesUnusableHeader(t *testing.T) {
	r := newEngine()

	for _, id := range []string{"has space", strings.Repeat("x", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set(HeaderRequestID, id)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		got := w.Header().Get(HeaderRequestID)
		if got == "" || got == id {
			t.Fatalf("request id %q was not replaced (got %q)", id, got)
		}
	}
}

func TestFailEnvelope(t *testing.T) {
	r := newEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode(t, w.Body.Bytes())
	if resp.Data != nil {
		t.Fatalf("data should be null, got %v", resp.Data)
	}
	if resp.Error == nil || resp.Error.Code != ErrValidation {
		t.Fatalf("error = %+v", resp.Error)
	}
	if resp.Error.Message != GetMessage(ErrValidation) {
		t.Fatalf("message = %q", resp.Error.Message)
	}
	if resp.Error.Fields["token"] != "wajib diisi" {
		t.Fatalf("fields = %v", resp.Error.Fields)
	}
}

func TestAbortFailStopsChain(t *testing.T) {
	r := newEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/abort", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "unreachable") {
		t.Fatal("handler after AbortFail ran")
	}
	if resp := decode(t, w.Body.Bytes()); resp.Error.Code != ErrTokenRequired {
		t.Fatalf("code = %s", resp.Error.Code)
	}
}

func TestUnknownCodeHasFallbackMessage(t *testing.T) {
	if GetMessage(ErrCode("SOMETHING_NEW")) == "" {
		t.Fatal("unknown codes must still carry a message")
	}
}
