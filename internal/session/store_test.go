package session

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/model"
)

type memSlot struct {
	mu      sync.Mutex
	data    []byte
	readErr error
	writes  int
	removes int
}

func (m *memSlot) Read(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.data, nil
}

func (m *memSlot) Write(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.writes++
	return nil
}

func (m *memSlot) Remove(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	m.removes++
	return nil
}

func testQuestions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:       "q" + string(rune('1'+i)),
			Content:  "soal",
			Options:  json.RawMessage(`["a","b","c","d"]`),
			OrderNum: i + 1,
		}
	}
	return qs
}

func testMetadata(total int) model.ExamMetadata {
	return model.ExamMetadata{
		SessionID:       "sess-1",
		SubmissionID:    "sub-1",
		ExamType:        model.ExamTypeMockTest,
		ExamID:          "exam-1",
		Title:           "Tryout",
		DurationMinutes: 10,
		TotalQuestions:  total,
	}
}

func newLoadedStore(t *testing.T, n int) (*Store, *memSlot) {
	t.Helper()
	slot := &memSlot{}
	s := NewStore(slot, zerolog.Nop())
	if err := s.Rehydrate(context.Background()); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	s.SetToken("abc")
	s.Load(LoadInput{Metadata: testMetadata(n), Questions: testQuestions(n)})
	return s, slot
}

func TestResetIsIdempotent(t *testing.T) {
	s, slot := newLoadedStore(t, 3)
	s.SetAnswer("q1", 2)

	s.Reset()
	once := s.Snapshot()
	s.Reset()
	twice := s.Snapshot()

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("expected identical state after second reset, got %+v vs %+v", once, twice)
	}
	if twice.Token != "" || twice.Metadata != nil || len(twice.Answers) != 0 || twice.TimeRemaining != 0 {
		t.Fatalf("expected empty state, got %+v", twice)
	}
	if slot.data != nil {
		t.Fatalf("expected durable copy removed")
	}
}

func TestDecrementTimeIsMonotonic(t *testing.T) {
	s, _ := newLoadedStore(t, 1)
	s.SetTimeRemaining(3)

	want := []int{2, 1, 0, 0, 0}
	for i, w := range want {
		if got := s.DecrementTime(); got != w {
			t.Fatalf("tick %d: expected %d, got %d", i+1, w, got)
		}
	}
	if s.TimeRemaining() != 0 {
		t.Fatalf("expected 0 remaining, got %d", s.TimeRemaining())
	}
}

func TestBoundaryNavigation(t *testing.T) {
	const n = 5
	s, _ := newLoadedStore(t, n)

	if s.Previous() {
		t.Fatalf("expected previous at question 1 to be a no-op")
	}
	if s.CurrentQuestion() != 1 {
		t.Fatalf("expected question 1, got %d", s.CurrentQuestion())
	}
	for i := 0; i < n-1; i++ {
		if !s.Next() {
			t.Fatalf("next %d unexpectedly refused", i+1)
		}
	}
	if s.CurrentQuestion() != n {
		t.Fatalf("expected question %d, got %d", n, s.CurrentQuestion())
	}
	if s.Next() {
		t.Fatalf("expected next at last question to be a no-op")
	}
	if s.SetCurrentQuestion(n + 1) {
		t.Fatalf("expected out-of-range jump to be ignored")
	}
	if !s.SetCurrentQuestion(2) || s.CurrentQuestion() != 2 {
		t.Fatalf("expected jump to question 2")
	}
}

func TestLoadPrefersTimeRemaining(t *testing.T) {
	s, _ := newLoadedStore(t, 2)
	if got := s.TimeRemaining(); got != 600 {
		t.Fatalf("expected full duration 600, got %d", got)
	}

	remaining := 120
	s.Submit()
	s.Load(LoadInput{
		Metadata:        testMetadata(2),
		Questions:       testQuestions(2),
		SavedAnswers:    model.AnswerMap{"q1": 1},
		TimeRemaining:   &remaining,
		CurrentQuestion: 2,
		Marked:          []string{"q2"},
	})

	snap := s.Snapshot()
	if snap.TimeRemaining != 120 {
		t.Fatalf("expected 120, got %d", snap.TimeRemaining)
	}
	if snap.Submitted {
		t.Fatalf("expected load to clear submitted")
	}
	if snap.Token != "abc" {
		t.Fatalf("expected token kept across load, got %q", snap.Token)
	}
	if snap.CurrentQuestion != 2 || snap.Answers["q1"] != 1 || !snap.Marked.Has("q2") {
		t.Fatalf("unexpected resumed state %+v", snap)
	}

	tooMuch := 9999
	s.Load(LoadInput{Metadata: testMetadata(2), Questions: testQuestions(2), TimeRemaining: &tooMuch})
	if got := s.TimeRemaining(); got != 600 {
		t.Fatalf("expected clamp to 600, got %d", got)
	}
}

func TestSubmittedFreezesAnswers(t *testing.T) {
	s, _ := newLoadedStore(t, 2)
	s.SetAnswer("q1", 0)

	if !s.Submit() {
		t.Fatalf("expected first submit to apply")
	}
	if s.Submit() {
		t.Fatalf("expected second submit to be a no-op")
	}
	if s.SetAnswer("q1", 3) {
		t.Fatalf("expected answer change after submit to be ignored")
	}
	if s.DecrementTime() != 600 {
		t.Fatalf("expected timer frozen after submit")
	}
}

func TestToggleMark(t *testing.T) {
	s, _ := newLoadedStore(t, 2)
	s.ToggleMark("q2")
	if !s.Marked().Has("q2") {
		t.Fatalf("expected q2 marked")
	}
	s.ToggleMark("q2")
	if s.Marked().Has("q2") {
		t.Fatalf("expected q2 unmarked")
	}
}

func TestPersistAndRehydrate(t *testing.T) {
	s, slot := newLoadedStore(t, 3)
	s.SetAnswer("q1", 2)
	s.SetAnswer("q3", 0)
	s.ToggleMark("q2")
	s.Next()
	s.DecrementTime()

	restored := NewStore(&memSlot{data: slot.data}, zerolog.Nop())
	if restored.Ready() {
		t.Fatalf("expected store not ready before rehydrate")
	}
	if err := restored.Rehydrate(context.Background()); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if !restored.Ready() {
		t.Fatalf("expected store ready after rehydrate")
	}

	got := restored.Snapshot()
	want := s.Snapshot()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rehydrated state differs:\n got %+v\nwant %+v", got, want)
	}
}

func TestRehydrateFailsOpen(t *testing.T) {
	cases := map[string]*memSlot{
		"garbage":       {data: []byte("{not json")},
		"wrong version": {data: []byte(`{"version":99,"state":{"token":"abc"}}`)},
	}
	for name, slot := range cases {
		t.Run(name, func(t *testing.T) {
			s := NewStore(slot, zerolog.Nop())
			if err := s.Rehydrate(context.Background()); err != nil {
				t.Fatalf("expected corrupted data to be ignored, got %v", err)
			}
			if s.Token() != "" || s.Metadata() != nil {
				t.Fatalf("expected empty store, got %+v", s.Snapshot())
			}
		})
	}

	t.Run("read error", func(t *testing.T) {
		s := NewStore(&memSlot{readErr: errors.New("disk gone")}, zerolog.Nop())
		if err := s.Rehydrate(context.Background()); err == nil {
			t.Fatalf("expected read error to be reported")
		}
		if !s.Ready() {
			t.Fatalf("expected store ready even after read error")
		}
	})
}

func TestSubscribeReceivesChanges(t *testing.T) {
	s, _ := newLoadedStore(t, 2)
	ch, cancel := s.Subscribe()
	defer cancel()

	s.SetAnswer("q1", 1)
	s.DecrementTime()

	first := <-ch
	if first.Op != OpAnswer || first.SessionID != "sess-1" || !first.Active {
		t.Fatalf("unexpected first change %+v", first)
	}
	second := <-ch
	if second.Op != OpTick || second.TimeRemaining != 599 {
		t.Fatalf("unexpected second change %+v", second)
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after cancel")
	}
	cancel()
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	s, _ := newLoadedStore(t, 2)
	_, cancel := s.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer*4; i++ {
		s.DecrementTime()
	}
	if got := s.TimeRemaining(); got != 600-subscriberBuffer*4 {
		t.Fatalf("expected all ticks applied, got %d", got)
	}
}

func TestWaitReadyHonoursContext(t *testing.T) {
	s := NewStore(&memSlot{}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.WaitReady(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
