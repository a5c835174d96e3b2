package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/client"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/session"
)

// SessionInitializer fetches a session from the exam server.
type SessionInitializer interface {
	InitializeSession(ctx context.Context, token string) (*model.SessionPayload, error)
}

// Store is the session store surface the bootstrapper drives.
type Store interface {
	WaitReady(ctx context.Context) error
	Snapshot() model.SessionState
	Reset()
	SetToken(token string)
	Load(in session.LoadInput)
}

type Navigator interface {
	Navigate(route model.Route)
}

// Bootstrapper runs the entry decision once the store has rehydrated.
type Bootstrapper struct {
	store  Store
	remote SessionInitializer
	nav    Navigator
	log    zerolog.Logger
}

func New(store Store, remote SessionInitializer, nav Navigator, log zerolog.Logger) *Bootstrapper {
	return &Bootstrapper{
		store:  store,
		remote: remote,
		nav:    nav,
		log:    log.With().Str("component", "bootstrap").Logger(),
	}
}

// Run decides and acts for an entry carrying urlToken (possibly empty) and
// returns the route it navigated to. A returned error means ctx ended before
// the store was ready; load failures are reported through the error route.
func (b *Bootstrapper) Run(ctx context.Context, urlToken string) (model.Route, error) {
	if err := b.store.WaitReady(ctx); err != nil {
		return model.Route{}, fmt.Errorf("wait for session store: %w", err)
	}

	snap := b.store.Snapshot()
	decision := Decide(urlToken, PersistedFrom(snap))
	b.log.Info().
		Str("action", string(decision.Action)).
		Bool("url_token", urlToken != "").
		Bool("persisted_token", snap.Token != "").
		Msg("Entry decision")

	var route model.Route
	switch decision.Action {
	case ActionResume:
		route = model.Route{Name: model.RouteExam}
	case ActionComplete:
		route = model.Route{Name: model.RouteCompletion}
		if snap.Metadata != nil {
			route.SubmissionID = snap.Metadata.SubmissionID
		}
	case ActionCorrupted:
		route = errorRoute(model.NewLoadError(model.LoadErrCorruptedSession))
	case ActionLeave:
		route = model.Route{Name: model.RouteExit}
	case ActionFetch:
		route = b.fetch(ctx, decision.Token)
	}

	b.nav.Navigate(route)
	return route, nil
}

// fetch discards local state and loads a fresh session for token.
func (b *Bootstrapper) fetch(ctx context.Context, token string) model.Route {
	b.store.Reset()
	b.store.SetToken(token)

	payload, err := b.remote.InitializeSession(ctx, token)
	if err != nil {
		return b.fail(toLoadError(err), err)
	}

	declared := payload.ExamMetadata.TotalQuestions
	if len(payload.Questions) != payload.TotalQuestions || payload.TotalQuestions != declared {
		err := fmt.Errorf("questions=%d total=%d declared=%d",
			len(payload.Questions), payload.TotalQuestions, declared)
		return b.fail(model.NewLoadError(model.LoadErrQuestionMismatch), err)
	}

	in := session.LoadInput{
		Metadata:      payload.ExamMetadata,
		Questions:     payload.Questions,
		SavedAnswers:  payload.SavedAnswers,
		TimeRemaining: payload.TimeRemaining,
		Marked:        payload.SavedMarkedQuestions,
	}
	if payload.LastQuestionIndex != nil {
		in.CurrentQuestion = *payload.LastQuestionIndex + 1
	}
	b.store.Load(in)

	b.log.Info().
		Str("session_id", payload.ExamMetadata.SessionID).
		Int("questions", len(payload.Questions)).
		Int("saved_answers", len(payload.SavedAnswers)).
		Msg("Session loaded")

	if len(payload.SavedAnswers) > 0 {
		return model.Route{Name: model.RouteExam}
	}
	return model.Route{Name: model.RouteInstructions}
}

func (b *Bootstrapper) fail(loadErr *model.LoadError, cause error) model.Route {
	b.log.Warn().Err(cause).Str("code", string(loadErr.Code)).Msg("Session load failed")
	b.store.Reset()
	return errorRoute(loadErr)
}

func errorRoute(err *model.LoadError) model.Route {
	return model.Route{Name: model.RouteError, Error: err}
}

// toLoadError maps client errors to load error codes, keeping the server's
// message when it sent one.
func toLoadError(err error) *model.LoadError {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		switch {
		case errors.Is(err, client.ErrSession), errors.Is(err, client.ErrAlreadyAttempted):
			loadErr := model.NewLoadError(model.LoadErrorCode(apiErr.Code))
			if apiErr.Message != "" {
				loadErr.Message = apiErr.Message
			}
			return loadErr
		}
	}
	return model.NewLoadError(model.LoadErrUnavailable)
}
