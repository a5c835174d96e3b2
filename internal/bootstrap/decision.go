// Package bootstrap decides, on entry, whether to resume the persisted exam
// session, fetch a new one, or leave.
package bootstrap

import "github.com/stemsi/exstem-portal/internal/model"

// Action is the outcome of the entry decision.
type Action string

const (
	ActionResume    Action = "resume"
	ActionFetch     Action = "fetch"
	ActionComplete  Action = "complete"
	ActionCorrupted Action = "corrupted"
	ActionLeave     Action = "leave"
)

// Persisted is what the rehydrated store holds at entry. Consistent implies a
// loaded session.
type Persisted struct {
	Token         string
	Consistent    bool
	TimeRemaining int
	Submitted     bool
}

// PersistedFrom summarizes a store snapshot.
func PersistedFrom(s model.SessionState) Persisted {
	return Persisted{
		Token:         s.Token,
		Consistent:    s.Consistent(),
		TimeRemaining: s.TimeRemaining,
		Submitted:     s.Submitted,
	}
}

// Finished reports whether the persisted attempt can no longer be taken.
func (p Persisted) Finished() bool {
	return p.TimeRemaining <= 0 || p.Submitted
}

// Decision is the chosen action and the token to fetch with, if any.
type Decision struct {
	Action Action
	Token  string
}

// Decide evaluates the entry table top to bottom; the first matching row wins.
//
//	url == persisted, data valid and running  → resume
//	url == persisted, anything else           → fetch with url
//	url present, persisted differs or absent  → fetch with url
//	no url, persisted, consistent, finished   → complete
//	no url, persisted, consistent, running    → resume
//	no url, persisted, inconsistent           → corrupted
//	no url, nothing persisted                 → leave
func Decide(urlToken string, p Persisted) Decision {
	if urlToken != "" {
		if urlToken == p.Token && p.Consistent && !p.Finished() {
			return Decision{Action: ActionResume, Token: urlToken}
		}
		return Decision{Action: ActionFetch, Token: urlToken}
	}

	if p.Token == "" {
		return Decision{Action: ActionLeave}
	}
	if !p.Consistent {
		return Decision{Action: ActionCorrupted, Token: p.Token}
	}
	if p.Finished() {
		return Decision{Action: ActionComplete, Token: p.Token}
	}
	return Decision{Action: ActionResume, Token: p.Token}
}
