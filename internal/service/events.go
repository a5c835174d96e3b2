package service

import (
	"sync"

	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/session"
)

// EventType names a portal event pushed to UI subscribers.
type EventType string

const (
	EventState                 EventType = "state"
	EventRoute                 EventType = "route"
	EventNotification          EventType = "notification"
	EventNotificationDismissed EventType = "notification_dismissed"
)

// Event is one update for the UI.
type Event struct {
	Type           EventType           `json:"event"`
	State          *session.Change     `json:"state,omitempty"`
	Route          *model.Route        `json:"route,omitempty"`
	Notification   *model.Notification `json:"notification,omitempty"`
	NotificationID string              `json:"notification_id,omitempty"`
}

const eventBuffer = 32

// broadcaster fans events out to subscribers, dropping the oldest pending
// event of a subscriber that falls behind.
type broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan Event]struct{})}
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}
