package session

const subscriberBuffer = 16

// Subscribe returns a channel receiving a Change after every applied mutation.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Store) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)

	s.subsMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.subsMu.Unlock()
	}
	return ch, cancel
}

// publishLocked must be called with s.mu held so changes are delivered in the
// order they were applied.
func (s *Store) publishLocked(op Op) {
	change := Change{
		Op:              op,
		SessionID:       s.state.SessionID(),
		CurrentQuestion: s.state.CurrentQuestion,
		TimeRemaining:   s.state.TimeRemaining,
		Submitted:       s.state.Submitted,
		Active:          s.state.Active(),
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for ch := range s.subscribers {
		select {
		case ch <- change:
		default:
			// Slow subscriber: drop its oldest change instead of blocking writers.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- change:
			default:
			}
		}
	}
}
