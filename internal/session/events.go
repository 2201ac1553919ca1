package session

import "leadchat/internal/domain"

type EventType string

const (
	EventTurn      EventType = "turn"
	EventCountdown EventType = "countdown"
	EventComplete  EventType = "complete"
)

type Event struct {
	Type      EventType               `json:"type"`
	SessionID string                  `json:"session_id"`
	Turn      *domain.Turn            `json:"turn,omitempty"`
	Remaining int                     `json:"remaining,omitempty"`
	Snapshot  *domain.SessionSnapshot `json:"snapshot,omitempty"`
}

const subscriberBuffer = 32

// Subscribe returns a channel of session events and a cancel func. The channel
// is closed once the session completes or cancel is called. A subscriber that
// falls behind loses events instead of stalling the session.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if c.phase == domain.PhaseComplete {
		snap := c.snapshotLocked()
		ch <- Event{Type: EventComplete, SessionID: c.id, Snapshot: &snap}
		close(ch)
		return ch, func() {}
	}
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	c.nextSub++
	id := c.nextSub
	c.subs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

func (c *Controller) publishLocked(ev Event) {
	ev.SessionID = c.id
	for id, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.logger.Warn("session subscriber lagging, event dropped", "session_id", c.id, "subscriber", id, "event", ev.Type)
		}
	}
}

func (c *Controller) closeSubscribersLocked() {
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}
