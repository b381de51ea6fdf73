package session

import (
	"sync"
	"time"
)

// Event types published by a session.
const (
	EventStarted         = "session_started"
	EventStopped         = "session_stopped"
	EventRestarted       = "session_restarted"
	EventMarkerFound     = "marker_found"
	EventMarkerLost      = "marker_lost"
	EventMarkerRevealed  = "marker_revealed"
	EventGesture         = "gesture"
	EventGesturesToggled = "gestures_toggled"
	EventTap             = "tap"
	EventCapture         = "capture"
)

// Event is one notification for observers such as the tray or websocket clients.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// bus fans events out to subscribers. Slow subscribers lose events.
type bus struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func (b *bus) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[chan Event]struct{})
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *bus) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
