package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/arstage/internal/session"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// EventSource hands out session event subscriptions.
type EventSource interface {
	Subscribe(buffer int) (<-chan session.Event, func())
}

// EventsHandler streams session events to WebSocket clients as JSON.
type EventsHandler struct {
	source EventSource
	logger *slog.Logger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(source EventSource, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EventsHandler{source: source, logger: logger}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	events, cancel := h.source.Subscribe(64)
	defer cancel()

	// Reading is only needed to notice the client closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("websocket write", "err", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
