package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/fleetwatch/internal/notify"
)

const (
	streamWriteWait = 10 * time.Second
	streamReadLimit = 4 * 1024
)

// Stream message types.
const (
	StreamSnapshot = "snapshot"
	StreamEvent    = "event"
)

// StreamMessage is one frame on the notification stream. The first frame is
// always a snapshot; every later frame carries one store event.
type StreamMessage struct {
	Type          string                `json:"type"`
	Notifications []notify.Notification `json:"notifications,omitempty"`
	UnreadCount   int                   `json:"unread_count"`
	Event         *notify.Event         `json:"event,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Access is gated by the API key middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// stream handles GET /v1/notifications/stream.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	store, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("stream upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	if s.metrics != nil {
		s.metrics.StreamOpened()
		defer s.metrics.StreamClosed()
	}

	sub, list, unread := store.SubscribeWithSnapshot(s.subscriberBuffer)
	defer sub.Close()

	logger := s.logger.With(zap.String("request_id", requestID(r.Context())))
	logger.Debug("stream opened", zap.Int("snapshot", len(list)))

	if err := writeFrame(conn, StreamMessage{Type: StreamSnapshot, Notifications: list, UnreadCount: unread}); err != nil {
		logger.Debug("stream snapshot write failed", zap.Error(err))
		return
	}

	done := make(chan struct{})
	go s.readPump(conn, done)

	ping := time.NewTicker(s.streamPing)
	defer ping.Stop()

	for {
		select {
		case <-done:
			logger.Debug("stream closed by peer", zap.Int64("dropped", sub.Dropped()))
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(streamWriteWait))
			return
		case evt, open := <-sub.Events():
			if !open {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "store closed"),
					time.Now().Add(streamWriteWait))
				return
			}
			if err := writeFrame(conn, StreamMessage{Type: StreamEvent, UnreadCount: evt.Unread, Event: &evt}); err != nil {
				logger.Debug("stream write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				logger.Debug("stream ping failed", zap.Error(err))
				return
			}
		}
	}
}

// readPump discards client frames and closes done when the peer goes away or
// misses two ping intervals.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	deadline := 2 * s.streamPing
	conn.SetReadLimit(streamReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, msg StreamMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
