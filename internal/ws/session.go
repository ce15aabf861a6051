package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reflexapp/reflex-backend/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Session is one authenticated socket connection. Reads are driven by the
// channel handlers one frame at a time (per-connection FIFO); writes go
// through the buffered send channel and the write pump, so broadcasts from
// other connections never interleave mid-frame.
type Session struct {
	UserID string

	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

// NewSession binds a verified user id to an upgraded connection.
func NewSession(userID string, conn *websocket.Conn) *Session {
	return &Session{
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// Run starts the write pump. The read side stays with the channel handler.
func (s *Session) Run() {
	go s.writePump()
}

// Close shuts the connection down; safe to call multiple times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// CloseUnauthorized rejects the connection with a policy-violation close
// frame (1008) before any processing.
func (s *Session) CloseUnauthorized(reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	s.Close()
}

// Send marshals v and enqueues it for delivery. A full buffer drops the
// frame rather than blocking the caller.
func (s *Session) Send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to encode frame", "user_id", s.UserID, "err", err)
		return
	}

	select {
	case <-s.done:
	case s.send <- data:
	default:
		logger.Warn("send buffer full, dropping frame", "user_id", s.UserID)
	}
}

// ReadFrame blocks for the next client frame.
func (s *Session) ReadFrame() ([]byte, error) {
	_, raw, err := s.conn.ReadMessage()
	return raw, err
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		s.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-s.done:
			return

		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
