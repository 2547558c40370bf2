// Package chat wires live transport sessions to the presence registry and
// the durable message store.
package chat

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// ConnLike is the subset of the websocket connection a session needs,
// kept as an interface so tests can drive sessions without a socket.
type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

// Session is one live transport connection. The user identity stays empty
// until the gateway authenticates the session; it is set at most once.
type Session struct {
	id          string
	conn        ConnLike
	send        chan []byte
	done        chan struct{}
	connectedAt time.Time

	mu     sync.RWMutex
	userID string

	closeOnce sync.Once
}

func NewSession(conn ConnLike, buffer int) *Session {
	return &Session{
		id:          uuid.NewString(),
		conn:        conn,
		send:        make(chan []byte, buffer),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
}

// SID returns the connection-unique session identifier.
func (s *Session) SID() string { return s.id }

// UserID returns the authenticated identity, or "" before authentication.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// setUserID records the authenticated identity. The first value sticks.
func (s *Session) setUserID(id string) {
	s.mu.Lock()
	if s.userID == "" {
		s.userID = id
	}
	s.mu.Unlock()
}

// Push queues data for delivery without blocking. A full buffer means the
// peer stopped draining and is treated as a transport failure; the caller
// decides whether that matters.
func (s *Session) Push(data []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrSessionBusy
	}
}

// WritePump drains the send buffer onto the connection until the session
// closes or a write fails.
func (s *Session) WritePump() {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// Close tears down the transport. Safe to call any number of times; the
// transport and the disconnect path may both race here.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
