package chat

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/snapspot/snapspot-chat.git/internal/auth"
	"github.com/snapspot/snapspot-chat.git/internal/presence"
)

// Gateway owns the session lifecycle and is the only component that sees
// raw connection events. Each session moves Connected -> Authenticated ->
// Closed; every other component is reached through the registry or the
// router.
type Gateway struct {
	registry *presence.Registry
	router   *Router
	verifier auth.Verifier
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session // every live session, authenticated or not
}

func NewGateway(reg *presence.Registry, router *Router, verifier auth.Verifier, log *slog.Logger) *Gateway {
	return &Gateway{
		registry: reg,
		router:   router,
		verifier: verifier,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// OnConnect admits a new, not yet authenticated session.
func (g *Gateway) OnConnect(s *Session) {
	g.mu.Lock()
	g.sessions[s.SID()] = s
	g.mu.Unlock()
	g.log.Debug("session connected", "session", s.SID())
}

// Serve runs the session's read loop until the transport drops. The
// caller is responsible for pairing it with OnConnect/OnDisconnect.
func (g *Gateway) Serve(s *Session) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		g.HandleFrame(s, data)
	}
}

// HandleFrame dispatches one inbound frame. Malformed frames are dropped;
// the session stays open either way.
func (g *Gateway) HandleFrame(s *Session, data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		g.log.Debug("malformed frame dropped", "session", s.SID(), "error", err)
		return
	}
	switch f.Type {
	case frameAuthenticate:
		g.onAuthenticate(s, f.Token)
	case framePrivateMessage:
		g.onInboundMessage(s, f.RecipientID, f.Content)
	case frameTyping:
		g.onTyping(s, f.RecipientID, f.IsTyping)
	default:
		_ = s.Push(marshalEvent(errorEvent{Type: EventError, Error: "unknown frame type: " + f.Type}))
	}
}

// onAuthenticate resolves the token, registers the identity and brings
// the session up to date: everyone else hears user_online, this session
// gets the full online snapshot.
func (g *Gateway) onAuthenticate(s *Session, token string) {
	userID, err := g.verifier.Verify(token)
	if err != nil {
		g.log.Warn("authentication rejected", "session", s.SID(), "error", err)
		_ = s.Push(marshalEvent(errorEvent{Type: EventError, Error: "authentication failed"}))
		return
	}

	// A session keeps the identity it authenticated with. Switching users
	// means reconnecting; honoring the switch here would have to tear down
	// the old presence entry mid-session.
	if current := s.UserID(); current != "" && current != userID {
		g.log.Warn("identity switch rejected", "session", s.SID(), "user", current, "requested", userID)
		_ = s.Push(marshalEvent(errorEvent{Type: EventError, Error: "already authenticated"}))
		return
	}

	prev := g.registry.Register(userID, s)
	s.setUserID(userID)

	// Single-session model: close the superseded transport instead of
	// leaving a zombie writer under a stale identity. Its disconnect is
	// a registry no-op because it lost ownership above.
	if prev != nil && prev.SID() != s.SID() {
		if old, ok := prev.(*Session); ok {
			old.Close()
		}
		g.log.Info("previous session superseded", "user", userID, "old_session", prev.SID(), "new_session", s.SID())
	}

	if prev == nil || prev.SID() != s.SID() {
		g.broadcast(s, marshalEvent(presenceEvent{Type: EventUserOnline, UserID: userID}))
	}
	_ = s.Push(marshalEvent(onlineUsersEvent{Type: EventOnlineUsers, Users: g.registry.Snapshot()}))
	g.log.Info("session authenticated", "session", s.SID(), "user", userID)
}

func (g *Gateway) onInboundMessage(s *Session, recipientID, content string) {
	senderID := s.UserID()
	if senderID == "" {
		g.log.Warn("message before authentication dropped", "session", s.SID())
		_ = s.Push(marshalEvent(errorEvent{Type: EventError, Error: ErrUnauthenticated.Error()}))
		return
	}
	if _, err := g.router.Route(senderID, recipientID, content); err != nil {
		// Failure stays scoped to this request; other sessions are unaffected.
		g.log.Error("routing failed", "session", s.SID(), "sender", senderID, "recipient", recipientID, "error", err)
		_ = s.Push(marshalEvent(errorEvent{Type: EventError, Error: "message not sent"}))
	}
}

func (g *Gateway) onTyping(s *Session, recipientID string, isTyping bool) {
	senderID := s.UserID()
	if senderID == "" {
		return
	}
	g.router.RelayTyping(senderID, recipientID, isTyping)
}

// OnDisconnect finalizes a session. Idempotent: the transport error path
// and an explicit close may both land here.
func (g *Gateway) OnDisconnect(s *Session) {
	g.mu.Lock()
	_, live := g.sessions[s.SID()]
	delete(g.sessions, s.SID())
	g.mu.Unlock()
	if !live {
		return
	}

	s.Close()
	if userID, ok := g.registry.Unregister(s); ok {
		g.broadcast(s, marshalEvent(presenceEvent{Type: EventUserOffline, UserID: userID}))
		g.log.Info("session disconnected", "session", s.SID(), "user", userID)
		return
	}
	g.log.Debug("unauthenticated session disconnected", "session", s.SID())
}

// broadcast pushes data to every live session except the origin. Slow
// consumers are skipped, not waited on.
func (g *Gateway) broadcast(except *Session, data []byte) {
	g.mu.Lock()
	targets := make([]*Session, 0, len(g.sessions))
	for _, sess := range g.sessions {
		if except != nil && sess.SID() == except.SID() {
			continue
		}
		targets = append(targets, sess)
	}
	g.mu.Unlock()

	for _, sess := range targets {
		if err := sess.Push(data); err != nil {
			g.log.Debug("broadcast skipped", "session", sess.SID(), "error", err)
		}
	}
}
