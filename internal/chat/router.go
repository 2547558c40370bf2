package chat

import (
	"log/slog"

	"github.com/snapspot/snapspot-chat.git/internal/presence"
	"github.com/snapspot/snapspot-chat.git/internal/store"
)

// RouteResult reports what happened to one outbound message. Delivered is
// best effort: false only means the recipient had no usable live session
// at routing time, never that the message was lost.
type RouteResult struct {
	Message   store.Message
	Delivered bool
}

// Router persists outbound messages and attempts live delivery to the
// recipient's session.
type Router struct {
	store    *store.MessageStore
	registry *presence.Registry
	log      *slog.Logger
}

func NewRouter(st *store.MessageStore, reg *presence.Registry, log *slog.Logger) *Router {
	return &Router{store: st, registry: reg, log: log}
}

// Route appends the message, then forwards it if the recipient is online
// and echoes it back to the sender's live session. The append is the
// ground truth: a forwarding failure downgrades Delivered but never rolls
// back the write.
func (r *Router) Route(senderID, recipientID, content string) (RouteResult, error) {
	msg, err := r.store.Append(senderID, recipientID, content)
	if err != nil {
		return RouteResult{}, err
	}

	res := RouteResult{Message: msg}
	if sess, ok := r.registry.Lookup(recipientID); ok {
		if err := sess.Push(marshalEvent(messageEvent{Type: EventNewMessage, Message: msg})); err != nil {
			r.log.Warn("live delivery failed", "message", msg.ID, "recipient", recipientID, "session", sess.SID(), "error", err)
		} else {
			res.Delivered = true
		}
	}

	if sess, ok := r.registry.Lookup(senderID); ok {
		if err := sess.Push(marshalEvent(messageEvent{Type: EventMessageSent, Message: msg})); err != nil {
			r.log.Warn("sender echo failed", "message", msg.ID, "sender", senderID, "error", err)
		}
	}

	return res, nil
}

// RelayTyping forwards a typing indicator. Nothing is persisted and an
// offline recipient simply misses it.
func (r *Router) RelayTyping(senderID, recipientID string, isTyping bool) {
	sess, ok := r.registry.Lookup(recipientID)
	if !ok {
		return
	}
	if err := sess.Push(marshalEvent(typingEvent{Type: EventUserTyping, UserID: senderID, IsTyping: isTyping})); err != nil {
		r.log.Debug("typing relay dropped", "recipient", recipientID, "error", err)
	}
}
