// Package store keeps the durable log of direct messages and answers the
// read-side conversation queries derived from it.
package store

import "time"

// Message is one directed message between two users. Everything except the
// Read flag is immutable once appended.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	Read        bool      `json:"read"`

	// Seq is the store-wide append sequence. Two messages created in the
	// same instant still have distinct, ordered sequences, so it doubles
	// as the "later insert wins" tiebreaker.
	Seq uint64 `json:"seq"`
}

// ConversationSummary is the derived per-counterpart state of one user's
// conversations. It is recomputed on demand and never stored.
type ConversationSummary struct {
	CounterpartID string  `json:"counterpart_id"`
	LastMessage   Message `json:"last_message"`
	UnreadCount   int     `json:"unread_count"`
}

// CounterpartOf returns the other participant of m relative to selfID.
func CounterpartOf(m Message, selfID string) string {
	if m.SenderID == selfID {
		return m.RecipientID
	}
	return m.SenderID
}
