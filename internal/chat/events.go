package chat

import (
	"encoding/json"

	"github.com/snapspot/snapspot-chat.git/internal/store"
)

// Frame is one inbound client frame; Type selects which fields apply.
type Frame struct {
	Type        string `json:"type"`
	Token       string `json:"token,omitempty"`
	RecipientID string `json:"recipient_id,omitempty"`
	Content     string `json:"content,omitempty"`
	IsTyping    bool   `json:"is_typing,omitempty"`
}

const (
	frameAuthenticate   = "authenticate"
	framePrivateMessage = "private_message"
	frameTyping         = "typing"
)

// Outbound event types.
const (
	EventOnlineUsers = "online_users"
	EventUserOnline  = "user_online"
	EventUserOffline = "user_offline"
	EventNewMessage  = "new_message"
	EventMessageSent = "message_sent"
	EventUserTyping  = "user_typing"
	EventError       = "error"
)

type onlineUsersEvent struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

type presenceEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

type messageEvent struct {
	Type    string        `json:"type"`
	Message store.Message `json:"message"`
}

type typingEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func marshalEvent(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}
