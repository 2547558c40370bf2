package chat

import "errors"

var (
	ErrUnauthenticated = errors.New("session not authenticated")
	ErrSessionBusy     = errors.New("session send buffer full")
	ErrSessionClosed   = errors.New("session closed")
)
