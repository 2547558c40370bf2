package store

import "errors"

var (
	ErrValidation   = errors.New("invalid message")
	ErrNotFound     = errors.New("message not found")
	ErrNotRecipient = errors.New("requester is not the recipient")
)
