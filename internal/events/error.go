package events

import "errors"

var (
	ErrNoOrder        = errors.New("event carries no order")
	ErrPublishNacked  = errors.New("publish NACK from broker")
	ErrConfirmsClosed = errors.New("publisher confirm channel closed")
)
