package mqtt

import "errors"

var (
	// ErrConnectionFailed is returned when the broker cannot be reached.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrSubscribeFailed is returned when a subscription is not acknowledged.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrPublishFailed is returned when a command cannot be published.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrNoMessageReceived is returned when no payload arrived for a topic.
	ErrNoMessageReceived = errors.New("mqtt: no message received")
)
