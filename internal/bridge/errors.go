package bridge

import "errors"

var (
	// ErrInvalidPayload is returned for messages that are not valid JSON or
	// lack a required field.
	ErrInvalidPayload = errors.New("bridge: invalid payload")

	// ErrTopicMismatch is returned when the API key belongs to a different
	// device than the one named in the topic.
	ErrTopicMismatch = errors.New("bridge: topic does not match device")

	// ErrUnknownTopic is returned for topics the bridge does not handle.
	ErrUnknownTopic = errors.New("bridge: unknown topic")
)
