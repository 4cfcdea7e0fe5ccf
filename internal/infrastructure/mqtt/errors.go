package mqtt

import "errors"

// Errors returned by the broker client. Publish, subscribe and unsubscribe
// failures wrap the broker's cause, or ErrTimeout when the broker did not
// answer in time.
var (
	ErrNotConnected      = errors.New("mqtt: client not connected")
	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")
	ErrInvalidQoS        = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic      = errors.New("mqtt: topic cannot be empty")
	ErrTimeout           = errors.New("mqtt: operation timed out")
)
