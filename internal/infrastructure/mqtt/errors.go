package mqtt

import "errors"

// Errors returned by Client. Check them with errors.Is; most are wrapped
// with the broker address or topic involved.
var (
	// Connection state.
	ErrConnectionFailed = errors.New("mqtt: could not connect to broker")
	ErrNotConnected     = errors.New("mqtt: not connected to broker")

	// Broker round trips that failed or were not acknowledged in time.
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// Caller mistakes, reported before anything reaches the broker.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
	ErrInvalidQoS   = errors.New("mqtt: QoS must be 0, 1 or 2")
)
