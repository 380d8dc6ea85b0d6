package core

import "errors"

var (
	ErrHostExists         = errors.New("host already exists")
	ErrHostNotFound       = errors.New("host not found")
	ErrMessageExists      = errors.New("message already buffered")
	ErrNoIncoming         = errors.New("no incoming transfer for message")
	ErrInvalidEnergyRange = errors.New("initial energy must have one or two values")
	ErrNoRouter           = errors.New("host has no router")
)

// ReceiveResult is the outcome of offering a message to a router. None
// of the values are failures of the simulator; they steer the sender.
type ReceiveResult int

const (
	// Accepted means the transfer started.
	Accepted ReceiveResult = iota
	// Busy means the receiver or the connection is occupied; retry later.
	Busy
	// Duplicate means the receiver holds or already consumed the message.
	Duplicate
	// ExpiredRejected means the TTL is spent and the receiver is not a sink.
	ExpiredRejected
	// NoSpace means the receiver could not free enough buffer.
	NoSpace
	// Denied means the receiver refuses all transfers, e.g. it has no energy.
	Denied
)

func (r ReceiveResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Busy:
		return "busy"
	case Duplicate:
		return "duplicate"
	case ExpiredRejected:
		return "expired"
	case NoSpace:
		return "no_space"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// TryLater reports whether the sender should stop offering messages on
// this connection for the current tick.
func (r ReceiveResult) TryLater() bool {
	return r == Busy
}
