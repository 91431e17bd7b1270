package signaling

import (
	"errors"
	"fmt"
)

// ErrNotOpen is wrapped by a *ChannelError when sending on a channel that is
// not (or no longer) open.
var ErrNotOpen = errors.New("signaling channel not open")

// ErrClosed is returned by Start after the controller has been closed.
var ErrClosed = errors.New("signaling controller closed")

// ChannelError reports a transport-level failure (connect or send).
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string { return fmt.Sprintf("channel %s: %v", e.Op, e.Err) }
func (e *ChannelError) Unwrap() error { return e.Err }

// CodecError reports an inbound message that could not be decoded.
type CodecError struct {
	Err error
}

func (e *CodecError) Error() string { return fmt.Sprintf("decode signaling message: %v", e.Err) }
func (e *CodecError) Unwrap() error { return e.Err }

// NegotiationError reports a session operation rejected in the current
// negotiation state.
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *NegotiationError) Unwrap() error { return e.Err }
