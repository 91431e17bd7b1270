package signaling

import "context"

// Channel is a duplex signaling transport to the remote peer.
//
// Callbacks must be registered before Connect. OnClose fires at most once,
// whether the remote side or Close ended the connection.
type Channel interface {
	OnOpen(fn func())
	OnMessage(fn func(data []byte))
	OnClose(fn func(err error))

	// Connect opens the channel. Failures are *ChannelError.
	Connect(ctx context.Context) error
	// Send writes one message. It returns a *ChannelError wrapping ErrNotOpen
	// when the channel is not open and must never block indefinitely.
	Send(data []byte) error
	// Close is idempotent.
	Close() error
}

// SDPType is the type of a session description.
type SDPType string

const (
	SDPOffer  SDPType = "offer"
	SDPAnswer SDPType = "answer"
)

// PeerState mirrors the lifecycle state reported by the peer session.
type PeerState string

const (
	PeerNew          PeerState = "new"
	PeerConnecting   PeerState = "connecting"
	PeerConnected    PeerState = "connected"
	PeerDisconnected PeerState = "disconnected"
	PeerFailed       PeerState = "failed"
	PeerClosed       PeerState = "closed"
)

// Track is an opaque handle to a received media track.
type Track interface {
	ID() string
	StreamID() string
	Codec() string
}

// Session is one media negotiation session.
//
// Callbacks may fire on any goroutine; the controller serializes them.
type Session interface {
	SetRemoteDescription(typ SDPType, sdp string) error
	CreateAnswer() (string, error)
	SetLocalDescription(sdp string) error
	AddRemoteCandidate(c Candidate) error

	OnLocalCandidate(fn func(Candidate))
	OnTrack(fn func(Track))
	OnStateChange(fn func(PeerState))

	// Close releases all resources and is idempotent.
	Close() error
}

// SessionFactory creates a fresh Session for one negotiation.
type SessionFactory func() (Session, error)
