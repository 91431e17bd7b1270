package signaling

// State is the controller's negotiation state.
type State int

const (
	StateIdle State = iota
	StateSignalingUp
	StateNegotiating
	StateEstablished
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSignalingUp:
		return "signaling-up"
	case StateNegotiating:
		return "negotiating"
	case StateEstablished:
		return "established"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StatusKind classifies a Status.
type StatusKind int

const (
	StatusDisconnected StatusKind = iota
	StatusSignalingConnected
	StatusOfferReceived
	StatusAnswerSent
	StatusPeerState
	StatusStreamReceived
	StatusError
)

// Status is the caller-visible connection status. It is a projection for
// display and plays no part in protocol decisions. Detail carries the peer
// state for StatusPeerState and the message for StatusError.
type Status struct {
	Kind   StatusKind
	Detail string
}

func (s Status) String() string {
	switch s.Kind {
	case StatusDisconnected:
		return "Disconnected"
	case StatusSignalingConnected:
		return "Signaling Server Connected"
	case StatusOfferReceived:
		return "Received Offer"
	case StatusAnswerSent:
		return "Sent Answer"
	case StatusPeerState:
		return "WebRTC State: " + s.Detail
	case StatusStreamReceived:
		return "Stream Received"
	case StatusError:
		return "Error: " + s.Detail
	default:
		return "Unknown"
	}
}
