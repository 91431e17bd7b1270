// Package signaling drives one viewer-side WebRTC negotiation over a signaling
// channel. It decodes offer/answer/ice messages, feeds them to a peer session
// and sends the answer and local ICE candidates back out. The channel and the
// peer session are collaborators behind the Channel and Session interfaces.
package signaling

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the kind of signaling message.
type Kind string

const (
	KindOffer  Kind = "offer"
	KindAnswer Kind = "answer"
	KindICE    Kind = "ice"
)

// Message is one decoded signaling message. Payload holds SDP text for
// offer/answer and a JSON-encoded Candidate for ice.
type Message struct {
	Kind    Kind
	Payload string
}

// wireMessage is the JSON record exchanged on the channel, identical in both
// directions: {"type": "offer" | "answer" | "ice", "data": "..."}.
type wireMessage struct {
	Type string  `json:"type"`
	Data *string `json:"data,omitempty"`
}

// Known reports whether the kind is one this package understands.
func (k Kind) Known() bool {
	switch k {
	case KindOffer, KindAnswer, KindICE:
		return true
	}
	return false
}

// Encode serializes a Message into its wire representation.
func Encode(msg Message) ([]byte, error) {
	w := wireMessage{Type: string(msg.Kind)}
	if msg.Payload != "" {
		payload := msg.Payload
		w.Data = &payload
	}
	return json.Marshal(w)
}

// Decode parses a wire record. Records that are not JSON objects, lack a
// "type", or carry a known type without a non-empty "data" yield a
// *CodecError. Unknown types decode successfully; callers ignore them.
func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, &CodecError{Err: err}
	}
	if w.Type == "" {
		return Message{}, &CodecError{Err: fmt.Errorf("missing message type")}
	}

	msg := Message{Kind: Kind(w.Type)}
	if w.Data != nil {
		msg.Payload = *w.Data
	}

	if msg.Kind.Known() && msg.Payload == "" {
		return Message{}, &CodecError{Err: fmt.Errorf("%s message without data", msg.Kind)}
	}
	return msg, nil
}
