package signaling

import (
	"encoding/json"
	"fmt"
)

// Candidate is one ICE candidate in the RTCIceCandidateInit JSON shape used by
// browsers. The embedded sender only fills Candidate and SDPMLineIndex.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// EncodeCandidate serializes a candidate into the payload of an ice message.
func EncodeCandidate(c Candidate) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeCandidate parses the payload of an ice message.
func DecodeCandidate(payload string) (Candidate, error) {
	var c Candidate
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Candidate{}, &CodecError{Err: fmt.Errorf("invalid candidate: %w", err)}
	}
	return c, nil
}
