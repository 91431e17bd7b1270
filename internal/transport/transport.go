// Package transport adapts pion/webrtc to the viewer's negotiation session:
// one receive-only PeerConnection per negotiation, answering the camera's
// offer and surfacing its media tracks.
package transport

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/piviewer/internal/signaling"
	"github.com/1ureka/piviewer/internal/util"
)

// Session wraps a single PeerConnection and implements signaling.Session.
// Lifecycle decisions are left to the controller that owns the session.
type Session struct {
	pc *webrtc.PeerConnection

	closeOnce sync.Once
	closeErr  error
}

var _ signaling.Session = (*Session)(nil)

// NewSession creates a Session backed by a new PeerConnection from api.
func NewSession(api *webrtc.API, iceServers []string) (*Session, error) {
	pc, err := newPeerConnection(api, iceServers)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return &Session{pc: pc}, nil
}

// NewFactory returns a signaling.SessionFactory producing Sessions from api.
func NewFactory(api *webrtc.API, iceServers []string) signaling.SessionFactory {
	return func() (signaling.Session, error) {
		return NewSession(api, iceServers)
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Close shuts the PeerConnection down. Later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.pc.Close()
	})
	return s.closeErr
}

// OnStateChange registers the connection state callback.
func (s *Session) OnStateChange(fn func(signaling.PeerState)) {
	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		fn(signaling.PeerState(state.String()))
	})
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// SetRemoteDescription parses and applies the remote SDP.
func (s *Session) SetRemoteDescription(typ signaling.SDPType, text string) error {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(text)); err != nil {
		return fmt.Errorf("parse remote %s: %w", typ, err)
	}
	if util.DebugEnabled() {
		for _, md := range desc.MediaDescriptions {
			util.LogDebug("remote media: %s", describeMedia(md))
		}
	}

	return s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(string(typ)),
		SDP:  text,
	})
}

// CreateAnswer generates an SDP answer for the applied offer.
func (s *Session) CreateAnswer() (string, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	return answer.SDP, nil
}

// SetLocalDescription applies the local answer SDP and starts gathering.
func (s *Session) SetLocalDescription(text string) error {
	return s.pc.SetLocalDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  text,
	})
}

// AddRemoteCandidate adds a remote ICE candidate received through signaling.
func (s *Session) AddRemoteCandidate(c signaling.Candidate) error {
	return s.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

// OnLocalCandidate registers a callback for gathered local candidates. The
// end-of-gathering marker is not forwarded.
func (s *Session) OnLocalCandidate(fn func(signaling.Candidate)) {
	s.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		fn(signaling.Candidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// OnTrack registers a callback for remote tracks. A keyframe is requested as
// soon as a video track arrives.
func (s *Session) OnTrack(fn func(signaling.Track)) {
	s.pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() == webrtc.RTPCodecTypeVideo {
			err := s.pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(remote.SSRC())},
			})
			if err != nil {
				util.LogWarning("request keyframe (ssrc=%d): %v", remote.SSRC(), err)
			}
		}
		fn(&Track{remote: remote})
	})
}

// describeMedia renders one media section as "video 96 H264/90000 sendonly".
func describeMedia(md *sdp.MediaDescription) string {
	parts := []string{md.MediaName.Media}
	for _, a := range md.Attributes {
		switch a.Key {
		case "rtpmap":
			parts = append(parts, a.Value)
		case "sendonly", "recvonly", "sendrecv", "inactive":
			parts = append(parts, a.Key)
		}
	}
	return strings.Join(parts, " ")
}
