package transport

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
)

// DefaultSTUNServers are used when no ICE servers are configured. No TURN:
// the camera and the viewer are expected to reach each other directly.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// APIOptions configures NewAPI.
type APIOptions struct {
	// Debug forwards pion's debug and info logs to the application logger.
	Debug bool
	// DisableKeyframeRequests turns off the periodic PLI sent on received
	// video tracks.
	DisableKeyframeRequests bool
}

// NewAPI builds the webrtc.API shared by every session: default codecs,
// default interceptors plus a periodic keyframe request, and pion logging
// routed through the application logger.
func NewAPI(opts APIOptions) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	if !opts.DisableKeyframeRequests {
		pli, err := intervalpli.NewReceiverInterceptor()
		if err != nil {
			return nil, fmt.Errorf("create pli interceptor: %w", err)
		}
		registry.Add(pli)
	}

	se := webrtc.SettingEngine{}
	se.LoggerFactory = NewLoggerFactory(opts.Debug)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	), nil
}

// newPeerConnection creates a PeerConnection for the given STUN/TURN URLs,
// falling back to DefaultSTUNServers when none are given.
func newPeerConnection(api *webrtc.API, iceServers []string) (*webrtc.PeerConnection, error) {
	if len(iceServers) == 0 {
		iceServers = DefaultSTUNServers
	}
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: iceServers},
		},
	}
	return api.NewPeerConnection(config)
}
