package transport

import (
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Track is a received media track. It satisfies signaling.Track and exposes
// the RTP stream for the media consumer.
type Track struct {
	remote *webrtc.TrackRemote
}

func (t *Track) ID() string       { return t.remote.ID() }
func (t *Track) StreamID() string { return t.remote.StreamID() }

// Codec returns the negotiated MIME type, e.g. "video/H264".
func (t *Track) Codec() string { return t.remote.Codec().MimeType }

// Kind returns "video" or "audio".
func (t *Track) Kind() string { return t.remote.Kind().String() }

// ReadRTP reads the next RTP packet. It returns io.EOF once the track ends.
func (t *Track) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	return t.remote.ReadRTP()
}
