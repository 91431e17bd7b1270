// Package media consumes received tracks: it reads RTP until the track ends,
// accounts packets and sequence gaps, and optionally records the stream to
// disk.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/h264writer"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"github.com/1ureka/piviewer/internal/util"
)

// ErrUnsupportedCodec is returned by NewRecorder for codecs without a
// container writer.
var ErrUnsupportedCodec = errors.New("no recorder for codec")

// Source is a received RTP stream, satisfied by *transport.Track.
type Source interface {
	ID() string
	Codec() string
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Options configures Consume.
type Options struct {
	// RecordDir, when set, is the directory recordings are written to.
	RecordDir string
	// ReorderWindow bounds how many packets wait on a sequence gap before a
	// recording skips it. Zero selects the default.
	ReorderWindow int
}

// Result summarizes one consumed track.
type Result struct {
	Packets  int64
	Bytes    int64
	Lost     int64
	Recorded string // file path, empty when nothing was recorded
}

// Consume reads src until it ends or ctx is cancelled. Reaching the end of
// the track, or the session closing underneath it, is not an error.
func Consume(ctx context.Context, src Source, opts Options) (Result, error) {
	var res Result

	util.Stats.AddTrack()
	defer util.Stats.RemoveTrack()

	var w media.Writer
	if opts.RecordDir != "" {
		rec, path, err := NewRecorder(opts.RecordDir, src.ID(), src.Codec())
		switch {
		case errors.Is(err, ErrUnsupportedCodec):
			util.LogInfo("not recording track %s: %v", src.ID(), err)
		case err != nil:
			return res, err
		default:
			w = rec
			res.Recorded = path
			util.LogInfo("recording track %s (%s) to %s", src.ID(), src.Codec(), path)
		}
	}
	reorder := newReorderBuffer(opts.ReorderWindow)
	defer func() {
		if w == nil {
			return
		}
		for _, p := range reorder.Flush() {
			if err := w.WriteRTP(p); err != nil {
				break
			}
		}
		if err := w.Close(); err != nil {
			util.LogWarning("close recording %s: %v", res.Recorded, err)
		}
	}()

	var seq gapCounter
	for {
		if ctx.Err() != nil {
			return res, nil
		}

		pkt, _, err := src.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return res, nil
			}
			return res, fmt.Errorf("read rtp: %w", err)
		}

		size := pkt.MarshalSize()
		res.Packets++
		res.Bytes += int64(size)
		util.Stats.AddPacket(size)

		if lost := seq.next(pkt.SequenceNumber); lost > 0 {
			res.Lost += int64(lost)
			util.Stats.AddLost(lost)
		}

		if w != nil {
			for _, p := range reorder.Feed(pkt) {
				if err := w.WriteRTP(p); err != nil {
					util.LogWarning("recording %s stopped: %v", res.Recorded, err)
					w.Close()
					w = nil
					break
				}
			}
		}
	}
}

// NewRecorder opens a container writer for codec inside dir: Annex-B for
// H264, IVF for VP8 and Ogg for Opus.
func NewRecorder(dir, trackID, codec string) (media.Writer, string, error) {
	var ext string
	switch {
	case strings.EqualFold(codec, webrtc.MimeTypeH264):
		ext = ".h264"
	case strings.EqualFold(codec, webrtc.MimeTypeVP8):
		ext = ".ivf"
	case strings.EqualFold(codec, webrtc.MimeTypeOpus):
		ext = ".ogg"
	default:
		return nil, "", fmt.Errorf("%w %s", ErrUnsupportedCodec, codec)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create record dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s%s", sanitize(trackID), time.Now().Format("20060102-150405"), ext)
	path := filepath.Join(dir, name)

	var (
		w   media.Writer
		err error
	)
	switch ext {
	case ".h264":
		w, err = h264writer.New(path)
	case ".ivf":
		w, err = ivfwriter.New(path)
	case ".ogg":
		w, err = oggwriter.New(path, 48000, 2)
	}
	if err != nil {
		return nil, "", fmt.Errorf("open recording: %w", err)
	}
	return w, path, nil
}

// sanitize keeps track ids usable as file names.
func sanitize(id string) string {
	if id == "" {
		return "track"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}

// gapCounter counts missing RTP sequence numbers. Reordered or duplicate
// packets are not counted as loss.
type gapCounter struct {
	started bool
	last    uint16
}

func (g *gapCounter) next(seq uint16) int {
	if !g.started {
		g.started = true
		g.last = seq
		return 0
	}
	diff := int16(seq - g.last)
	if diff <= 0 {
		return 0
	}
	g.last = seq
	return int(diff) - 1
}
