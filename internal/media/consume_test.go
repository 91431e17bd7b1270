package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// fakeSource replays a fixed list of packets, then ends with err (io.EOF by
// default).
type fakeSource struct {
	id      string
	codec   string
	packets []*rtp.Packet
	err     error
}

func (f *fakeSource) ID() string    { return f.id }
func (f *fakeSource) Codec() string { return f.codec }

func (f *fakeSource) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	if len(f.packets) == 0 {
		if f.err != nil {
			return nil, nil, f.err
		}
		return nil, nil, io.EOF
	}
	pkt := f.packets[0]
	f.packets = f.packets[1:]
	return pkt, nil, nil
}

func packet(seq uint16, payload []byte) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      uint32(seq) * 3000,
			SSRC:           0x1234,
			Marker:         true,
		},
		Payload: payload,
	}
}

// TestConsumeCountsPacketsAndLoss verifies packet, byte and gap accounting.
func TestConsumeCountsPacketsAndLoss(t *testing.T) {
	src := &fakeSource{
		id:    "video",
		codec: webrtc.MimeTypeH264,
		packets: []*rtp.Packet{
			packet(10, []byte{1, 2, 3}),
			packet(11, []byte{1, 2, 3}),
			packet(14, []byte{1, 2, 3}), // 12, 13 missing
			packet(13, []byte{1, 2, 3}), // late, not loss
			packet(15, []byte{1, 2, 3}),
		},
	}

	res, err := Consume(context.Background(), src, Options{})
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if res.Packets != 5 {
		t.Errorf("Packets = %d, want 5", res.Packets)
	}
	if want := int64(5 * (12 + 3)); res.Bytes != want {
		t.Errorf("Bytes = %d, want %d", res.Bytes, want)
	}
	if res.Lost != 2 {
		t.Errorf("Lost = %d, want 2", res.Lost)
	}
	if res.Recorded != "" {
		t.Errorf("Recorded = %q without a record dir", res.Recorded)
	}
}

// TestGapCounterWraps verifies loss counting across the 16-bit wrap.
func TestGapCounterWraps(t *testing.T) {
	var g gapCounter
	testCases := []struct {
		seq  uint16
		lost int
	}{
		{65533, 0},
		{65534, 0},
		{1, 2}, // 65535 and 0 missing
		{1, 0}, // duplicate
		{2, 0},
	}
	for _, tc := range testCases {
		if got := g.next(tc.seq); got != tc.lost {
			t.Errorf("next(%d) = %d, want %d", tc.seq, got, tc.lost)
		}
	}
}

// TestConsumeRecordsH264 verifies that an H264 track lands on disk as an
// Annex-B stream.
func TestConsumeRecordsH264(t *testing.T) {
	dir := t.TempDir()
	sps := []byte{0x67, 0x42, 0xc0, 0x1f, 0xda, 0x01, 0x40, 0x16}
	idr := []byte{0x65, 0x88, 0x84, 0x00, 0x33, 0xff}

	src := &fakeSource{
		id:      "pi/cam0",
		codec:   "video/h264",
		packets: []*rtp.Packet{packet(1, sps), packet(2, idr)},
	}

	res, err := Consume(context.Background(), src, Options{RecordDir: dir})
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if filepath.Dir(res.Recorded) != dir || !strings.HasSuffix(res.Recorded, ".h264") {
		t.Fatalf("Recorded = %q, want an .h264 file in %s", res.Recorded, dir)
	}
	if !strings.HasPrefix(filepath.Base(res.Recorded), "pi_cam0-") {
		t.Errorf("track id not sanitized: %q", res.Recorded)
	}

	data, err := os.ReadFile(res.Recorded)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0, 0, 0, 1, 0x67}) {
		t.Errorf("recording does not start with an SPS start code: % x", data[:min(len(data), 8)])
	}
}

// TestConsumeUnsupportedCodecDrains verifies that a codec without a writer is
// still consumed, just not recorded.
func TestConsumeUnsupportedCodecDrains(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{
		id:      "video",
		codec:   "video/AV1",
		packets: []*rtp.Packet{packet(1, []byte{0}), packet(2, []byte{0})},
	}

	res, err := Consume(context.Background(), src, Options{RecordDir: dir})
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if res.Packets != 2 || res.Recorded != "" {
		t.Errorf("result = %+v, want 2 packets and no recording", res)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("record dir has %d entries, want 0", len(entries))
	}
}

// TestConsumeReadError verifies that unexpected read errors are returned.
func TestConsumeReadError(t *testing.T) {
	boom := errors.New("srtp failure")
	src := &fakeSource{id: "v", codec: webrtc.MimeTypeVP8, err: boom}

	_, err := Consume(context.Background(), src, Options{})
	if !errors.Is(err, boom) {
		t.Errorf("Consume error = %v, want %v", err, boom)
	}
}

// TestConsumeStopsOnCancel verifies that a cancelled context ends the loop.
func TestConsumeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{id: "v", codec: webrtc.MimeTypeVP8, packets: []*rtp.Packet{packet(1, []byte{0})}}
	res, err := Consume(ctx, src, Options{})
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if res.Packets != 0 {
		t.Errorf("Packets = %d after cancel, want 0", res.Packets)
	}
}

// TestNewRecorderCodecs verifies the container chosen per codec.
func TestNewRecorderCodecs(t *testing.T) {
	testCases := []struct {
		codec string
		ext   string
	}{
		{webrtc.MimeTypeH264, ".h264"},
		{webrtc.MimeTypeVP8, ".ivf"},
		{webrtc.MimeTypeOpus, ".ogg"},
	}

	for _, tc := range testCases {
		t.Run(tc.codec, func(t *testing.T) {
			w, path, err := NewRecorder(t.TempDir(), "track", tc.codec)
			if err != nil {
				t.Fatalf("NewRecorder failed: %v", err)
			}
			defer w.Close()
			if filepath.Ext(path) != tc.ext {
				t.Errorf("path = %q, want extension %s", path, tc.ext)
			}
		})
	}

	if _, _, err := NewRecorder(t.TempDir(), "track", "video/VP9"); !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("VP9 error = %v, want ErrUnsupportedCodec", err)
	}
}
