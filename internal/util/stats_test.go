package util

import "testing"

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024, " 0.1 MiB"},
		{5 * 1024 * 1024, " 5.0 MiB"},
	}

	for _, tc := range testCases {
		if got := formatBytes(tc.in); got != tc.want {
			t.Errorf("formatBytes(%v) = %q, want %q", tc.in, got, tc.want)
		}
		if got := formatBytes(tc.in); len(got) != 8 {
			t.Errorf("formatBytes(%v) = %q, want 8 chars", tc.in, got)
		}
	}
}

func TestFormatStats(t *testing.T) {
	got := formatStats(1536, 120, 3, 2)
	want := "Rx:  1.5 KiB/s |   120 pkt/s | Lost:   3 | Tracks: 2"
	if got != want {
		t.Errorf("formatStats = %q, want %q", got, want)
	}
}

func TestStatsCounters(t *testing.T) {
	s := &stats{}
	s.AddTrack()
	s.AddTrack()
	s.RemoveTrack()
	s.AddSession()
	s.AddPacket(1200)
	s.AddPacket(800)
	s.AddLost(4)

	if got := s.Tracks.Load(); got != 1 {
		t.Errorf("Tracks = %d, want 1", got)
	}
	if got := s.Sessions.Load(); got != 1 {
		t.Errorf("Sessions = %d, want 1", got)
	}
	if got := s.PacketsRecv.Load(); got != 2 {
		t.Errorf("PacketsRecv = %d, want 2", got)
	}
	if got := s.BytesRecv.Load(); got != 2000 {
		t.Errorf("BytesRecv = %d, want 2000", got)
	}
	if got := s.PacketsLost.Load(); got != 4 {
		t.Errorf("PacketsLost = %d, want 4", got)
	}
}
