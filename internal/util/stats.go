package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide media counter.
var Stats = &stats{}

type stats struct {
	Tracks      atomic.Int64 // tracks currently being consumed
	Sessions    atomic.Int64 // cumulative negotiation attempts since process start
	PacketsRecv atomic.Int64 // cumulative RTP packets read from all tracks
	BytesRecv   atomic.Int64 // cumulative RTP bytes (header + payload)
	PacketsLost atomic.Int64 // cumulative sequence-number gaps
}

func (s *stats) AddTrack()    { s.Tracks.Add(1) }
func (s *stats) RemoveTrack() { s.Tracks.Add(-1) }
func (s *stats) AddSession()  { s.Sessions.Add(1) }
func (s *stats) AddPacket(n int) {
	s.PacketsRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}
func (s *stats) AddLost(n int) { s.PacketsLost.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs receive statistics every
// interval while at least one track is live. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prevBytes, prevPackets, prevLost int64
		for {
			select {
			case <-ticker.C:
				bytes := Stats.BytesRecv.Load()
				packets := Stats.PacketsRecv.Load()
				lost := Stats.PacketsLost.Load()
				tracks := Stats.Tracks.Load()

				secs := interval.Seconds()
				rate := float64(bytes-prevBytes) / secs
				pps := float64(packets-prevPackets) / secs

				if tracks > 0 || packets != prevPackets {
					pterm.DefaultLogger.Info(formatStats(rate, pps, lost-prevLost, tracks))
				}

				prevBytes = bytes
				prevPackets = packets
				prevLost = lost

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(rate, pps float64, lost, tracks int64) string {
	return fmt.Sprintf("Rx: %s/s | %5.0f pkt/s | Lost: %3d | Tracks: %d",
		formatBytes(rate),
		pps,
		lost,
		tracks,
	)
}
