// Package app contains the top-level orchestration of the viewer: the
// optional embedded relay, the signaling controller with its reconnect loop,
// and one consumer per received track.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/1ureka/piviewer/internal/channel"
	"github.com/1ureka/piviewer/internal/config"
	"github.com/1ureka/piviewer/internal/media"
	"github.com/1ureka/piviewer/internal/signaling"
	"github.com/1ureka/piviewer/internal/transport"
	"github.com/1ureka/piviewer/internal/util"
)

// errChannelClosed ends one connection attempt whose channel closed on its own.
var errChannelClosed = errors.New("signaling channel closed")

// Run starts the viewer and blocks until ctx is cancelled, or until the
// signaling connection ends when reconnecting is disabled. cfg must have been
// validated. With the relay enabled, an empty or default signal URL points
// the viewer at the local relay.
func Run(ctx context.Context, cfg config.Config) error {
	signalURL := cfg.SignalURL

	// ── 1. Embedded relay ──────────────────────────────────────────────
	if cfg.Relay.Enabled {
		srv, url, err := startRelay(cfg.Relay)
		if err != nil {
			return err
		}
		defer srv.Close()
		if signalURL == "" || signalURL == config.DefaultSignalURL {
			signalURL = url
		}
	}

	url, err := config.NormalizeURL(signalURL)
	if err != nil {
		return err
	}

	// ── 2. Media stack ─────────────────────────────────────────────────
	api, err := transport.NewAPI(transport.APIOptions{Debug: cfg.Debug})
	if err != nil {
		return fmt.Errorf("failed to create WebRTC API: %w", err)
	}

	if cfg.StatsInterval > 0 {
		util.StartStatsReporter(ctx, cfg.StatsInterval)
	}

	// ── 3. Signaling until shutdown ────────────────────────────────────
	v := newViewer(cfg, url,
		func(url string) signaling.Channel { return channel.NewWS(url, channel.Options{}) },
		transport.NewFactory(api, cfg.ICEServers),
	)
	return v.run(ctx)
}

// viewer runs one signaling controller per connection attempt.
type viewer struct {
	cfg        config.Config
	url        string
	newChannel func(url string) signaling.Channel
	newSession signaling.SessionFactory

	consumers sync.WaitGroup
}

func newViewer(cfg config.Config, url string, newChannel func(string) signaling.Channel, newSession signaling.SessionFactory) *viewer {
	return &viewer{cfg: cfg, url: url, newChannel: newChannel, newSession: newSession}
}

// run connects, and reconnects with exponential backoff when enabled. The
// backoff restarts from its initial interval after every attempt that reached
// the signaling server. Cancelling ctx is a normal shutdown.
func (v *viewer) run(ctx context.Context) error {
	defer v.consumers.Wait()

	if !v.cfg.Reconnect.Enabled {
		_, err := v.attempt(ctx)
		if ctx.Err() != nil || errors.Is(err, errChannelClosed) {
			return nil
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = v.cfg.Reconnect.InitialInterval
	b.MaxInterval = v.cfg.Reconnect.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	operation := func() error {
		connected, err := v.attempt(ctx)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if connected {
			b.Reset()
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		util.LogWarning("%v, reconnecting in %s", err, wait.Round(time.Millisecond))
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// attempt runs one controller until its channel closes or ctx is cancelled.
// It reports whether the signaling server was reached.
func (v *viewer) attempt(ctx context.Context) (bool, error) {
	ctrl := signaling.NewController(v.newChannel(v.url), v.countSessions, signaling.Options{
		QueueSize:       v.cfg.QueueSize,
		CandidateBuffer: v.cfg.CandidateBuffer,
	})
	defer ctrl.Close()

	var connected atomic.Bool
	ctrl.OnStatus(func(s signaling.Status) {
		switch s.Kind {
		case signaling.StatusSignalingConnected:
			connected.Store(true)
			util.LogSuccess("connected to %s, waiting for the camera's offer", v.url)
		case signaling.StatusStreamReceived:
			util.LogSuccess("%s", s)
		case signaling.StatusError:
			util.LogWarning("%s", s)
		default:
			util.LogDebug("%s", s)
		}
	})
	ctrl.OnTrack(func(t signaling.Track) { v.consume(ctx, t) })

	util.LogInfo("connecting to %s", v.url)
	if err := ctrl.Start(ctx); err != nil {
		return false, err
	}

	<-ctrl.Done()
	return connected.Load(), errChannelClosed
}

// countSessions creates a session and counts the negotiation attempt.
func (v *viewer) countSessions() (signaling.Session, error) {
	s, err := v.newSession()
	if err == nil {
		util.Stats.AddSession()
	}
	return s, err
}

// consume drains a received track on its own goroutine. The track ends when
// its session closes.
func (v *viewer) consume(ctx context.Context, t signaling.Track) {
	src, ok := t.(media.Source)
	if !ok {
		util.LogWarning("track %s cannot be read, ignoring", t.ID())
		return
	}
	util.LogInfo("consuming track %s", describeTrack(t))

	v.consumers.Add(1)
	go func() {
		defer v.consumers.Done()

		res, err := media.Consume(ctx, src, media.Options{RecordDir: v.cfg.RecordDir})
		if err != nil {
			util.LogError("track %s: %v", src.ID(), err)
		}
		util.LogInfo("track %s ended: %d packets, %d lost", src.ID(), res.Packets, res.Lost)
		if res.Recorded != "" {
			util.LogInfo("recording saved to %s", res.Recorded)
		}
	}()
}

// describeTrack formats a track as "id (kind codec)". The kind is omitted for
// tracks that do not report one.
func describeTrack(t signaling.Track) string {
	if k, ok := t.(interface{ Kind() string }); ok {
		return fmt.Sprintf("%s (%s %s)", t.ID(), k.Kind(), t.Codec())
	}
	return fmt.Sprintf("%s (%s)", t.ID(), t.Codec())
}
