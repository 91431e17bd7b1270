package signaling

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/1ureka/piviewer/internal/util"
)

const (
	defaultQueueSize       = 64 // inbound event queue capacity
	defaultCandidateBuffer = 32 // early ice candidates held until a remote description is set
)

// Options tunes a Controller. Zero values select the defaults.
type Options struct {
	QueueSize       int
	CandidateBuffer int
}

type eventKind int

const (
	evOpen eventKind = iota
	evMessage
	evClose
	evConnectFailed
	evLocalCandidate
	evTrack
	evPeerState
	evBarrier // test synchronisation point, see export_test.go
)

// event is one unit of work for the controller's worker. Session events carry
// the generation of the session that produced them.
type event struct {
	kind      eventKind
	data      []byte
	err       error
	gen       string
	candidate Candidate
	track     Track
	state     PeerState
	ack       chan struct{}
}

// negotiation is the live session bound to the current connection attempt.
type negotiation struct {
	gen                  string
	session              Session
	remoteDescriptionSet bool
	localDescriptionSet  bool
	dead                 bool // peer reported failed or closed
	peerState            PeerState
}

// Controller owns one signaling Channel and at most one Session at a time.
//
// Every inbound event (channel open/message/close and session callbacks) is
// queued and handled by a single worker goroutine, so session calls never
// interleave. Callbacks registered with OnStatus and OnTrack run on that
// worker and must not call Close synchronously.
type Controller struct {
	ch         Channel
	newSession SessionFactory
	opts       Options

	events    chan event
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	stopWatch func() bool
	closeOnce sync.Once
	closeErr  error

	// Owned by the worker.
	neg     *negotiation
	pending []Candidate

	mu       sync.RWMutex
	started  bool
	state    State
	status   Status
	onStatus func(Status)
	onTrack  func(Track)
}

// NewController creates an idle controller. No session exists until the
// first offer arrives.
func NewController(ch Channel, newSession SessionFactory, opts Options) *Controller {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.CandidateBuffer <= 0 {
		opts.CandidateBuffer = defaultCandidateBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		ch:         ch,
		newSession: newSession,
		opts:       opts,
		events:     make(chan event, opts.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		state:      StateIdle,
		status:     Status{Kind: StatusDisconnected},
	}
}

// OnStatus registers a callback for status updates. Call before Start.
func (c *Controller) OnStatus(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

// OnTrack registers a callback for received media tracks. Call before Start.
func (c *Controller) OnTrack(fn func(Track)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

// State returns the current negotiation state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status returns the last published status.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Done returns a channel that is closed once the controller reached Closed,
// either because the channel closed or Close was called.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Start wires the channel callbacks, starts the worker and connects the
// channel. Cancelling ctx tears the controller down. A connect failure is
// returned as a *ChannelError; the controller stays usable only for Close.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return errors.New("signaling controller already started")
	}
	c.started = true
	c.stopWatch = context.AfterFunc(ctx, func() { c.Close() })
	c.mu.Unlock()

	c.ch.OnOpen(func() { c.enqueue(event{kind: evOpen}) })
	c.ch.OnMessage(func(data []byte) { c.enqueue(event{kind: evMessage, data: data}) })
	c.ch.OnClose(func(err error) { c.enqueue(event{kind: evClose, err: err}) })

	go c.loop()

	if err := c.ch.Connect(ctx); err != nil {
		var chErr *ChannelError
		if !errors.As(err, &chErr) {
			err = &ChannelError{Op: "connect", Err: err}
		}
		c.enqueue(event{kind: evConnectFailed, err: err})
		return err
	}
	return nil
}

// Close tears the controller down: any in-flight step is abandoned, the
// session is closed and the channel is closed. Calling Close again is a no-op.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.RLock()
		started := c.started
		stopWatch := c.stopWatch
		c.mu.RUnlock()

		if stopWatch != nil {
			stopWatch()
		}
		if started {
			<-c.done
		} else {
			c.teardown()
			close(c.done)
		}
		c.closeErr = c.ch.Close()
	})
	return c.closeErr
}

// ---------------------------------------------------------------------------
// Worker
// ---------------------------------------------------------------------------

// enqueue hands an event to the worker. It blocks while the queue is full and
// gives up once the controller is shutting down.
func (c *Controller) enqueue(ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Controller) loop() {
	defer close(c.done)
	defer c.teardown()
	defer c.cancel()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.events:
			if c.handle(ev) {
				return
			}
		}
	}
}

// handle processes one event and reports whether the worker should stop.
func (c *Controller) handle(ev event) bool {
	// Only tests enqueue barriers.
	if ev.kind == evBarrier {
		close(ev.ack)
		return false
	}
	if c.closing() {
		return true
	}

	switch ev.kind {
	case evOpen:
		c.handleOpen()
	case evMessage:
		c.handleMessage(ev.data)
	case evClose:
		if ev.err != nil {
			util.LogInfo("signaling channel closed: %v", ev.err)
		} else {
			util.LogInfo("signaling channel closed")
		}
		return true
	case evConnectFailed:
		util.LogError("%v", ev.err)
		c.setStatus(Status{Kind: StatusError, Detail: ev.err.Error()})
	case evLocalCandidate:
		c.handleLocalCandidate(ev.gen, ev.candidate)
	case evTrack:
		c.handleTrack(ev.gen, ev.track)
	case evPeerState:
		c.handlePeerState(ev.gen, ev.state)
	}
	return false
}

func (c *Controller) closing() bool {
	return c.ctx.Err() != nil
}

// ---------------------------------------------------------------------------
// Channel events
// ---------------------------------------------------------------------------

func (c *Controller) handleOpen() {
	util.LogInfo("signaling channel connected")
	if c.State() == StateIdle {
		c.setState(StateSignalingUp)
	}
	c.setStatus(Status{Kind: StatusSignalingConnected})
}

func (c *Controller) handleMessage(data []byte) {
	msg, err := Decode(data)
	if err != nil {
		util.LogWarning("dropping signaling message: %v", err)
		return
	}
	util.LogDebug("signaling message: %s", msg.Kind)

	switch msg.Kind {
	case KindOffer:
		c.handleOffer(msg.Payload)
	case KindICE:
		c.handleRemoteCandidate(msg.Payload)
	case KindAnswer:
		// The viewer only ever answers.
		util.LogWarning("ignoring unexpected answer message")
	default:
		util.LogDebug("ignoring signaling message of unknown type %q", msg.Kind)
	}
}

// handleOffer applies a remote offer and replies with an answer. A later
// offer on the same session overwrites the earlier one.
func (c *Controller) handleOffer(sdp string) {
	if c.neg != nil && c.neg.dead {
		util.LogInfo("[%s] replacing failed session", shortID(c.neg.gen))
		c.closeSession()
	}
	if c.neg == nil {
		if err := c.openSession(); err != nil {
			c.fail(err)
			return
		}
	}

	c.setStatus(Status{Kind: StatusOfferReceived})
	c.setState(StateNegotiating)

	neg := c.neg
	if err := neg.session.SetRemoteDescription(SDPOffer, sdp); err != nil {
		c.fail(&NegotiationError{Op: "set remote description", Err: err})
		return
	}
	neg.remoteDescriptionSet = true
	neg.localDescriptionSet = false

	c.flushPending()
	if c.closing() {
		return
	}

	answer, err := neg.session.CreateAnswer()
	if err != nil {
		c.fail(&NegotiationError{Op: "create answer", Err: err})
		return
	}
	if c.closing() {
		return
	}
	if err := neg.session.SetLocalDescription(answer); err != nil {
		c.fail(&NegotiationError{Op: "set local description", Err: err})
		return
	}
	neg.localDescriptionSet = true

	c.send(Message{Kind: KindAnswer, Payload: answer})
	c.setStatus(Status{Kind: StatusAnswerSent})
	util.LogInfo("[%s] answer sent", shortID(neg.gen))

	// A connected peer answering a re-offer emits no new state.
	if neg.peerState == PeerConnected {
		c.setState(StateEstablished)
	}
}

// handleRemoteCandidate applies a remote candidate, or buffers it while no
// remote description has been set or the session has failed.
func (c *Controller) handleRemoteCandidate(payload string) {
	cand, err := DecodeCandidate(payload)
	if err != nil {
		util.LogWarning("dropping ice message: %v", err)
		return
	}

	if c.neg != nil && c.neg.dead {
		util.LogWarning("[%s] session failed, holding remote candidate for the next offer", shortID(c.neg.gen))
		c.bufferCandidate(cand)
		return
	}
	if c.neg == nil || !c.neg.remoteDescriptionSet {
		c.bufferCandidate(cand)
		return
	}

	if err := c.neg.session.AddRemoteCandidate(cand); err != nil {
		c.fail(&NegotiationError{Op: "add remote candidate", Err: err})
		return
	}
	util.LogDebug("[%s] remote candidate added", shortID(c.neg.gen))
}

func (c *Controller) bufferCandidate(cand Candidate) {
	if len(c.pending) >= c.opts.CandidateBuffer {
		util.LogWarning("early candidate buffer full (%d), dropping ice candidate", c.opts.CandidateBuffer)
		return
	}
	c.pending = append(c.pending, cand)
	util.LogDebug("buffered early ice candidate (%d pending)", len(c.pending))
}

// flushPending applies buffered candidates in arrival order.
func (c *Controller) flushPending() {
	pending := c.pending
	c.pending = nil
	for _, cand := range pending {
		if c.closing() {
			return
		}
		if err := c.neg.session.AddRemoteCandidate(cand); err != nil {
			util.LogWarning("[%s] buffered candidate rejected: %v", shortID(c.neg.gen), err)
		}
	}
}

// ---------------------------------------------------------------------------
// Session events
// ---------------------------------------------------------------------------

func (c *Controller) handleLocalCandidate(gen string, cand Candidate) {
	if !c.current(gen) {
		util.LogDebug("dropping local candidate from stale session")
		return
	}
	payload, err := EncodeCandidate(cand)
	if err != nil {
		util.LogWarning("encode local candidate: %v", err)
		return
	}
	c.send(Message{Kind: KindICE, Payload: payload})
}

func (c *Controller) handleTrack(gen string, t Track) {
	if !c.current(gen) {
		return
	}
	util.LogInfo("[%s] track received: id=%s stream=%s codec=%s", shortID(gen), t.ID(), t.StreamID(), t.Codec())
	c.setStatus(Status{Kind: StatusStreamReceived})

	c.mu.RLock()
	fn := c.onTrack
	c.mu.RUnlock()
	if fn != nil {
		fn(t)
	}
}

func (c *Controller) handlePeerState(gen string, state PeerState) {
	if !c.current(gen) {
		return
	}
	util.LogInfo("[%s] peer connection state: %s", shortID(gen), state)
	c.setStatus(Status{Kind: StatusPeerState, Detail: string(state)})
	c.neg.peerState = state

	switch state {
	case PeerConnected:
		c.setState(StateEstablished)
	case PeerFailed, PeerClosed:
		c.neg.dead = true
		c.setState(StateFailed)
	}
}

func (c *Controller) current(gen string) bool {
	return c.neg != nil && c.neg.gen == gen
}

// ---------------------------------------------------------------------------
// Session lifecycle
// ---------------------------------------------------------------------------

func (c *Controller) openSession() error {
	sess, err := c.newSession()
	if err != nil {
		return &NegotiationError{Op: "create session", Err: err}
	}

	gen := uuid.NewString()
	sess.OnLocalCandidate(func(cand Candidate) {
		c.enqueue(event{kind: evLocalCandidate, gen: gen, candidate: cand})
	})
	sess.OnTrack(func(t Track) {
		c.enqueue(event{kind: evTrack, gen: gen, track: t})
	})
	sess.OnStateChange(func(state PeerState) {
		c.enqueue(event{kind: evPeerState, gen: gen, state: state})
	})

	c.neg = &negotiation{gen: gen, session: sess}
	util.LogInfo("[%s] negotiation session created", shortID(gen))
	return nil
}

func (c *Controller) closeSession() {
	if c.neg == nil {
		return
	}
	if err := c.neg.session.Close(); err != nil {
		util.LogWarning("[%s] close session: %v", shortID(c.neg.gen), err)
	}
	c.neg = nil
}

// teardown releases the session and marks the controller closed. It runs at
// most once per controller; later calls do nothing.
func (c *Controller) teardown() {
	if c.State() == StateClosed {
		return
	}
	c.closeSession()
	c.pending = nil
	c.setState(StateClosed)
	c.setStatus(Status{Kind: StatusDisconnected})
}

func (c *Controller) fail(err error) {
	util.LogError("signaling: %v", err)
	c.setState(StateFailed)
	c.setStatus(Status{Kind: StatusError, Detail: err.Error()})
}

// send encodes and writes one outbound message. A channel that is not open
// drops the message; nothing is queued for later.
func (c *Controller) send(msg Message) {
	data, err := Encode(msg)
	if err != nil {
		util.LogWarning("encode %s message: %v", msg.Kind, err)
		return
	}
	if err := c.ch.Send(data); err != nil {
		if errors.Is(err, ErrNotOpen) {
			util.LogDebug("channel not open, dropping %s message", msg.Kind)
			return
		}
		util.LogWarning("send %s message: %v", msg.Kind, err)
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	fn := c.onStatus
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// shortID trims a generation id for log prefixes.
func shortID(gen string) string {
	if len(gen) > 8 {
		return gen[:8]
	}
	return gen
}
