package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fakeChannel is an in-memory Channel driven by the test.
type fakeChannel struct {
	mu         sync.Mutex
	onOpen     func()
	onMessage  func([]byte)
	onClose    func(error)
	sent       [][]byte
	sendErr    error
	connectErr error
	closed     int
}

func (f *fakeChannel) OnOpen(fn func()) {
	f.mu.Lock()
	f.onOpen = fn
	f.mu.Unlock()
}

func (f *fakeChannel) OnMessage(fn func([]byte)) {
	f.mu.Lock()
	f.onMessage = fn
	f.mu.Unlock()
}

func (f *fakeChannel) OnClose(fn func(err error)) {
	f.mu.Lock()
	f.onClose = fn
	f.mu.Unlock()
}

func (f *fakeChannel) Connect(context.Context) error { return f.connectErr }

func (f *fakeChannel) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeChannel) open() {
	f.mu.Lock()
	fn := f.onOpen
	f.mu.Unlock()
	fn()
}

func (f *fakeChannel) deliver(data string) {
	f.mu.Lock()
	fn := f.onMessage
	f.mu.Unlock()
	fn([]byte(data))
}

func (f *fakeChannel) remoteClose(err error) {
	f.mu.Lock()
	fn := f.onClose
	f.mu.Unlock()
	fn(err)
}

func (f *fakeChannel) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, 0, len(f.sent))
	for _, raw := range f.sent {
		msg, err := Decode(raw)
		if err != nil {
			panic(fmt.Sprintf("controller sent undecodable message %q: %v", raw, err))
		}
		out = append(out, msg)
	}
	return out
}

func (f *fakeChannel) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeSession records every call in order.
type fakeSession struct {
	mu        sync.Mutex
	calls     []string
	remote    []string
	added     []Candidate
	closed    int
	srdErr    error
	answerErr error
	addErr    error

	onCandidate func(Candidate)
	onTrack     func(Track)
	onState     func(PeerState)
}

func (s *fakeSession) record(call string) {
	s.calls = append(s.calls, call)
}

func (s *fakeSession) SetRemoteDescription(typ SDPType, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("srd:" + string(typ))
	if s.srdErr != nil {
		return s.srdErr
	}
	s.remote = append(s.remote, sdp)
	return nil
}

func (s *fakeSession) CreateAnswer() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("answer")
	if s.answerErr != nil {
		return "", s.answerErr
	}
	return "answer-for-" + s.remote[len(s.remote)-1], nil
}

func (s *fakeSession) SetLocalDescription(string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("sld")
	return nil
}

func (s *fakeSession) AddRemoteCandidate(c Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("add:" + c.Candidate)
	if s.addErr != nil {
		return s.addErr
	}
	s.added = append(s.added, c)
	return nil
}

func (s *fakeSession) OnLocalCandidate(fn func(Candidate)) {
	s.mu.Lock()
	s.onCandidate = fn
	s.mu.Unlock()
}

func (s *fakeSession) OnTrack(fn func(Track)) {
	s.mu.Lock()
	s.onTrack = fn
	s.mu.Unlock()
}

func (s *fakeSession) OnStateChange(fn func(PeerState)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) emitCandidate(c Candidate) {
	s.mu.Lock()
	fn := s.onCandidate
	s.mu.Unlock()
	fn(c)
}

func (s *fakeSession) emitTrack(t Track) {
	s.mu.Lock()
	fn := s.onTrack
	s.mu.Unlock()
	fn(t)
}

func (s *fakeSession) emitState(state PeerState) {
	s.mu.Lock()
	fn := s.onState
	s.mu.Unlock()
	fn(state)
}

func (s *fakeSession) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// sessionFactory hands out fakeSessions and keeps them for inspection.
type sessionFactory struct {
	mu       sync.Mutex
	sessions []*fakeSession
	prepare  func(*fakeSession)
	err      error
}

func (f *sessionFactory) New() (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeSession{}
	if f.prepare != nil {
		f.prepare(s)
	}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *sessionFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *sessionFactory) get(i int) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[i]
}

type fakeTrack struct{ id string }

func (t fakeTrack) ID() string       { return t.id }
func (t fakeTrack) StreamID() string { return "stream" }
func (t fakeTrack) Codec() string    { return "video/H264" }

// statusLog collects published statuses.
type statusLog struct {
	mu  sync.Mutex
	all []Status
}

func (l *statusLog) add(s Status) {
	l.mu.Lock()
	l.all = append(l.all, s)
	l.mu.Unlock()
}

func (l *statusLog) list() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Status(nil), l.all...)
}

var errRejected = errors.New("rejected")
