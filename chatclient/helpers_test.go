package chatclient

import (
	"context"
	"sync"
)

type recordingView struct {
	mu      sync.Mutex
	entries []LogEntry
	scrolls int
}

func (v *recordingView) Append(e LogEntry) {
	v.mu.Lock()
	v.entries = append(v.entries, e)
	v.mu.Unlock()
}

func (v *recordingView) ScrollToLatest() {
	v.mu.Lock()
	v.scrolls++
	v.mu.Unlock()
}

func (v *recordingView) snapshot() ([]LogEntry, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]LogEntry(nil), v.entries...), v.scrolls
}

func texts(entries []LogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out
}

type closeEvent struct {
	code   int
	reason string
}

// fakeSub is one subscription handed out by fakeTransport. The test drives
// it by calling the handler and sending on closeCh.
type fakeSub struct {
	endpoint string
	h        Handler
	closeCh  chan closeEvent
}

func (s *fakeSub) send(payload string) {
	s.h.OnMessage(FrameText, []byte(payload))
}

func (s *fakeSub) close(code int, reason string) {
	s.closeCh <- closeEvent{code: code, reason: reason}
}

type fakeTransport struct {
	mu       sync.Mutex
	live     int
	maxLive  int
	attempts int
	failDial bool
	subs     chan *fakeSub
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(chan *fakeSub, 16)}
}

func (f *fakeTransport) Subscribe(ctx context.Context, endpoint string, h Handler) {
	f.mu.Lock()
	f.attempts++
	if f.failDial {
		f.mu.Unlock()
		h.OnClose(CloseAbnormal, "dial refused")
		return
	}
	f.live++
	if f.live > f.maxLive {
		f.maxLive = f.live
	}
	f.mu.Unlock()

	s := &fakeSub{endpoint: endpoint, h: h, closeCh: make(chan closeEvent, 1)}
	h.OnOpen()
	f.subs <- s

	var ev closeEvent
	select {
	case ev = <-s.closeCh:
	case <-ctx.Done():
		ev = closeEvent{code: CloseGoingAway, reason: "client shutdown"}
	}
	f.mu.Lock()
	f.live--
	f.mu.Unlock()
	h.OnClose(ev.code, ev.reason)
}

func (f *fakeTransport) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeTransport) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxLive
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []OutboundMessage
	err   error
	block chan struct{}
}

func (p *fakePublisher) Publish(ctx context.Context, msg OutboundMessage) error {
	p.mu.Lock()
	p.calls = append(p.calls, msg)
	block, err := p.block, p.err
	p.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (p *fakePublisher) sent() []OutboundMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]OutboundMessage(nil), p.calls...)
}
