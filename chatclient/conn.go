package chatclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

// DefaultReconnectDelay is the fixed pause between an unexpected close and
// the next subscription attempt.
const DefaultReconnectDelay = time.Second

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Deliverer consumes the payload of inbound text frames.
type Deliverer interface {
	Deliver(payload []byte)
}

// ConnManager keeps one subscription to the conversation stream open for as
// long as its context lives. Any close other than CloseGoingAway is
// followed by exactly one new attempt after a fixed delay; there is no retry
// cap and no backoff.
type ConnManager struct {
	endpoint  string
	transport Transport
	log       *Log
	sink      Deliverer
	clock     clock.Clock
	delay     time.Duration
	metrics   *Metrics

	startOnce sync.Once
	wg        sync.WaitGroup

	mu       sync.Mutex
	state    State
	attempts int
	stopped  bool
}

type ConnOption func(*ConnManager)

func WithClock(clk clock.Clock) ConnOption {
	return func(m *ConnManager) { m.clock = clk }
}

func WithReconnectDelay(d time.Duration) ConnOption {
	return func(m *ConnManager) { m.delay = d }
}

func WithMetrics(metrics *Metrics) ConnOption {
	return func(m *ConnManager) { m.metrics = metrics }
}

// NewConnManager returns a manager for the stream at endpoint. Inbound text
// frames go to sink; disconnect notices go to l.
func NewConnManager(endpoint string, transport Transport, l *Log, sink Deliverer, opts ...ConnOption) *ConnManager {
	m := &ConnManager{
		endpoint:  endpoint,
		transport: transport,
		log:       l,
		sink:      sink,
		clock:     clock.New(),
		delay:     DefaultReconnectDelay,
		state:     StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens the first subscription. Later calls are ignored. Cancelling
// ctx tears the subscription down and abandons any pending reconnect.
func (m *ConnManager) Start(ctx context.Context) {
	m.startOnce.Do(func() { m.dial(ctx) })
}

// Wait blocks until the transport goroutines have returned. It is only
// meaningful after the context passed to Start is cancelled; no attempt is
// started once Wait has been called.
func (m *ConnManager) Wait() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *ConnManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts reports how many subscriptions have been started.
func (m *ConnManager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// dial starts one subscription attempt. It is re-invoked by the reconnect
// timer and carries nothing across attempts except the endpoint.
func (m *ConnManager) dial(ctx context.Context) {
	m.mu.Lock()
	if m.stopped || ctx.Err() != nil {
		m.state = StateClosed
		m.mu.Unlock()
		return
	}
	if m.state != StateDisconnected {
		// The previous handle has not reported its close yet.
		state := m.state
		m.mu.Unlock()
		log.Warn().Str("state", state.String()).Msg("[dm-chat] dial skipped; subscription still live")
		return
	}
	m.state = StateConnecting
	m.attempts++
	sub := &subscription{m: m, ctx: ctx, attempt: m.attempts}
	m.wg.Add(1)
	m.mu.Unlock()

	m.metrics.attempt()
	log.Debug().Str("endpoint", m.endpoint).Int("attempt", sub.attempt).Msg("[dm-chat] connecting")

	go func() {
		defer m.wg.Done()
		m.transport.Subscribe(ctx, m.endpoint, sub)
		// A transport that returns without reporting a close still
		// released its handle.
		sub.OnClose(CloseAbnormal, "subscription ended")
	}()
}

func (m *ConnManager) opened(attempt int) {
	m.mu.Lock()
	if m.state == StateConnecting {
		m.state = StateOpen
	}
	m.mu.Unlock()
	m.metrics.setOpen(true)
	log.Info().Str("endpoint", m.endpoint).Int("attempt", attempt).Msg("[dm-chat] websocket connected")
}

func (m *ConnManager) closed(ctx context.Context, code int, reason string) {
	m.metrics.setOpen(false)
	if ctx.Err() != nil {
		m.mu.Lock()
		m.state = StateClosed
		m.mu.Unlock()
		log.Info().Int("code", code).Msg("[dm-chat] subscription closed on shutdown")
		return
	}

	if code == CloseGoingAway {
		m.log.Append(fmt.Sprintf("WebSocket disconnected code: %d, reason: %s", code, reason), true)
		m.mu.Lock()
		m.state = StateClosed
		m.mu.Unlock()
		log.Info().Int("code", code).Str("reason", reason).Msg("[dm-chat] closed by server; not reconnecting")
		return
	}

	m.log.Append(fmt.Sprintf("WebSocket disconnected code: %d, reason: %s; reconnecting in %s", code, reason, m.delay), true)
	m.metrics.reconnect()
	log.Warn().Int("code", code).Str("reason", reason).Dur("delay", m.delay).Msg("[dm-chat] websocket disconnected")

	// The timer is armed under the lock so the callback's dial cannot
	// observe the state before it is Disconnected.
	m.mu.Lock()
	m.state = StateDisconnected
	m.clock.AfterFunc(m.delay, func() { m.dial(ctx) })
	m.mu.Unlock()
}

// subscription adapts one attempt's transport events to the manager.
type subscription struct {
	m       *ConnManager
	ctx     context.Context
	attempt int
	once    sync.Once
}

func (s *subscription) OnOpen() {
	s.m.opened(s.attempt)
}

func (s *subscription) OnMessage(kind FrameKind, payload []byte) {
	if kind != FrameText {
		s.m.metrics.inbound("binary")
		log.Error().Str("kind", kind.String()).Int("bytes", len(payload)).Msg("[dm-chat] unexpected message type")
		return
	}
	s.m.sink.Deliver(payload)
}

func (s *subscription) OnClose(code int, reason string) {
	s.once.Do(func() { s.m.closed(s.ctx, code, reason) })
}
