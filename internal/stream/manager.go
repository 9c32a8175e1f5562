package stream

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github-monitor/internal/observability/metrics"
)

// State describes the push channel as seen by subscribers.
type State string

const (
	StateIdle         State = "IDLE"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateDisconnected State = "DISCONNECTED"
)

// Handler receives every message delivered on the shared channel.
type Handler func(event string, data []byte)

const (
	defaultTopic       = "/events/stream"
	defaultBackoffBase = time.Second
	defaultBackoffMax  = 30 * time.Second
	defaultMaxAttempts = 8
)

// Manager multiplexes one physical push connection across any number of
// consumers. The first Subscribe opens the connection, the last matching
// unsubscribe closes it; intermediate churn never drops the channel.
// Transport failures trigger reconnects with exponential backoff and
// jitter until the attempt budget runs out, after which the channel is
// reported disconnected until subscriber churn restarts it.
type Manager struct {
	connector *Connector
	logger    *log.Logger
	topic     string

	backoffBase time.Duration
	backoffMax  time.Duration
	maxAttempts int

	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
	state    State
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithTopic overrides the subscription path.
func WithTopic(topic string) ManagerOption {
	return func(m *Manager) {
		if topic != "" {
			m.topic = topic
		}
	}
}

// WithBackoff overrides the reconnect backoff base and cap.
func WithBackoff(base, max time.Duration) ManagerOption {
	return func(m *Manager) {
		if base > 0 {
			m.backoffBase = base
		}
		if max > 0 {
			m.backoffMax = max
		}
	}
}

// WithMaxAttempts overrides the consecutive reconnect budget.
func WithMaxAttempts(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// NewManager constructs a subscription manager around a connector.
func NewManager(connector *Connector, logger *log.Logger, opts ...ManagerOption) (*Manager, error) {
	if connector == nil {
		return nil, errors.New("stream: nil connector")
	}
	if logger == nil {
		return nil, errors.New("stream: nil logger")
	}
	m := &Manager{
		connector:   connector,
		logger:      logger,
		topic:       defaultTopic,
		backoffBase: defaultBackoffBase,
		backoffMax:  defaultBackoffMax,
		maxAttempts: defaultMaxAttempts,
		handlers:    make(map[int]Handler),
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// State reports the current channel state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a handler on the shared channel and returns its
// unsubscribe function. The first subscriber starts the connection loop,
// and a subscriber arriving after the reconnect budget is spent restarts
// it with a fresh budget. Unsubscribe is idempotent; the last one stops
// the loop.
func (m *Manager) Subscribe(handler Handler) (func(), error) {
	if m == nil {
		return nil, errors.New("stream: nil manager")
	}
	if handler == nil {
		return nil, errors.New("stream: nil handler")
	}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.handlers[id] = handler
	if len(m.handlers) == 1 || m.state == StateDisconnected {
		// A disconnected loop already exited; cancel its stale context
		// before handing the channel to a new one.
		if m.cancel != nil {
			m.cancel()
		}
		m.startLocked()
	}
	m.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.handlers, id)
			var wait chan struct{}
			if len(m.handlers) == 0 && m.cancel != nil {
				m.cancel()
				m.cancel = nil
				wait = m.loopDone
				m.state = StateIdle
			}
			m.mu.Unlock()
			if wait != nil {
				<-wait
			}
		})
	}
	return unsubscribe, nil
}

func (m *Manager) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.loopDone = make(chan struct{})
	m.state = StateConnecting
	go m.run(ctx, m.loopDone)
}

// run owns the physical connection. Each successful open resets the
// attempt counter, so a flaky channel never exhausts its budget as long
// as some connections stick.
func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer metrics.SetStreamConnected(false)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		m.setState(StateConnecting)
		sub, err := m.connector.Open(ctx, m.topic)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Printf("stream connect failed (attempt %d/%d): %v", attempt+1, m.maxAttempts, err)
			if !m.waitBackoff(ctx, &attempt) {
				return
			}
			continue
		}

		attempt = 0
		m.setState(StateConnected)
		metrics.SetStreamConnected(true)
		sub.OnAny(func(event string, data []byte) {
			metrics.IncStreamDelivery(event)
			m.fanOut(event, data)
		})
		sub.Start()

		select {
		case <-ctx.Done():
			sub.Close()
			return
		case <-sub.Done():
			metrics.SetStreamConnected(false)
			if err := sub.Err(); err != nil {
				m.logger.Printf("stream dropped: %v", err)
			} else {
				m.logger.Printf("stream ended by server")
			}
			if !m.waitBackoff(ctx, &attempt) {
				return
			}
		}
	}
}

// waitBackoff sleeps out the next reconnect delay. It reports false when
// the attempt budget is spent or the context ended, leaving the channel
// disconnected.
func (m *Manager) waitBackoff(ctx context.Context, attempt *int) bool {
	if *attempt >= m.maxAttempts {
		m.logger.Printf("stream reconnect budget spent after %d attempts", m.maxAttempts)
		m.setState(StateDisconnected)
		return false
	}
	delay := retryDelay(*attempt, m.backoffBase, m.backoffMax)
	// Up to 25% jitter keeps restarted consumers from stampeding.
	delay += time.Duration(rand.Int63n(int64(delay)/4 + 1))
	*attempt++
	metrics.IncStreamReconnect()

	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	// Idle means the last subscriber already left; do not resurrect.
	if m.state != StateIdle || state == StateIdle {
		m.state = state
	}
	m.mu.Unlock()
}

func (m *Manager) fanOut(event string, data []byte) {
	m.mu.Lock()
	handlers := make([]Handler, 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(event, data)
	}
}
