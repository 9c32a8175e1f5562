package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultEvent is the SSE event name used when a frame carries none.
const DefaultEvent = "message"

// Named events the collaborator backend emits on the push channel.
const (
	EventActivityUpdate   = "event-update"
	EventRepositoryUpdate = "repository-update"
	EventAlertUpdate      = "alert-update"
)

// Connector opens token-authenticated push subscriptions against the
// collaborator's text/event-stream endpoints. Receive-only: no send path
// exists on the channel.
type Connector struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *log.Logger
}

// NewConnector constructs a connector. The token is read once at
// construction and never mutated; rotation mid-connection is not handled,
// the connection simply errors out.
func NewConnector(baseURL, token string, logger *log.Logger) (*Connector, error) {
	if baseURL == "" {
		return nil, errors.New("stream: empty base url")
	}
	if logger == nil {
		return nil, errors.New("stream: nil logger")
	}
	return &Connector{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// No overall timeout: the response body is a long-lived stream.
		client: &http.Client{},
		logger: logger,
	}, nil
}

// Subscription is one open push connection. Callbacks registered through
// OnMessage and OnAny run on the reader goroutine in arrival order.
// Register all callbacks, then call Start; nothing is read before that,
// so no frame can slip past an unregistered handler.
type Subscription struct {
	mu       sync.Mutex
	handlers map[string][]func([]byte)
	catchAll []func(string, []byte)
	err      error

	body    io.ReadCloser
	logger  *log.Logger
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
	started bool
}

// Open establishes a long-lived push connection for the given topic path
// (for example "/events/stream"). The returned subscription stays active
// until the transport fails or Close is called; it never reopens itself.
func (c *Connector) Open(ctx context.Context, topic string) (*Subscription, error) {
	if c == nil {
		return nil, errors.New("stream: nil connector")
	}
	if topic == "" {
		return nil, errors.New("stream: empty topic")
	}
	if !strings.HasPrefix(topic, "/") {
		topic = "/" + topic
	}
	endpoint := c.baseURL + topic
	if c.token != "" {
		endpoint += "?token=" + url.QueryEscape(c.token)
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream: http %d", resp.StatusCode)
	}
	if contentType := resp.Header.Get("Content-Type"); !strings.HasPrefix(contentType, "text/event-stream") {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream: unexpected content type %q", contentType)
	}

	return &Subscription{
		handlers: make(map[string][]func([]byte)),
		body:     resp.Body,
		logger:   c.logger,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// Start launches the reader goroutine. Idempotent.
func (s *Subscription) Start() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	go s.read(s.body, s.logger)
}

// OnMessage registers a callback for one named event.
func (s *Subscription) OnMessage(event string, fn func(data []byte)) {
	if s == nil || fn == nil {
		return
	}
	if event == "" {
		event = DefaultEvent
	}
	s.mu.Lock()
	s.handlers[event] = append(s.handlers[event], fn)
	s.mu.Unlock()
}

// OnAny registers a callback for every delivered message.
func (s *Subscription) OnAny(fn func(event string, data []byte)) {
	if s == nil || fn == nil {
		return
	}
	s.mu.Lock()
	s.catchAll = append(s.catchAll, fn)
	s.mu.Unlock()
}

// Close tears down the connection. Must be called before the owning view
// is discarded so no callback is delivered into a dead context.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	alreadyClosed := s.closed
	started := s.started
	s.closed = true
	s.mu.Unlock()
	if alreadyClosed {
		return
	}
	s.cancel()
	if !started {
		s.body.Close()
		close(s.done)
		return
	}
	<-s.done
}

// Done is closed when the connection has ended, for any reason.
func (s *Subscription) Done() <-chan struct{} {
	if s == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

// Err reports the transport error that ended the connection, nil for a
// deliberate Close or a server-side end of stream.
func (s *Subscription) Err() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) read(body io.ReadCloser, logger *log.Logger) {
	defer close(s.done)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	event := ""
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(data) > 0 {
				s.dispatch(event, []byte(strings.Join(data, "\n")))
			}
			event = ""
			data = nil
			continue
		}
		switch {
		case strings.HasPrefix(line, ":"):
			// Comment line, used by servers as keep-alive.
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		s.mu.Lock()
		deliberate := s.closed
		if !deliberate {
			s.err = err
		}
		s.mu.Unlock()
		if !deliberate {
			logger.Printf("stream closed: %v", err)
		}
	}
}

func (s *Subscription) dispatch(event string, data []byte) {
	if event == "" {
		event = DefaultEvent
	}
	s.mu.Lock()
	handlers := make([]func([]byte), len(s.handlers[event]))
	copy(handlers, s.handlers[event])
	catchAll := make([]func(string, []byte), len(s.catchAll))
	copy(catchAll, s.catchAll)
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(data)
	}
	for _, fn := range catchAll {
		fn(event, data)
	}
}

// retryDelay computes the backoff for a reconnect attempt: exponential
// from base, capped at max.
func retryDelay(attempt int, base, max time.Duration) time.Duration {
	delay := base
	for i := 0; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}
	return delay
}
