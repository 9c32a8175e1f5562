package apihttp

import (
	"fmt"
	"log"
	"net/http"
	"sync"

	"github-monitor/internal/stream"
)

// SSEBroker re-broadcasts upstream push messages to connected dashboard
// pages. One upstream registration feeds every page; pages attaching and
// detaching never touch the upstream channel beyond the manager's
// reference count.
type SSEBroker struct {
	subscriber Upstream
	logger     *log.Logger

	mu          sync.Mutex
	clients     map[chan []byte]struct{}
	unsubscribe func()
}

// Upstream is the shared push channel the broker re-broadcasts from.
type Upstream interface {
	Subscribe(handler stream.Handler) (func(), error)
}

// NewSSEBroker constructs a broker over the shared push channel.
func NewSSEBroker(subscriber Upstream, logger *log.Logger) (*SSEBroker, error) {
	if subscriber == nil {
		return nil, fmt.Errorf("apihttp: nil subscriber")
	}
	if logger == nil {
		return nil, fmt.Errorf("apihttp: nil logger")
	}
	return &SSEBroker{
		subscriber: subscriber,
		logger:     logger,
		clients:    make(map[chan []byte]struct{}),
	}, nil
}

// Start attaches the broker upstream. Call once.
func (b *SSEBroker) Start() error {
	unsubscribe, err := b.subscriber.Subscribe(func(event string, data []byte) {
		b.broadcast(renderFrame(event, data))
	})
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.unsubscribe = unsubscribe
	b.mu.Unlock()
	return nil
}

// Close detaches the broker upstream and drops all clients.
func (b *SSEBroker) Close() {
	b.mu.Lock()
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	// Closing under the lock keeps broadcast from sending on a channel
	// that just closed.
	for ch := range b.clients {
		close(ch)
	}
	b.clients = make(map[chan []byte]struct{})
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Subscribe registers a new client channel.
func (b *SSEBroker) Subscribe() chan []byte {
	if b == nil {
		return nil
	}
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client channel. The close happens under the
// broker lock so a concurrent broadcast can never send on it.
func (b *SSEBroker) Unsubscribe(ch chan []byte) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; !ok {
		return
	}
	delete(b.clients, ch)
	close(ch)
}

// broadcast sends under the lock. Sends are non-blocking, so holding mu
// costs one buffered-channel write per client; slow pages lose frames
// rather than stalling the fan-out and re-sync on the next view read.
func (b *SSEBroker) broadcast(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- frame:
		default:
		}
	}
}

func renderFrame(event string, data []byte) []byte {
	if event == "" {
		event = stream.DefaultEvent
	}
	frame := make([]byte, 0, len(event)+len(data)+16)
	frame = append(frame, "event: "...)
	frame = append(frame, event...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)
	return frame
}

// StreamHandler serves the SSE re-broadcast for dashboard pages.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /api/v1/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.Subscribe()
	if ch == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	defer h.broker.Unsubscribe(ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		case <-notify:
			return
		}
	}
}
