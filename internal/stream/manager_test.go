package stream

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestManagerSharesOneConnection(t *testing.T) {
	var connections atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connections.Add(1)
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "event: event-update\ndata: {\"id\":\"e1\"}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	connector, err := NewConnector(server.URL, "", discardLogger())
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}
	manager, err := NewManager(connector, discardLogger())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	var mu sync.Mutex
	delivered := make(map[string]int)
	receive := func(name string) (Handler, chan struct{}) {
		got := make(chan struct{}, 1)
		return func(event string, _ []byte) {
			mu.Lock()
			delivered[name]++
			mu.Unlock()
			select {
			case got <- struct{}{}:
			default:
			}
		}, got
	}

	handlerA, gotA := receive("a")
	handlerB, gotB := receive("b")
	unsubA, err := manager.Subscribe(handlerA)
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	unsubB, err := manager.Subscribe(handlerB)
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}

	for _, got := range []chan struct{}{gotA, gotB} {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for fan-out delivery")
		}
	}
	if n := connections.Load(); n != 1 {
		t.Fatalf("expected one shared connection, got %d", n)
	}

	// Dropping one subscriber keeps the channel up for the other.
	unsubA()
	if state := manager.State(); state != StateConnected {
		t.Fatalf("expected connected after partial unsubscribe, got %s", state)
	}

	unsubB()
	unsubB() // idempotent
	if state := manager.State(); state != StateIdle {
		t.Fatalf("expected idle after last unsubscribe, got %s", state)
	}
}

func TestManagerReconnectsAfterDrop(t *testing.T) {
	var connections atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := connections.Add(1)
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if n == 1 {
			// First connection ends immediately, forcing a reconnect.
			return
		}
		_, _ = io.WriteString(w, "event: event-update\ndata: {\"id\":\"e2\"}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	connector, err := NewConnector(server.URL, "", discardLogger())
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}
	manager, err := NewManager(connector, discardLogger(),
		WithBackoff(5*time.Millisecond, 20*time.Millisecond))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	got := make(chan struct{}, 1)
	unsub, err := manager.Subscribe(func(_ string, _ []byte) {
		select {
		case got <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	select {
	case <-got:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for delivery after reconnect")
	}
	if n := connections.Load(); n < 2 {
		t.Fatalf("expected a reconnect, saw %d connections", n)
	}
	if state := manager.State(); state != StateConnected {
		t.Fatalf("expected connected after reconnect, got %s", state)
	}
}

func TestManagerGivesUpAfterAttemptBudget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	connector, err := NewConnector(server.URL, "", discardLogger())
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}
	manager, err := NewManager(connector, discardLogger(),
		WithBackoff(time.Millisecond, 2*time.Millisecond),
		WithMaxAttempts(2))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	unsub, err := manager.Subscribe(func(string, []byte) {})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if manager.State() == StateDisconnected {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected disconnected state, got %s", manager.State())
}

func TestManagerRestartsAfterBudgetOnNewSubscriber(t *testing.T) {
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "event: event-update\ndata: {\"id\":\"e3\"}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	connector, err := NewConnector(server.URL, "", discardLogger())
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}
	manager, err := NewManager(connector, discardLogger(),
		WithBackoff(time.Millisecond, 2*time.Millisecond),
		WithMaxAttempts(2))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	// The first subscriber burns through the budget against a failing
	// server and sticks around.
	unsubA, err := manager.Subscribe(func(string, []byte) {})
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	defer unsubA()

	waitState := func(want State) {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			if manager.State() == want {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("expected %s, got %s", want, manager.State())
	}
	waitState(StateDisconnected)

	// A later subscriber restarts the loop with a fresh budget even though
	// the first one never left.
	healthy.Store(true)
	got := make(chan struct{}, 1)
	unsubB, err := manager.Subscribe(func(string, []byte) {
		select {
		case got <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	defer unsubB()

	waitState(StateConnected)
	select {
	case <-got:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for delivery after restart")
	}
}

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	base, max := time.Second, 10*time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{9, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := retryDelay(tc.attempt, base, max); got != tc.want {
			t.Fatalf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}
