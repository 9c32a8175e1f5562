package alerts

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"
)

type stubReader struct {
	alerts []Alert
	err    error
	calls  int
}

func (s *stubReader) ListAlerts(_ context.Context, _ int) ([]Alert, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.alerts, nil
}

type stubResolver struct {
	err   error
	calls int
}

func (s *stubResolver) ResolveAlert(_ context.Context, _ string) error {
	s.calls++
	return s.err
}

type fixedClock struct{ now time.Time }

func (f fixedClock) Now() time.Time { return f.now }

func discardLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func openAlerts() []Alert {
	created := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	return []Alert{
		{ID: "a1", Severity: SeverityCritical, Status: StatusOpen, CreatedAt: created, Title: "Force push"},
		{ID: "a2", Severity: SeverityWarning, Status: StatusOpen, CreatedAt: created, Title: "Stale branch"},
		{ID: "a3", Severity: SeverityInfo, Status: StatusResolved, CreatedAt: created, Title: "Sync done"},
	}
}

func TestRefreshCountsOpenAlerts(t *testing.T) {
	reader := &stubReader{alerts: openAlerts()}
	counter, err := NewCounter(reader, nil, discardLogger())
	if err != nil {
		t.Fatalf("new counter: %v", err)
	}
	if err := counter.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := counter.OpenCount(); got != 2 {
		t.Fatalf("expected 2 open alerts, got %d", got)
	}
}

func TestRefreshFailureKeepsExistingState(t *testing.T) {
	reader := &stubReader{alerts: openAlerts()}
	counter, err := NewCounter(reader, nil, discardLogger())
	if err != nil {
		t.Fatalf("new counter: %v", err)
	}
	if err := counter.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	reader.err = errors.New("boom")
	if err := counter.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if got := counter.OpenCount(); got != 2 {
		t.Fatalf("expected cached count to survive failed refresh, got %d", got)
	}
	if got := len(counter.All()); got != 3 {
		t.Fatalf("expected cached alerts to survive failed refresh, got %d", got)
	}
}

func TestResolveOptimisticTransition(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	reader := &stubReader{alerts: openAlerts()}
	resolver := &stubResolver{}
	counter, err := NewCounter(reader, resolver, discardLogger(), WithClock(fixedClock{now: now}))
	if err != nil {
		t.Fatalf("new counter: %v", err)
	}
	if err := counter.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if err := counter.Resolve(context.Background(), "a1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolver.calls != 1 {
		t.Fatalf("expected 1 resolver call, got %d", resolver.calls)
	}
	if got := counter.OpenCount(); got != 1 {
		t.Fatalf("expected open count 1 after resolve, got %d", got)
	}
	for _, alert := range counter.All() {
		if alert.ID != "a1" {
			continue
		}
		if alert.Status != StatusResolved {
			t.Fatalf("expected resolved status, got %s", alert.Status)
		}
		if !alert.ResolvedAt.Equal(now) {
			t.Fatalf("expected client-time resolvedAt %v, got %v", now, alert.ResolvedAt)
		}
	}
	if counter.Pending("a1") {
		t.Fatal("confirmed resolve must clear the pending marker")
	}
}

func TestResolveFailureRevertsToServerState(t *testing.T) {
	reader := &stubReader{alerts: openAlerts()}
	resolver := &stubResolver{err: errors.New("http 502")}
	counter, err := NewCounter(reader, resolver, discardLogger())
	if err != nil {
		t.Fatalf("new counter: %v", err)
	}
	if err := counter.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if err := counter.Resolve(context.Background(), "a1"); err == nil {
		t.Fatal("expected resolve error")
	}
	if got := counter.OpenCount(); got != 2 {
		t.Fatalf("expected reverted open count 2, got %d", got)
	}
	for _, alert := range counter.All() {
		if alert.ID == "a1" && alert.Status != StatusOpen {
			t.Fatalf("expected reverted status OPEN, got %s", alert.Status)
		}
	}
	if counter.Pending("a1") {
		t.Fatal("failed resolve must clear the pending marker")
	}
}

func TestResolveAlreadyResolvedIsNoop(t *testing.T) {
	reader := &stubReader{alerts: openAlerts()}
	resolver := &stubResolver{}
	counter, err := NewCounter(reader, resolver, discardLogger())
	if err != nil {
		t.Fatalf("new counter: %v", err)
	}
	if err := counter.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if err := counter.Resolve(context.Background(), "a3"); err != nil {
		t.Fatalf("resolve resolved alert: %v", err)
	}
	if resolver.calls != 0 {
		t.Fatalf("expected no resolver call for resolved alert, got %d", resolver.calls)
	}
}
