package dashboard

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github-monitor/internal/activity"
	"github-monitor/internal/stream"
)

type stubLister struct {
	mu      sync.Mutex
	records []activity.Record
	calls   int
	err     error
}

func (s *stubLister) ListEvents(_ context.Context, _, _ time.Time, _ int) ([]activity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func (s *stubLister) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubSubscriber struct {
	handler      stream.Handler
	unsubscribed bool
}

func (s *stubSubscriber) Subscribe(handler stream.Handler) (func(), error) {
	s.handler = handler
	return func() { s.unsubscribed = true }, nil
}

func (s *stubSubscriber) State() stream.State { return stream.StateConnected }

type stubNotifier struct {
	mu       sync.Mutex
	activity int
	alerts   int
}

func (s *stubNotifier) OnActivity(context.Context) {
	s.mu.Lock()
	s.activity++
	s.mu.Unlock()
}

func (s *stubNotifier) OnAlert(context.Context) {
	s.mu.Lock()
	s.alerts++
	s.mu.Unlock()
}

func (s *stubNotifier) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activity, s.alerts
}

type fixedClock struct{ now time.Time }

func (f fixedClock) Now() time.Time { return f.now }

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func windowRecords() []activity.Record {
	return []activity.Record{
		{ID: "e1", RepositoryID: "r1", Type: activity.TypePush, Actor: "ana", Branch: "main", Message: "fix build", CreatedAt: time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)},
		{ID: "e2", RepositoryID: "r2", Type: activity.TypeIssue, Actor: "bo", Message: "flaky test", CreatedAt: time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)},
	}
}

func newTestSession(t *testing.T, lister *stubLister, subscriber *stubSubscriber, notifier Notifier) *Session {
	t.Helper()
	clock := fixedClock{now: time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)}
	session, err := NewSession(lister, subscriber, nil, notifier, testLogger(),
		WithLocation(time.UTC), WithSessionClock(clock))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return session
}

func TestSetWindowLoadsWorkingSet(t *testing.T) {
	lister := &stubLister{records: windowRecords()}
	session := newTestSession(t, lister, &stubSubscriber{}, nil)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	if err := session.SetWindow(context.Background(), start, end); err != nil {
		t.Fatalf("set window: %v", err)
	}

	summary := session.Summary()
	if summary.TotalEvents != 2 {
		t.Fatalf("expected 2 events, got %d", summary.TotalEvents)
	}
	if summary.EventsToday != 1 {
		t.Fatalf("expected 1 event today, got %d", summary.EventsToday)
	}
	if summary.DistinctActors != 2 {
		t.Fatalf("expected 2 distinct actors, got %d", summary.DistinctActors)
	}
	if summary.StreamState != stream.StateConnected {
		t.Fatalf("unexpected stream state %s", summary.StreamState)
	}
}

func TestSetWindowFailureKeepsOldSet(t *testing.T) {
	lister := &stubLister{records: windowRecords()}
	session := newTestSession(t, lister, &stubSubscriber{}, nil)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	if err := session.SetWindow(context.Background(), start, end); err != nil {
		t.Fatalf("set window: %v", err)
	}

	lister.err = context.DeadlineExceeded
	if err := session.SetWindow(context.Background(), start.AddDate(0, -1, 0), end); err == nil {
		t.Fatal("expected load error")
	}
	if got, _ := session.Window(); !got.Equal(start) {
		t.Fatalf("failed load must keep the old window, got start %v", got)
	}
	if session.Summary().TotalEvents != 2 {
		t.Fatal("failed load must keep the old working set")
	}
}

func TestPushMergeRespectsWindowMembership(t *testing.T) {
	lister := &stubLister{records: windowRecords()}
	subscriber := &stubSubscriber{}
	session := newTestSession(t, lister, subscriber, nil)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Close()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	if err := session.SetWindow(context.Background(), start, end); err != nil {
		t.Fatalf("set window: %v", err)
	}

	// In-window record merges.
	subscriber.handler(stream.EventActivityUpdate,
		[]byte(`{"id":"e3","repositoryId":"r1","type":"PUSH","actor":"cy","createdAt":"2026-03-05T11:00:00Z"}`))
	// Out-of-window record is dropped.
	subscriber.handler(stream.EventActivityUpdate,
		[]byte(`{"id":"e4","repositoryId":"r1","type":"PUSH","actor":"cy","createdAt":"2026-02-01T11:00:00Z"}`))
	// Malformed payload is dropped.
	subscriber.handler(stream.EventActivityUpdate, []byte(`{not json`))

	if got := session.Summary().TotalEvents; got != 3 {
		t.Fatalf("expected 3 events after pushes, got %d", got)
	}
	events := session.Events()
	if len(events) == 0 || events[0].ID != "e3" {
		t.Fatalf("pushed record must lead the events view, got %+v", events)
	}
}

func TestPushRoutesNotifications(t *testing.T) {
	subscriber := &stubSubscriber{}
	notifier := &stubNotifier{}
	session := newTestSession(t, &stubLister{}, subscriber, notifier)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Close()

	subscriber.handler(stream.EventActivityUpdate, []byte(`{"id":"x","createdAt":"2026-03-05T11:00:00Z"}`))
	subscriber.handler(stream.EventAlertUpdate, nil)

	gotActivity, gotAlerts := notifier.counts()
	if gotActivity != 1 {
		t.Fatalf("expected 1 activity notification, got %d", gotActivity)
	}
	if gotAlerts != 1 {
		t.Fatalf("expected 1 alert notification, got %d", gotAlerts)
	}
}

func TestRepositoryUpdateReloadsWindow(t *testing.T) {
	lister := &stubLister{records: windowRecords()}
	subscriber := &stubSubscriber{}
	session := newTestSession(t, lister, subscriber, nil)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Close()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	if err := session.SetWindow(context.Background(), start, end); err != nil {
		t.Fatalf("set window: %v", err)
	}

	subscriber.handler(stream.EventRepositoryUpdate, nil)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if lister.callCount() >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected a reload after repository update, saw %d loads", lister.callCount())
}

func TestSelectDateToggles(t *testing.T) {
	session := newTestSession(t, &stubLister{records: windowRecords()}, &stubSubscriber{}, nil)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	if err := session.SetWindow(context.Background(), start, end); err != nil {
		t.Fatalf("set window: %v", err)
	}

	day := activity.Day{Year: 2026, Month: time.March, Day: 5}
	if !session.SelectDate(day) {
		t.Fatal("first click must select the day")
	}
	if got := session.Events(); len(got) != 1 || got[0].ID != "e1" {
		t.Fatalf("expected only the March 5 record, got %+v", got)
	}
	if session.SelectDate(day) {
		t.Fatal("second click on the same day must deselect")
	}
	if got := session.Events(); len(got) != 2 {
		t.Fatalf("expected the whole window after deselect, got %d records", len(got))
	}
}

func TestLastDaysWindowMath(t *testing.T) {
	lister := &stubLister{}
	session := newTestSession(t, lister, &stubSubscriber{}, nil)
	if err := session.LastDays(context.Background(), 7); err != nil {
		t.Fatalf("last days: %v", err)
	}
	start, end := session.Window()
	wantEnd := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	if !end.Equal(wantEnd) {
		t.Fatalf("expected window end %v, got %v", wantEnd, end)
	}
	if !start.Equal(wantEnd.AddDate(0, 0, -7)) {
		t.Fatalf("unexpected window start %v", start)
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	subscriber := &stubSubscriber{}
	session := newTestSession(t, &stubLister{}, subscriber, nil)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	session.Close()
	if !subscriber.unsubscribed {
		t.Fatal("close must release the stream registration")
	}
}
