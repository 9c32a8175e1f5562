package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github-monitor/internal/activity"
	"github-monitor/internal/alerts"
	"github-monitor/internal/observability/metrics"
	"github-monitor/internal/stream"
)

// EventLister pulls historical activity from the collaborator.
type EventLister interface {
	ListEvents(ctx context.Context, start, end time.Time, size int) ([]activity.Record, error)
}

// Subscriber attaches the session to the shared push channel.
type Subscriber interface {
	Subscribe(handler stream.Handler) (func(), error)
	State() stream.State
}

// Notifier reacts to pushed updates. Satisfied by notify.Sink.
type Notifier interface {
	OnActivity(ctx context.Context)
	OnAlert(ctx context.Context)
}

// Clock abstracts time for window math.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// DefaultPageSize bounds a single window bulk load.
const DefaultPageSize = 500

// Summary is the headline view rendered at the top of the dashboard.
type Summary struct {
	WindowStart    time.Time              `json:"windowStart"`
	WindowEnd      time.Time              `json:"windowEnd"`
	TotalEvents    int                    `json:"totalEvents"`
	EventsToday    int                    `json:"eventsToday"`
	OpenAlerts     int                    `json:"openAlerts"`
	DistinctActors int                    `json:"distinctActors"`
	Repositories   []activity.RepoSummary `json:"repositories"`
	StreamState    stream.State           `json:"streamState"`
}

// Session owns the live working set for one dashboard: the reporting
// window, the filter state, and the push consumption that keeps the set
// current. All state transitions are serialized on one mutex; derived
// views are recomputed from the working set on read.
type Session struct {
	lister     EventLister
	subscriber Subscriber
	counter    *alerts.Counter
	notifier   Notifier
	store      *activity.Store
	logger     *log.Logger
	clock      Clock
	loc        *time.Location
	pageSize   int

	mu          sync.Mutex
	windowStart time.Time
	windowEnd   time.Time
	criteria    activity.Criteria
	unsubscribe func()
	closed      bool
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithLocation sets the reporting timezone.
func WithLocation(loc *time.Location) SessionOption {
	return func(s *Session) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithSessionClock injects a clock, for tests.
func WithSessionClock(clock Clock) SessionOption {
	return func(s *Session) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPageSize bounds window bulk loads.
func WithPageSize(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewSession constructs a session. The counter and notifier may be nil;
// alert-related behavior degrades to no-ops.
func NewSession(lister EventLister, subscriber Subscriber, counter *alerts.Counter, notifier Notifier, logger *log.Logger, opts ...SessionOption) (*Session, error) {
	if lister == nil {
		return nil, errors.New("dashboard: nil event lister")
	}
	if subscriber == nil {
		return nil, errors.New("dashboard: nil subscriber")
	}
	if logger == nil {
		return nil, errors.New("dashboard: nil logger")
	}
	s := &Session{
		lister:     lister,
		subscriber: subscriber,
		counter:    counter,
		notifier:   notifier,
		store:      activity.NewStore(),
		logger:     logger,
		clock:      systemClock{},
		loc:        time.Local,
		pageSize:   DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.criteria = activity.Criteria{Types: activity.DefaultTypeFlags(), Location: s.loc}
	s.store.OnMutation(func(m activity.Mutation) {
		metrics.IncStoreMerge(string(m.Kind), m.Size)
	})
	return s, nil
}

// Start attaches the session to the push channel. Call once.
func (s *Session) Start(ctx context.Context) error {
	unsubscribe, err := s.subscriber.Subscribe(func(event string, data []byte) {
		s.handlePush(ctx, event, data)
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	return nil
}

// Close detaches the session from the push channel. No push is
// delivered after Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.closed = true
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// SetWindow replaces the reporting window and bulk loads it from the
// collaborator. The previous working set is discarded wholesale; a
// failed load keeps the old window and set intact.
func (s *Session) SetWindow(ctx context.Context, start, end time.Time) error {
	if !end.After(start) {
		return errors.New("dashboard: window end must be after start")
	}
	began := s.clock.Now()
	records, err := s.lister.ListEvents(ctx, start, end, s.pageSize)
	if err != nil {
		metrics.ObserveWindowLoad(metrics.ResultError, s.clock.Now().Sub(began))
		return err
	}
	metrics.ObserveWindowLoad(metrics.ResultSuccess, s.clock.Now().Sub(began))

	s.mu.Lock()
	s.windowStart = start
	s.windowEnd = end
	s.mu.Unlock()
	s.store.Load(records)
	s.logger.Printf("window set %s..%s, %d records", start.Format(time.RFC3339), end.Format(time.RFC3339), len(records))
	return nil
}

// LastDays sets a window covering the trailing n local calendar days,
// today included.
func (s *Session) LastDays(ctx context.Context, n int) error {
	if n <= 0 {
		return errors.New("dashboard: day count must be positive")
	}
	now := s.clock.Now().In(s.loc)
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -n)
	return s.SetWindow(ctx, start, end)
}

// MonthOf sets a window covering one calendar month.
func (s *Session) MonthOf(ctx context.Context, year int, month time.Month) error {
	start := time.Date(year, month, 1, 0, 0, 0, 0, s.loc)
	return s.SetWindow(ctx, start, start.AddDate(0, 1, 0))
}

// Reload re-fetches the current window. No-op before the first
// SetWindow.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	start, end := s.windowStart, s.windowEnd
	s.mu.Unlock()
	if start.IsZero() {
		return nil
	}
	return s.SetWindow(ctx, start, end)
}

// Window reports the current reporting window.
func (s *Session) Window() (start, end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windowStart, s.windowEnd
}

// handlePush consumes one pushed message. Malformed payloads and
// records outside the window current at processing time are dropped and
// counted, never fatal.
func (s *Session) handlePush(ctx context.Context, event string, data []byte) {
	switch event {
	case stream.EventActivityUpdate:
		s.mergePushed(data)
		if s.notifier != nil {
			s.notifier.OnActivity(ctx)
		}
	case stream.EventAlertUpdate:
		if s.notifier != nil {
			s.notifier.OnAlert(ctx)
		}
	case stream.EventRepositoryUpdate:
		// Repository metadata changed upstream; refresh the working set
		// off the push goroutine.
		go func() {
			if err := s.Reload(ctx); err != nil {
				s.logger.Printf("window reload after repository update failed: %v", err)
			}
		}()
	}
}

func (s *Session) mergePushed(data []byte) {
	var record activity.Record
	if err := json.Unmarshal(data, &record); err != nil || record.ID == "" {
		metrics.IncStreamDropped("malformed")
		s.logger.Printf("dropping malformed pushed record: %v", err)
		return
	}

	s.mu.Lock()
	start, end := s.windowStart, s.windowEnd
	s.mu.Unlock()
	if start.IsZero() || record.CreatedAt.Before(start) || !record.CreatedAt.Before(end) {
		metrics.IncStreamDropped("stale")
		return
	}
	s.store.Merge(record)
}

// SelectDate toggles the calendar-day filter: selecting the already
// selected day clears it. Reports whether a day is selected afterwards.
func (s *Session) SelectDate(day activity.Day) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.criteria.SelectedDate != nil && *s.criteria.SelectedDate == day {
		s.criteria.SelectedDate = nil
		return false
	}
	selected := day
	s.criteria.SelectedDate = &selected
	return true
}

// ClearDate drops the calendar-day filter.
func (s *Session) ClearDate() {
	s.mu.Lock()
	s.criteria.SelectedDate = nil
	s.mu.Unlock()
}

// SetRepository filters the events view to one repository; empty clears.
func (s *Session) SetRepository(id string) {
	s.mu.Lock()
	s.criteria.RepositoryID = id
	s.mu.Unlock()
}

// SetTypeFlags replaces the type filter wholesale.
func (s *Session) SetTypeFlags(flags activity.TypeFlags) {
	s.mu.Lock()
	s.criteria.Types = flags
	s.mu.Unlock()
}

// Criteria reports the current filter state.
func (s *Session) Criteria() activity.Criteria {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.criteria
}

// Summary builds the headline view over the whole window, ignoring the
// events-page filter.
func (s *Session) Summary() Summary {
	records := s.store.All()
	now := s.clock.Now()
	start, end := s.Window()

	var openAlerts int
	if s.counter != nil {
		openAlerts = s.counter.OpenCount()
	}
	return Summary{
		WindowStart:    start,
		WindowEnd:      end,
		TotalEvents:    len(records),
		EventsToday:    activity.CountOnDay(records, now, s.loc),
		OpenAlerts:     openAlerts,
		DistinctActors: activity.DistinctActors(records),
		Repositories:   activity.RepoSummaries(records),
		StreamState:    s.subscriber.State(),
	}
}

// Buckets builds the activity chart for a 7 or 30 day span ending
// today. Span changes never re-fetch; the chart is a pure recompute
// over the working set.
func (s *Session) Buckets(span int) []activity.Bucket {
	return activity.Buckets(s.store.All(), span, s.clock.Now(), s.loc)
}

// Recent builds the latest-activity feed.
func (s *Session) Recent() []activity.FeedItem {
	return activity.Recent(s.store.All(), s.clock.Now())
}

// Events builds the filtered events view from the session's own filter
// state.
func (s *Session) Events() []activity.Record {
	s.mu.Lock()
	criteria := s.criteria
	s.mu.Unlock()
	return activity.Filter(s.store.All(), criteria)
}

// EventsMatching builds an events view for caller-supplied criteria
// without touching the session's filter state. Read-only views derive
// their criteria per request through this.
func (s *Session) EventsMatching(criteria activity.Criteria) []activity.Record {
	if criteria.Location == nil {
		criteria.Location = s.loc
	}
	return activity.Filter(s.store.All(), criteria)
}

// Location reports the session's reporting timezone.
func (s *Session) Location() *time.Location {
	return s.loc
}

// Alerts reports the cached alert list, pending resolves applied.
func (s *Session) Alerts() []alerts.Alert {
	if s.counter == nil {
		return nil
	}
	return s.counter.All()
}

// ResolveAlert forwards an operator resolve through the counter.
func (s *Session) ResolveAlert(ctx context.Context, id string) error {
	if s.counter == nil {
		return errors.New("dashboard: alert tracking disabled")
	}
	err := s.counter.Resolve(ctx, id)
	if err != nil {
		metrics.IncAlertResolve(metrics.ResultError)
		return err
	}
	metrics.IncAlertResolve(metrics.ResultSuccess)
	return nil
}
