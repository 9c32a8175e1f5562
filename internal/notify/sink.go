package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github-monitor/internal/observability/metrics"
)

// Refresher re-reads the alert state after a push notification hinted
// that it changed.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Clock abstracts time for cooldown decisions.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// DefaultCueCooldown is the minimum spacing between cue playbacks. A
// burst of pushed records makes one sound, not a drum roll.
const DefaultCueCooldown = 2 * time.Second

// Sink reacts to pushed activity: it plays the attention cue and kicks
// an alert refresh. Both sides are best effort; a broken player or a
// failed refresh is logged and never propagates to the push channel.
type Sink struct {
	cue       Cue
	refresher Refresher
	logger    *log.Logger
	clock     Clock
	cooldown  time.Duration

	mu           sync.Mutex
	cueBusy      bool
	lastCue      time.Time
	refreshBusy  bool
	refreshAgain bool

	wg sync.WaitGroup
}

// Option customizes a Sink.
type Option func(*Sink)

// WithCueCooldown overrides the minimum spacing between playbacks.
func WithCueCooldown(d time.Duration) Option {
	return func(s *Sink) {
		if d >= 0 {
			s.cooldown = d
		}
	}
}

// WithClock injects a clock, for tests.
func WithClock(clock Clock) Option {
	return func(s *Sink) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewSink constructs a notification sink. The cue may be NopCue; the
// refresher may be nil when no alert state is tracked.
func NewSink(cue Cue, refresher Refresher, logger *log.Logger, opts ...Option) (*Sink, error) {
	if cue == nil {
		return nil, errors.New("notify: nil cue")
	}
	if logger == nil {
		return nil, errors.New("notify: nil logger")
	}
	s := &Sink{
		cue:       cue,
		refresher: refresher,
		logger:    logger,
		clock:     systemClock{},
		cooldown:  DefaultCueCooldown,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OnActivity handles one pushed activity notification. Non-blocking:
// cue playback and alert refresh run on their own goroutines.
func (s *Sink) OnActivity(ctx context.Context) {
	if s == nil {
		return
	}
	s.playCue(ctx)
	s.kickRefresh(ctx)
}

// OnAlert handles one pushed alert notification: alert state changed
// upstream, so refresh the local count. No cue; alerts have their own
// visual surface.
func (s *Sink) OnAlert(ctx context.Context) {
	if s == nil {
		return
	}
	s.kickRefresh(ctx)
}

// Close waits for in-flight playback and refresh work.
func (s *Sink) Close() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

// playCue starts a playback unless one is running or the cooldown has
// not elapsed. Overlapping sounds and rapid-fire repeats are both worse
// than silence.
func (s *Sink) playCue(ctx context.Context) {
	s.mu.Lock()
	now := s.clock.Now()
	if s.cueBusy || (!s.lastCue.IsZero() && now.Sub(s.lastCue) < s.cooldown) {
		s.mu.Unlock()
		metrics.IncCuePlayback("skipped")
		return
	}
	s.cueBusy = true
	s.lastCue = now
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.cue.Play(ctx)
		s.mu.Lock()
		s.cueBusy = false
		s.mu.Unlock()
		if err != nil {
			s.logger.Printf("cue playback failed: %v", err)
			metrics.IncCuePlayback(metrics.ResultError)
			return
		}
		metrics.IncCuePlayback(metrics.ResultSuccess)
	}()
}

// kickRefresh runs one refresh at a time. Arrivals during a running
// refresh coalesce into a single follow-up pass.
func (s *Sink) kickRefresh(ctx context.Context) {
	if s.refresher == nil {
		return
	}
	s.mu.Lock()
	if s.refreshBusy {
		s.refreshAgain = true
		s.mu.Unlock()
		return
	}
	s.refreshBusy = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			started := s.clock.Now()
			err := s.refresher.Refresh(ctx)
			if err != nil {
				s.logger.Printf("alert refresh failed: %v", err)
				metrics.ObserveAlertRefresh(metrics.ResultError, s.clock.Now().Sub(started))
			} else {
				metrics.ObserveAlertRefresh(metrics.ResultSuccess, s.clock.Now().Sub(started))
			}

			s.mu.Lock()
			if !s.refreshAgain {
				s.refreshBusy = false
				s.mu.Unlock()
				return
			}
			s.refreshAgain = false
			s.mu.Unlock()
		}
	}()
}
