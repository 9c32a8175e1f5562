package alerts

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Reader lists the alert collection from the historical-query collaborator.
type Reader interface {
	ListAlerts(ctx context.Context, size int) ([]Alert, error)
}

// Resolver marks an alert resolved on the collaborator. Idempotent.
type Resolver interface {
	ResolveAlert(ctx context.Context, id string) error
}

// Clock provides time for the optimistic resolvedAt stamp.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// DefaultListSize matches the collaborator page size the views request.
const DefaultListSize = 100

// Counter maintains the unresolved-alert count and the local alert copies.
// Refresh replaces the local state with the collaborator's; Resolve applies
// an optimistic local transition with a pending marker and reverts to the
// last-known-server-state when the collaborator call fails.
type Counter struct {
	reader   Reader
	resolver Resolver
	clock    Clock
	logger   *log.Logger
	listSize int

	mu        sync.Mutex
	alerts    []Alert
	serverRef map[string]Alert
	pending   map[string]struct{}
	openCount int
}

// Option configures the counter.
type Option func(*Counter)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(c *Counter) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithListSize overrides the refresh page size.
func WithListSize(size int) Option {
	return func(c *Counter) {
		if size > 0 {
			c.listSize = size
		}
	}
}

// NewCounter constructs an alert counter.
func NewCounter(reader Reader, resolver Resolver, logger *log.Logger, opts ...Option) (*Counter, error) {
	if reader == nil {
		return nil, errors.New("alerts: nil reader")
	}
	if logger == nil {
		return nil, errors.New("alerts: nil logger")
	}
	c := &Counter{
		reader:    reader,
		resolver:  resolver,
		clock:     systemClock{},
		logger:    logger,
		listSize:  DefaultListSize,
		serverRef: make(map[string]Alert),
		pending:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Refresh fetches the full alert collection and recounts the OPEN alerts.
// On failure the existing state is left in place.
func (c *Counter) Refresh(ctx context.Context) error {
	if c == nil {
		return errors.New("alerts: nil counter")
	}
	fetched, err := c.reader.ListAlerts(ctx, c.listSize)
	if err != nil {
		c.logger.Printf("alert refresh error: %v", err)
		return err
	}

	open := 0
	serverRef := make(map[string]Alert, len(fetched))
	for _, alert := range fetched {
		serverRef[alert.ID] = alert
		if alert.Status == StatusOpen {
			open++
		}
	}

	c.mu.Lock()
	c.alerts = fetched
	c.serverRef = serverRef
	c.openCount = open
	// A refresh carries authoritative server state; pending markers for
	// ids it covers are obsolete.
	for id := range c.pending {
		if _, ok := serverRef[id]; ok {
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()
	return nil
}

// OpenCount returns the unresolved-alert count.
func (c *Counter) OpenCount() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openCount
}

// All returns a copy of the local alert collection.
func (c *Counter) All() []Alert {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

// Pending reports whether an alert has an unconfirmed local mutation.
func (c *Counter) Pending(id string) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// Resolve marks an alert resolved: the local copy transitions OPEN to
// RESOLVED immediately with a client-time resolvedAt stamp, then the
// collaborator is told. A failed call reverts the local copy to the last
// state the server confirmed and returns the error.
func (c *Counter) Resolve(ctx context.Context, id string) error {
	if c == nil {
		return errors.New("alerts: nil counter")
	}
	if id == "" {
		return errors.New("alerts: empty alert id")
	}
	if c.resolver == nil {
		return errors.New("alerts: no resolver configured")
	}

	c.mu.Lock()
	pos := -1
	for i := range c.alerts {
		if c.alerts[i].ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		c.mu.Unlock()
		return errors.New("alerts: unknown alert id")
	}
	if c.alerts[pos].Status == StatusResolved {
		c.mu.Unlock()
		return nil
	}
	c.pending[id] = struct{}{}
	c.alerts[pos].Status = StatusResolved
	c.alerts[pos].ResolvedAt = c.clock.Now()
	c.openCount--
	c.mu.Unlock()

	if err := c.resolver.ResolveAlert(ctx, id); err != nil {
		c.logger.Printf("alert resolve error: id=%s err=%v", id, err)
		c.revert(id)
		return err
	}

	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
	return nil
}

func (c *Counter) revert(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
	serverCopy, ok := c.serverRef[id]
	if !ok {
		return
	}
	for i := range c.alerts {
		if c.alerts[i].ID != id {
			continue
		}
		wasResolved := c.alerts[i].Status == StatusResolved
		c.alerts[i] = serverCopy
		if wasResolved && serverCopy.Status == StatusOpen {
			c.openCount++
		}
		return
	}
}
