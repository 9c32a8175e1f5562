package alerts

import "time"

const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)

const (
	StatusOpen     = "OPEN"
	StatusResolved = "RESOLVED"
)

// Alert represents one alert raised by the collaborator backend. The status
// transition is one-directional: OPEN to RESOLVED, never back.
type Alert struct {
	ID          string    `json:"id"`
	Severity    string    `json:"severity"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	ResolvedAt  time.Time `json:"resolvedAt,omitempty"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Branch      string    `json:"branch,omitempty"`
	AuthorLogin string    `json:"authorLogin,omitempty"`
}
