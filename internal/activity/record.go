package activity

import "time"

// Event types delivered by the collaborator backend. Anything outside this
// set (releases, branch creation) is governed by the OTHER filter flag.
const (
	TypePush        = "PUSH"
	TypePullRequest = "PULL_REQUEST"
	TypeIssue       = "ISSUE"
)

// Record represents one repository activity event. Records are immutable;
// a push carrying an already-known id supersedes the stored copy wholesale.
type Record struct {
	ID           string    `json:"id"`
	RepositoryID string    `json:"repositoryId"`
	Type         string    `json:"type"`
	Actor        string    `json:"actor,omitempty"`
	ActorName    string    `json:"actorName,omitempty"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	Branch       string    `json:"branch,omitempty"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"createdAt"`
	URL          string    `json:"url,omitempty"`
}

// ActorLabel returns the display name for the record's author.
func (r Record) ActorLabel() string {
	if r.ActorName != "" {
		return r.ActorName
	}
	if r.Actor != "" {
		return r.Actor
	}
	return "Unknown User"
}

// OnLocalDay reports whether the record's creation time falls on the given
// calendar day when interpreted in loc. Date inputs are parsed as local
// calendar dates, so comparison must be local too, not UTC.
func (r Record) OnLocalDay(year int, month time.Month, day int, loc *time.Location) bool {
	y, m, d := r.CreatedAt.In(loc).Date()
	return y == year && m == month && d == day
}
