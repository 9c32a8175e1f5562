package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github-monitor/internal/activity"
	"github-monitor/internal/alerts"
	"github-monitor/internal/dashboard"
	"github-monitor/internal/monitorapi"
	"github-monitor/internal/observability/metrics"
)

// SummaryHandler serves the dashboard headline view.
type SummaryHandler struct {
	session *dashboard.Session
}

// NewSummaryHandler constructs a SummaryHandler.
func NewSummaryHandler(session *dashboard.Session) *SummaryHandler {
	return &SummaryHandler{session: session}
}

// ServeHTTP handles GET /api/v1/dashboard/summary.
func (h *SummaryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.session == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	metrics.IncViewRequest("summary")
	writeJSON(w, h.session.Summary())
}

// BucketsHandler serves the activity chart.
type BucketsHandler struct {
	session *dashboard.Session
}

// NewBucketsHandler constructs a BucketsHandler.
func NewBucketsHandler(session *dashboard.Session) *BucketsHandler {
	return &BucketsHandler{session: session}
}

// ServeHTTP handles GET /api/v1/dashboard/buckets?span=7|30.
func (h *BucketsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.session == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	span := activity.SpanWeek
	if raw := r.URL.Query().Get("span"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || (parsed != activity.SpanWeek && parsed != activity.SpanMonth) {
			http.Error(w, "span must be 7 or 30", http.StatusBadRequest)
			return
		}
		span = parsed
	}
	metrics.IncViewRequest("buckets")
	writeJSON(w, h.session.Buckets(span))
}

// RecentHandler serves the latest-activity feed.
type RecentHandler struct {
	session *dashboard.Session
}

// NewRecentHandler constructs a RecentHandler.
func NewRecentHandler(session *dashboard.Session) *RecentHandler {
	return &RecentHandler{session: session}
}

// ServeHTTP handles GET /api/v1/dashboard/recent.
func (h *RecentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.session == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	metrics.IncViewRequest("recent")
	feed := h.session.Recent()
	if feed == nil {
		feed = []activity.FeedItem{}
	}
	writeJSON(w, feed)
}

// eventsResponse wraps the filtered events view with the filter state
// that produced it, so pages can render the active chips.
type eventsResponse struct {
	Events       []activity.Record `json:"events"`
	Repository   string            `json:"repository,omitempty"`
	SelectedDate string            `json:"selectedDate,omitempty"`
}

// EventsHandler serves the filtered events view. A plain GET renders the
// session's filter state; query params (repo, types, date) override it
// for this request only, so concurrent pages and refreshes never flip
// each other's filters. Filter mutations go through FilterHandler.
type EventsHandler struct {
	session *dashboard.Session
}

// NewEventsHandler constructs an EventsHandler.
func NewEventsHandler(session *dashboard.Session) *EventsHandler {
	return &EventsHandler{session: session}
}

// ServeHTTP handles GET /api/v1/events.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.session == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	criteria := h.session.Criteria()
	query := r.URL.Query()
	if query.Has("repo") {
		criteria.RepositoryID = query.Get("repo")
	}
	if query.Has("types") {
		criteria.Types = parseTypeFlags(query.Get("types"))
	}
	if query.Has("date") {
		criteria.SelectedDate = nil
		if raw := query.Get("date"); raw != "" {
			day, err := activity.ParseDay(raw)
			if err != nil {
				http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
				return
			}
			criteria.SelectedDate = &day
		}
	}

	metrics.IncViewRequest("events")
	resp := eventsResponse{Events: h.session.EventsMatching(criteria), Repository: criteria.RepositoryID}
	if resp.Events == nil {
		resp.Events = []activity.Record{}
	}
	if criteria.SelectedDate != nil {
		resp.SelectedDate = criteria.SelectedDate.Key()
	}
	writeJSON(w, resp)
}

// filterRequest mutates the session's filter state. A date equal to the
// currently selected one deselects it, the way a second chart click does.
type filterRequest struct {
	Repository *string   `json:"repository,omitempty"`
	Types      *[]string `json:"types,omitempty"`
	Date       *string   `json:"date,omitempty"`
}

// filterState echoes the session's filter state after a mutation.
type filterState struct {
	Repository   string             `json:"repository,omitempty"`
	Types        activity.TypeFlags `json:"types"`
	SelectedDate string             `json:"selectedDate,omitempty"`
}

// FilterHandler owns filter-state mutations for the events view.
type FilterHandler struct {
	session *dashboard.Session
}

// NewFilterHandler constructs a FilterHandler.
func NewFilterHandler(session *dashboard.Session) *FilterHandler {
	return &FilterHandler{session: session}
}

// ServeHTTP handles POST /api/v1/events/filter.
func (h *FilterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.session == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid filter body", http.StatusBadRequest)
		return
	}
	if req.Repository != nil {
		h.session.SetRepository(*req.Repository)
	}
	if req.Types != nil {
		h.session.SetTypeFlags(parseTypeFlags(strings.Join(*req.Types, ",")))
	}
	if req.Date != nil {
		if *req.Date == "" {
			h.session.ClearDate()
		} else {
			day, err := activity.ParseDay(*req.Date)
			if err != nil {
				http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
				return
			}
			h.session.SelectDate(day)
		}
	}

	criteria := h.session.Criteria()
	state := filterState{Repository: criteria.RepositoryID, Types: criteria.Types}
	if criteria.SelectedDate != nil {
		state.SelectedDate = criteria.SelectedDate.Key()
	}
	writeJSON(w, state)
}

func parseTypeFlags(raw string) activity.TypeFlags {
	flags := activity.TypeFlags{}
	for _, part := range strings.Split(raw, ",") {
		switch strings.ToUpper(strings.TrimSpace(part)) {
		case activity.TypePush:
			flags.Push = true
		case activity.TypePullRequest:
			flags.PullRequest = true
		case activity.TypeIssue:
			flags.Issue = true
		case "OTHER":
			flags.Other = true
		}
	}
	return flags
}

// AlertsHandler serves the cached alert list.
type AlertsHandler struct {
	session *dashboard.Session
}

// NewAlertsHandler constructs an AlertsHandler.
func NewAlertsHandler(session *dashboard.Session) *AlertsHandler {
	return &AlertsHandler{session: session}
}

// ServeHTTP handles GET /api/v1/alerts.
func (h *AlertsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.session == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	metrics.IncViewRequest("alerts")
	list := h.session.Alerts()
	if list == nil {
		list = []alerts.Alert{}
	}
	writeJSON(w, struct {
		Alerts []alerts.Alert `json:"alerts"`
	}{Alerts: list})
}

// ResolveAlertHandler forwards operator resolves.
type ResolveAlertHandler struct {
	session *dashboard.Session
}

// NewResolveAlertHandler constructs a ResolveAlertHandler.
func NewResolveAlertHandler(session *dashboard.Session) *ResolveAlertHandler {
	return &ResolveAlertHandler{session: session}
}

// ServeHTTP handles POST /api/v1/alerts/{id}/resolve.
func (h *ResolveAlertHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.session == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	id := resolveAlertID(r.URL.Path)
	if id == "" {
		http.Error(w, "alert id is required", http.StatusBadRequest)
		return
	}
	if err := h.session.ResolveAlert(r.Context(), id); err != nil {
		if errors.Is(err, monitorapi.ErrNotFound) {
			http.Error(w, "alert not found", http.StatusNotFound)
			return
		}
		http.Error(w, "resolve failed", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolveAlertID extracts {id} from /api/v1/alerts/{id}/resolve.
func resolveAlertID(path string) string {
	trimmed := strings.TrimPrefix(path, "/api/v1/alerts/")
	trimmed = strings.TrimSuffix(trimmed, "/resolve")
	if trimmed == path || strings.Contains(trimmed, "/") {
		return ""
	}
	return trimmed
}

// HealthHandler answers liveness probes.
type HealthHandler struct{}

// ServeHTTP handles GET /healthz.
func (HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}
