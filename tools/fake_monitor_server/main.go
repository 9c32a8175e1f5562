// Command fake_monitor_server emulates the collaborator backend for
// local development: the paged /events and /alerts queries, the resolve
// mutation, and the /events/stream push channel emitting a synthetic
// activity record on an interval.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

type fakeMonitorServer struct {
	start    time.Time
	interval time.Duration
	logger   *log.Logger

	mu       sync.Mutex
	eventSeq int
	events   []map[string]any
	alerts   []map[string]any

	streamMu sync.Mutex
	streams  map[chan []byte]struct{}
}

var (
	repositories = []string{"repo-api", "repo-web", "repo-infra"}
	actors       = []string{"ana", "bo", "cy", "dee"}
	branches     = []string{"main", "develop", "feature/login", "fix/ci"}
	eventTypes   = []string{"PUSH", "PUSH", "PULL_REQUEST", "ISSUE", "RELEASE"}
	messages     = []string{"fix build", "add tests", "bump deps", "refactor handler", "update docs"}
)

func main() {
	addr := getenvDefault("FAKE_MONITOR_ADDR", ":18090")
	intervalMs := getenvIntDefault("FAKE_MONITOR_INTERVAL_MS", 5000)
	logger := log.New(os.Stdout, "", log.LstdFlags)

	srv := &fakeMonitorServer{
		start:    time.Now().UTC(),
		interval: time.Duration(intervalMs) * time.Millisecond,
		logger:   logger,
		streams:  make(map[chan []byte]struct{}),
	}
	srv.seed()
	go srv.emitLoop()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/events", srv.handleEvents)
	mux.HandleFunc("/events/stream", srv.handleStream)
	mux.HandleFunc("/alerts", srv.handleAlerts)
	mux.HandleFunc("/alerts/", srv.handleResolve)

	logger.Printf("fake monitor server listening on %s", addr)
	logger.Fatal(http.ListenAndServe(addr, mux))
}

func (s *fakeMonitorServer) seed() {
	now := time.Now().UTC()
	for i := 0; i < 40; i++ {
		record := s.newRecord(now.Add(-time.Duration(rand.Intn(14*24)) * time.Hour))
		s.events = append(s.events, record)
	}
	s.alerts = []map[string]any{
		{"id": "alert-1", "severity": "CRITICAL", "status": "OPEN", "title": "Force push on main", "message": "repo-api main history rewritten", "createdAt": now.Add(-2 * time.Hour).Format(time.RFC3339)},
		{"id": "alert-2", "severity": "WARNING", "status": "OPEN", "title": "Stale branch", "message": "feature/login 21 days without commits", "createdAt": now.Add(-26 * time.Hour).Format(time.RFC3339)},
		{"id": "alert-3", "severity": "INFO", "status": "RESOLVED", "title": "Sync finished", "message": "repo-infra mirror synced", "createdAt": now.Add(-48 * time.Hour).Format(time.RFC3339), "resolvedAt": now.Add(-47 * time.Hour).Format(time.RFC3339)},
	}
}

func (s *fakeMonitorServer) newRecord(createdAt time.Time) map[string]any {
	s.eventSeq++
	actor := actors[rand.Intn(len(actors))]
	return map[string]any{
		"id":           fmt.Sprintf("evt-%05d", s.eventSeq),
		"repositoryId": repositories[rand.Intn(len(repositories))],
		"type":         eventTypes[rand.Intn(len(eventTypes))],
		"actor":        actor,
		"actorName":    strings.ToUpper(actor[:1]) + actor[1:],
		"branch":       branches[rand.Intn(len(branches))],
		"message":      messages[rand.Intn(len(messages))],
		"createdAt":    createdAt.Format(time.RFC3339),
	}
}

func (s *fakeMonitorServer) emitLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		record := s.newRecord(time.Now().UTC())
		s.events = append(s.events, record)
		payload, _ := json.Marshal(record)
		s.mu.Unlock()

		s.broadcast("event-update", payload)
		if rand.Float64() < 0.2 {
			s.broadcast("alert-update", nil)
		}
		if rand.Float64() < 0.1 {
			s.broadcast("repository-update", nil)
		}
	}
}

func (s *fakeMonitorServer) broadcast(event string, payload []byte) {
	frame := []byte("event: " + event + "\ndata: " + string(payload) + "\n\n")
	s.streamMu.Lock()
	for ch := range s.streams {
		select {
		case ch <- frame:
		default:
		}
	}
	s.streamMu.Unlock()
}

func (s *fakeMonitorServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"status":"ok","uptime":%q}`, time.Since(s.start).Truncate(time.Second))
}

func (s *fakeMonitorServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start, _ := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	end, _ := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	size := getIntQuery(r, "size", 500)

	s.mu.Lock()
	defer s.mu.Unlock()
	content := make([]map[string]any, 0, len(s.events))
	for _, record := range s.events {
		createdAt, _ := time.Parse(time.RFC3339, record["createdAt"].(string))
		if !start.IsZero() && createdAt.Before(start) {
			continue
		}
		if !end.IsZero() && createdAt.After(end) {
			continue
		}
		content = append(content, record)
		if len(content) >= size {
			break
		}
	}
	writePage(w, content)
}

func (s *fakeMonitorServer) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	size := getIntQuery(r, "size", 100)
	s.mu.Lock()
	defer s.mu.Unlock()
	content := s.alerts
	if len(content) > size {
		content = content[:size]
	}
	writePage(w, content)
}

func (s *fakeMonitorServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/resolve") {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/alerts/"), "/resolve")

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, alert := range s.alerts {
		if alert["id"] != id {
			continue
		}
		alert["status"] = "RESOLVED"
		alert["resolvedAt"] = time.Now().UTC().Format(time.RFC3339)
		w.WriteHeader(http.StatusNoContent)
		s.logger.Printf("alert %s resolved", id)
		return
	}
	http.Error(w, "alert not found", http.StatusNotFound)
}

func (s *fakeMonitorServer) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	ch := make(chan []byte, 16)
	s.streamMu.Lock()
	s.streams[ch] = struct{}{}
	s.streamMu.Unlock()
	defer func() {
		s.streamMu.Lock()
		delete(s.streams, ch)
		s.streamMu.Unlock()
	}()
	s.logger.Printf("stream client connected token=%q", r.URL.Query().Get("token"))

	for {
		select {
		case frame := <-ch:
			_, _ = w.Write(frame)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writePage(w http.ResponseWriter, content any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"content": content})
}

func getIntQuery(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
