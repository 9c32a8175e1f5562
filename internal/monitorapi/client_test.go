package monitorapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github-monitor/internal/alerts"
)

func TestListEventsUnwrapsPage(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[
			{"id":"e1","repositoryId":"r1","type":"PUSH","actor":"ana","message":"fix","createdAt":"2026-03-05T09:00:00Z"},
			{"id":"e2","repositoryId":"r1","type":"ISSUE","message":"bug","createdAt":"2026-03-05T10:00:00Z"}
		]}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "token-123")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	start := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 5, 23, 59, 59, 0, time.UTC)
	records, err := client.ListEvents(context.Background(), start, end, 500)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if gotPath != "/events" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer token-123" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "e1" || records[0].Type != "PUSH" {
		t.Fatalf("unexpected first record %+v", records[0])
	}
	if !records[1].CreatedAt.Equal(time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected createdAt %v", records[1].CreatedAt)
	}
}

func TestListAlertsUnwrapsPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/alerts" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("size") != "100" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"id":"a1","severity":"CRITICAL","status":"OPEN","title":"Force push","message":"on main","createdAt":"2026-03-05T08:00:00Z"}]}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	got, err := client.ListAlerts(context.Background(), 100)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(got) != 1 || got[0].Status != alerts.StatusOpen {
		t.Fatalf("unexpected alerts %+v", got)
	}
}

func TestResolveAlertAcceptsEmptyBody(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "token")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.ResolveAlert(context.Background(), "a1"); err != nil {
		t.Fatalf("resolve alert: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/alerts/a1/resolve" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
}

func TestErrorStatusSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.ListAlerts(context.Background(), 10); err == nil {
		t.Fatal("expected error for http 502")
	}
}
