package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github-monitor/internal/alerts"
	apihttp "github-monitor/internal/api/http"
	"github-monitor/internal/auth"
	"github-monitor/internal/dashboard"
	"github-monitor/internal/monitorapi"
	"github-monitor/internal/notify"
	"github-monitor/internal/observability/metrics"
	"github-monitor/internal/stream"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := dashboard.LoadConfig()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatalf("timezone error: %v", err)
	}
	metrics.Init()

	if info, err := auth.Inspect(cfg.Token); err != nil {
		logger.Printf("stream token not inspectable: %v", err)
	} else if info.ExpiresWithin(cfg.Stream.TokenWarning, time.Now()) {
		logger.Printf("stream token for %q expires at %s", info.Subject, info.ExpiresAt.Format(time.RFC3339))
	}

	client, err := monitorapi.NewClient(cfg.CollaboratorURL, cfg.Token)
	if err != nil {
		logger.Fatalf("collaborator client error: %v", err)
	}

	connector, err := stream.NewConnector(cfg.CollaboratorURL, cfg.Token, logger)
	if err != nil {
		logger.Fatalf("stream connector error: %v", err)
	}
	manager, err := stream.NewManager(connector, logger,
		stream.WithTopic(cfg.Stream.Topic),
		stream.WithBackoff(cfg.Stream.BackoffBase, cfg.Stream.BackoffMax),
		stream.WithMaxAttempts(cfg.Stream.MaxAttempts),
	)
	if err != nil {
		logger.Fatalf("stream manager error: %v", err)
	}

	counter, err := alerts.NewCounter(client, client, logger, alerts.WithListSize(cfg.AlertPageSize))
	if err != nil {
		logger.Fatalf("alert counter error: %v", err)
	}

	var cue notify.Cue = notify.NopCue{}
	if cfg.Cue.Command != "" {
		cue, err = notify.NewCommandCue(cfg.Cue.Command, cfg.Cue.Args...)
		if err != nil {
			logger.Fatalf("cue error: %v", err)
		}
	}
	sink, err := notify.NewSink(cue, counter, logger, notify.WithCueCooldown(cfg.Cue.Cooldown))
	if err != nil {
		logger.Fatalf("notification sink error: %v", err)
	}

	session, err := dashboard.NewSession(client, manager, counter, sink, logger,
		dashboard.WithLocation(loc),
		dashboard.WithPageSize(cfg.EventPageSize),
	)
	if err != nil {
		logger.Fatalf("session error: %v", err)
	}

	ctx := context.Background()
	if err := counter.Refresh(ctx); err != nil {
		logger.Printf("initial alert refresh error: %v", err)
	}
	if err := session.LastDays(ctx, 30); err != nil {
		logger.Printf("initial window load error: %v", err)
	}
	if err := session.Start(ctx); err != nil {
		logger.Fatalf("session start error: %v", err)
	}
	defer session.Close()

	broker, err := apihttp.NewSSEBroker(manager, logger)
	if err != nil {
		logger.Fatalf("broker error: %v", err)
	}
	if err := broker.Start(); err != nil {
		logger.Fatalf("broker start error: %v", err)
	}
	defer broker.Close()

	authMiddleware := auth.NewMiddleware([]byte(cfg.APISecret), []string{"/healthz", "/metrics"}, nil)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/dashboard/summary", apihttp.NewSummaryHandler(session))
	mux.Handle("/api/v1/dashboard/buckets", apihttp.NewBucketsHandler(session))
	mux.Handle("/api/v1/dashboard/recent", apihttp.NewRecentHandler(session))
	mux.Handle("/api/v1/events", apihttp.NewEventsHandler(session))
	mux.Handle("/api/v1/events/filter", apihttp.NewFilterHandler(session))
	mux.Handle("/api/v1/alerts", apihttp.NewAlertsHandler(session))
	mux.Handle("/api/v1/alerts/", apihttp.NewResolveAlertHandler(session))
	mux.Handle("/api/v1/stream", apihttp.NewStreamHandler(broker))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", apihttp.HealthHandler{})

	server := &http.Server{Addr: cfg.ListenAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.ListenAddr)
	logger.Fatal(server.ListenAndServe())
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the SSE re-broadcast working through the logging wrapper.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
