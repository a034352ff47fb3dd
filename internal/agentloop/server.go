package agentloop

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// chatRequest is the body of POST /v1/chat.
type chatRequest struct {
	Message        string   `json:"message"`
	ConfirmedTools []string `json:"confirmed_tools"`
}

// Server exposes the tool loop over HTTP: one SSE stream per chat request,
// plus a Prometheus /metrics endpoint instrumenting round-trip counts
// (ambient stack carry-through — the teacher has no metrics, but the
// agent loop is exactly the kind of long-lived daemon the rest of the
// example pack instruments).
type Server struct {
	client anthropic.Client
	cfg    Config
	deps   *Deps
	logger *slog.Logger

	chatRequests  prometheus.Counter
	chatErrors    prometheus.Counter
	roundDuration prometheus.Histogram
}

// NewServer builds the agent loop's HTTP surface. client is a configured
// anthropic.Client (API key resolution is the caller's concern).
func NewServer(client anthropic.Client, deps *Deps, logger *slog.Logger) *Server {
	cfg := defaultConfig()
	return &Server{
		client: client,
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "agentloop.server"),
		chatRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perplbot_agentloop_chat_requests_total",
			Help: "Total chat requests handled by the agent tool loop.",
		}),
		chatErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perplbot_agentloop_chat_errors_total",
			Help: "Total chat requests that ended in an error event.",
		}),
		roundDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "perplbot_agentloop_round_duration_seconds",
			Help:    "Wall-clock duration of one full chat request.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handler returns the mux to mount on the front-end's HTTP server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat", s.handleChat)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	sseWriter, err := newEventWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.chatRequests.Inc()
	start := time.Now()

	session := NewSession(s.client, s.cfg, s.deps, req.ConfirmedTools, s.logger)
	if err := session.Run(r.Context(), sseWriter, req.Message); err != nil {
		s.chatErrors.Inc()
		s.logger.Error("chat session ended in error", "error", err)
	}

	s.roundDuration.Observe(time.Since(start).Seconds())
}
