// Package api exposes the honeypot webhook and operator endpoints.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"honeytrap/internal/engagement"
	"honeytrap/internal/intel"
	"honeytrap/internal/schema"
	"honeytrap/internal/session"
)

// Handler serves the honeypot HTTP API.
type Handler struct {
	engine     *engagement.Engine
	store      *session.Store
	validator  *schema.Validator
	registry   intel.Registry
	maxPayload int
	startTime  time.Time

	turnsTotal    uint64
	turnsFailed   uint64
	scamsDetected uint64
	reportsTotal  uint64
}

// NewHandler creates the API handler.
func NewHandler(engine *engagement.Engine, store *session.Store, registry intel.Registry) *Handler {
	return &Handler{
		engine:     engine,
		store:      store,
		validator:  schema.NewValidator(),
		registry:   registry,
		maxPayload: 1 * 1024 * 1024, // 1MB
		startTime:  time.Now(),
	}
}

// NoteReported records a delivered report. Wired into the engagement
// engine's OnReported hook by the caller that owns both.
func (h *Handler) NoteReported(*schema.Session) {
	atomic.AddUint64(&h.reportsTotal, 1)
}

// Routes registers all endpoints on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/honeypot", h.HandleTurn)
	mux.HandleFunc("GET /api/sessions", h.HandleSessions)
	mux.HandleFunc("GET /api/session/{id}", h.HandleSession)
	mux.HandleFunc("GET /api/session/{id}/history", h.HandleHistory)
	mux.HandleFunc("POST /api/session/{id}/report", h.HandleForceReport)
	mux.HandleFunc("GET /api/stats", h.HandleStats)
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /metrics", h.Metrics)
	return mux
}

// TurnResponse is the webhook response body. A failed turn still carries a
// reply so the conversation with the scammer never stalls.
type TurnResponse struct {
	Status       string  `json:"status"`
	SessionID    string  `json:"sessionId"`
	Reply        string  `json:"reply"`
	ScamDetected bool    `json:"scamDetected"`
	Confidence   float64 `json:"confidence,omitempty"`
	ScamType     string  `json:"scamType,omitempty"`
	State        string  `json:"state,omitempty"`
	Reported     bool    `json:"reported"`
	RequestID    string  `json:"requestId"`
}

// HandleTurn handles POST /api/honeypot.
func (h *Handler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	arrival := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxPayload))
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if err.Error() == "http: request body too large" {
			respondError(w, http.StatusRequestEntityTooLarge, "payload too large", requestID)
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read request body", requestID)
		return
	}

	var req schema.TurnRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err), requestID)
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	atomic.AddUint64(&h.turnsTotal, 1)

	res, err := h.engine.HandleTurn(r.Context(), &req, arrival)
	if err != nil {
		// Degrade rather than abort: the scammer-facing channel still
		// receives a plausible reply.
		atomic.AddUint64(&h.turnsFailed, 1)
		respondJSON(w, http.StatusOK, degradedTurnResponse(req.SessionID, requestID))
		return
	}

	if res.ScamDetected {
		atomic.AddUint64(&h.scamsDetected, 1)
	}

	respondJSON(w, http.StatusOK, TurnResponse{
		Status:       "success",
		SessionID:    res.SessionID,
		Reply:        res.Reply,
		ScamDetected: res.ScamDetected,
		Confidence:   res.Confidence,
		ScamType:     res.ScamType,
		State:        string(res.State),
		Reported:     res.Reported,
		RequestID:    requestID,
	})
}

// degradedTurnResponse is returned when turn processing failed outright.
// The scammer-facing channel still sees a plausible in-persona reply.
func degradedTurnResponse(sessionID, requestID string) TurnResponse {
	return TurnResponse{
		Status:    "error",
		SessionID: sessionID,
		Reply:     "Hello? Sorry beta, line is very bad. Can you say again?",
		RequestID: requestID,
	}
}

// HandleSessions handles GET /api/sessions. Returns summaries of the most
// recently active sessions, newest first.
func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	sessions := h.store.List(limit)
	respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// HandleSession handles GET /api/session/{id}.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	id := r.PathValue("id")

	stats, err := h.store.Stats(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found", requestID)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load session", requestID)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// HandleHistory handles GET /api/session/{id}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	id := r.PathValue("id")

	sess, err := h.store.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found", requestID)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load session", requestID)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"sessionId":    sess.ID,
		"messageCount": sess.MessageCount,
		"messages":     sess.Messages,
	})
}

// HandleForceReport handles POST /api/session/{id}/report. Operator
// override that finalizes a session regardless of stop conditions.
func (h *Handler) HandleForceReport(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	id := r.PathValue("id")

	sess, err := h.engine.ForceReport(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found", requestID)
			return
		}
		respondError(w, http.StatusBadGateway, err.Error(), requestID)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"sessionId":  sess.ID,
		"state":      string(sess.State()),
		"reported":   sess.Reported,
		"reportedAt": sess.ReportedAt,
		"requestId":  requestID,
	})
}

// StatsResponse is the aggregate view for operators and the dashboard.
type StatsResponse struct {
	ActiveSessions     int     `json:"activeSessions"`
	TurnsTotal         uint64  `json:"turnsTotal"`
	TurnsFailed        uint64  `json:"turnsFailed"`
	ScamTurns          uint64  `json:"scamTurns"`
	ReportsDelivered   uint64  `json:"reportsDelivered"`
	TrackedIdentifiers int     `json:"trackedIdentifiers"`
	UptimeSeconds      int     `json:"uptimeSeconds"`
	TurnsPerMinute     float64 `json:"turnsPerMinute"`
}

// HandleStats handles GET /api/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	turns := atomic.LoadUint64(&h.turnsTotal)

	var perMinute float64
	if uptime.Minutes() > 0 {
		perMinute = float64(turns) / uptime.Minutes()
	}

	tracked := 0
	if h.registry != nil {
		if n, err := h.registry.Count(r.Context()); err == nil {
			tracked = n
		}
	}

	respondJSON(w, http.StatusOK, StatsResponse{
		ActiveSessions:     h.store.Count(),
		TurnsTotal:         turns,
		TurnsFailed:        atomic.LoadUint64(&h.turnsFailed),
		ScamTurns:          atomic.LoadUint64(&h.scamsDetected),
		ReportsDelivered:   atomic.LoadUint64(&h.reportsTotal),
		TrackedIdentifiers: tracked,
		UptimeSeconds:      int(uptime.Seconds()),
		TurnsPerMinute:     perMinute,
	})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"active_sessions": h.store.Count(),
		"uptime_seconds":  int(time.Since(h.startTime).Seconds()),
	})
}

// Metrics handles GET /metrics (Prometheus text format).
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP honeytrap_turns_total Total conversation turns processed\n")
	fmt.Fprintf(w, "# TYPE honeytrap_turns_total counter\n")
	fmt.Fprintf(w, "honeytrap_turns_total %d\n\n", atomic.LoadUint64(&h.turnsTotal))

	fmt.Fprintf(w, "# HELP honeytrap_turns_failed_total Turns that degraded to a fallback response\n")
	fmt.Fprintf(w, "# TYPE honeytrap_turns_failed_total counter\n")
	fmt.Fprintf(w, "honeytrap_turns_failed_total %d\n\n", atomic.LoadUint64(&h.turnsFailed))

	fmt.Fprintf(w, "# HELP honeytrap_scam_turns_total Turns on sessions flagged as scams\n")
	fmt.Fprintf(w, "# TYPE honeytrap_scam_turns_total counter\n")
	fmt.Fprintf(w, "honeytrap_scam_turns_total %d\n\n", atomic.LoadUint64(&h.scamsDetected))

	fmt.Fprintf(w, "# HELP honeytrap_reports_total Sessions reported to intake\n")
	fmt.Fprintf(w, "# TYPE honeytrap_reports_total counter\n")
	fmt.Fprintf(w, "honeytrap_reports_total %d\n\n", atomic.LoadUint64(&h.reportsTotal))

	fmt.Fprintf(w, "# HELP honeytrap_active_sessions Current sessions in memory\n")
	fmt.Fprintf(w, "# TYPE honeytrap_active_sessions gauge\n")
	fmt.Fprintf(w, "honeytrap_active_sessions %d\n\n", h.store.Count())

	fmt.Fprintf(w, "# HELP honeytrap_uptime_seconds Uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE honeytrap_uptime_seconds gauge\n")
	fmt.Fprintf(w, "honeytrap_uptime_seconds %d\n", int(time.Since(h.startTime).Seconds()))
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, requestID string) {
	respondJSON(w, status, map[string]any{
		"success":    false,
		"error":      message,
		"request_id": requestID,
	})
}
