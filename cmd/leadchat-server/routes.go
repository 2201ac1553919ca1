package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leadchat/internal/db"
	"leadchat/internal/domain"
	"leadchat/internal/extract"
	"leadchat/internal/metrics"
	"leadchat/internal/notify"
	"leadchat/internal/session"
)

type leadStore interface {
	ListLeads(ctx context.Context, limit int) ([]db.StoredLead, error)
	GetLead(ctx context.Context, sessionID string) (db.StoredLead, error)
	Transcript(ctx context.Context, sessionID string) ([]domain.Turn, error)
	SaveFormLead(ctx context.Context, n domain.LeadNotification) (string, error)
	SaveStrategyCall(ctx context.Context, req domain.StrategyCallRequest) error
}

type strategyMailer interface {
	SendStrategyCall(ctx context.Context, req domain.StrategyCallRequest) error
}

type strategyPublisher interface {
	PublishStrategyCall(ctx context.Context, req domain.StrategyCallRequest) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type server struct {
	sessions   *session.Manager
	db         pinger
	leads      leadStore
	relay      notify.Sink
	mailer     strategyMailer
	calls      strategyPublisher
	corsOrigin string
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	now        func() time.Time
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.withCORS)
	r.Use(withMetrics)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/", indexHandler)

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Get("/{id}", s.getSession)
		r.Post("/{id}/messages", s.postMessage)
		r.Post("/{id}/typing", s.postTyping)
		r.Get("/{id}/ws", s.sessionWS)
	})

	r.Route("/v1/leads", func(r chi.Router) {
		r.Get("/", s.listLeads)
		r.Get("/{id}", s.getLead)
		r.Get("/{id}/transcript", s.leadTranscript)
	})

	r.Post("/api/send-chat-data", s.sendChatData)
	r.Post("/api/send-email", s.sendStrategyCall)
	return r
}

func (s *server) healthz(w http.ResponseWriter, req *http.Request) {
	body := map[string]any{"ok": true, "sessions": s.sessions.Len()}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.logger.Warn("db ping failed", "error", err)
			body["ok"], body["db"] = false, "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body["db"] = "ok"
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *server) createSession(w http.ResponseWriter, req *http.Request) {
	var in domain.CreateSessionRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	th, ok := domain.ParseTheme(in.Theme)
	if !ok && strings.TrimSpace(in.Theme) != "" {
		s.logger.Warn("unknown theme, using default", "theme", in.Theme)
	}
	c := s.sessions.Create(th)
	writeJSON(w, http.StatusCreated, c.Snapshot())
}

func (s *server) getSession(w http.ResponseWriter, req *http.Request) {
	c, ok := s.lookup(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *server) postMessage(w http.ResponseWriter, req *http.Request) {
	c, ok := s.lookup(w, req)
	if !ok {
		return
	}
	var in domain.SendMessageRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	snap, err := c.HandleMessage(req.Context(), in.Text)
	if err != nil {
		writeJSON(w, sessionErrorStatus(err), map[string]any{
			"error":    err.Error(),
			"message":  c.Notice(err),
			"snapshot": snap,
		})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *server) postTyping(w http.ResponseWriter, req *http.Request) {
	c, ok := s.lookup(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": c.Touch()})
}

func (s *server) lookup(w http.ResponseWriter, req *http.Request) (*session.Controller, bool) {
	c, err := s.sessions.Get(chi.URLParam(req, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
		return nil, false
	}
	return c, true
}

func sessionErrorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrAgentBusy), errors.Is(err, session.ErrSessionComplete):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) listLeads(w http.ResponseWriter, req *http.Request) {
	if !s.requireStore(w) {
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	items, err := s.leads.ListLeads(req.Context(), limit)
	if err != nil {
		s.logger.Error("list leads failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "list leads failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": items})
}

func (s *server) getLead(w http.ResponseWriter, req *http.Request) {
	if !s.requireStore(w) {
		return
	}
	lead, err := s.leads.GetLead(req.Context(), chi.URLParam(req, "id"))
	if errors.Is(err, db.ErrLeadNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("get lead failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "get lead failed"})
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *server) leadTranscript(w http.ResponseWriter, req *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id := chi.URLParam(req, "id")
	turns, err := s.leads.Transcript(req.Context(), id)
	if err != nil {
		s.logger.Error("load transcript failed", "session_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "load transcript failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "transcript": turns})
}

func (s *server) requireStore(w http.ResponseWriter) bool {
	if s.leads == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "lead storage is not configured"})
		return false
	}
	return true
}

// sendChatData relays a lead the site collected on its own form.
func (s *server) sendChatData(w http.ResponseWriter, req *http.Request) {
	var in domain.ChatDataRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	rec := domain.LeadRecord{
		Name:  strings.TrimSpace(in.Nama),
		Email: strings.TrimSpace(in.Email),
		Phone: extract.NormalizePhone(in.Telepon),
		Need:  strings.TrimSpace(in.Kebutuhan),
	}
	if !rec.Complete() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Missing required fields"})
		return
	}
	th, _ := domain.ParseTheme(in.Mode)
	n := domain.NewLeadNotification("", th, rec, "", s.now().UTC())

	if s.leads != nil {
		id, err := s.leads.SaveFormLead(req.Context(), n)
		if err != nil {
			s.logger.Error("save form lead failed", "error", err)
		} else {
			n.SessionID = id
		}
	}
	if n.SessionID == "" {
		n.SessionID = uuid.NewString()
	}

	if err := s.relay.Notify(req.Context(), n); err != nil {
		s.logger.Error("relay lead failed", "session_id", n.SessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to send email", "details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Emails sent successfully", "id": n.SessionID})
}

func (s *server) sendStrategyCall(w http.ResponseWriter, req *http.Request) {
	var in domain.StrategyCallRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(in.PhoneNumber) == "" || strings.TrimSpace(in.SelectedTime) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Missing required fields"})
		return
	}
	if s.mailer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "mail is not configured"})
		return
	}
	in.ID = uuid.NewString()
	in.SubmittedAt = s.now().UTC()

	if s.leads != nil {
		if err := s.leads.SaveStrategyCall(req.Context(), in); err != nil {
			s.logger.Error("save strategy call failed", "id", in.ID, "error", err)
		}
	}
	if s.calls != nil {
		if err := s.calls.PublishStrategyCall(req.Context(), in); err != nil {
			s.logger.Warn("publish strategy call failed", "id", in.ID, "error", err)
		}
	}
	if err := s.mailer.SendStrategyCall(req.Context(), in); err != nil {
		s.logger.Error("send strategy call mail failed", "id", in.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to send email", "details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Email sent successfully", "id": in.ID})
}

func (s *server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RequestCount.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
