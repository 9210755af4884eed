// Package httpapi serves the dashboard's JSON API and the websocket
// subscription endpoint. It is a thin read-mostly layer: every mutation goes
// through the store or the outbox, never around the pipeline.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gfranca/leadflow/internal/status"
	"github.com/gfranca/leadflow/internal/store"
)

// DropCounter exposes the ingestion drop counters.
type DropCounter interface {
	Drops() map[string]uint64
}

// Subscriber handles websocket subscription upgrades.
type Subscriber interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Server handles dashboard HTTP requests.
type Server struct {
	db      *store.DB
	session *status.Session
	drops   DropCounter
	hub     Subscriber
	logger  *zap.Logger
}

// NewServer creates the API server.
func NewServer(db *store.DB, session *status.Session, drops DropCounter, hub Subscriber, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{db: db, session: session, drops: drops, hub: hub, logger: logger}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/leads", s.handleListLeads)
	mux.HandleFunc("GET /api/leads/{id}", s.handleGetLead)
	mux.HandleFunc("GET /api/leads/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /api/leads/{id}/reply", s.handleReply)
	mux.HandleFunc("POST /api/leads/{id}/status", s.handleSetStatus)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.ServeWS)
	}
	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

type statusResponse struct {
	State             string            `json:"state"`
	ConnectedAt       *time.Time        `json:"connectedAt,omitempty"`
	ReconnectAttempts int               `json:"reconnectAttempts"`
	Leads             int64             `json:"leads"`
	Messages          int64             `json:"messages"`
	Drops             map[string]uint64 `json:"drops"`
	FullTextSearch    bool              `json:"fullTextSearch"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	leads, err := s.db.LeadCount()
	if err != nil {
		s.fail(w, "count leads", err)
		return
	}
	messages, err := s.db.MessageCount()
	if err != nil {
		s.fail(w, "count messages", err)
		return
	}

	resp := statusResponse{
		State:             string(s.session.Current()),
		ReconnectAttempts: s.session.ReconnectAttempts(),
		Leads:             leads,
		Messages:          messages,
		FullTextSearch:    s.db.SearchAvailable(),
	}
	if at := s.session.ConnectedAt(); !at.IsZero() {
		resp.ConnectedAt = &at
	}
	if s.drops != nil {
		resp.Drops = s.drops.Drops()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	leads, err := s.db.ListLeads(limit, offset)
	if err != nil {
		s.fail(w, "list leads", err)
		return
	}
	if leads == nil {
		leads = []store.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := s.db.GetLead(r.PathValue("id"))
	if err != nil {
		s.fail(w, "get lead", err)
		return
	}
	if lead == nil {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	lead, err := s.db.GetLead(id)
	if err != nil {
		s.fail(w, "get lead", err)
		return
	}
	if lead == nil {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}

	msgs, err := s.db.ListMessages(id, queryInt(r, "limit", 200))
	if err != nil {
		s.fail(w, "list messages", err)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type replyRequest struct {
	Body string `json:"body"`
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Body == "" {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}

	lead, err := s.db.GetLead(id)
	if err != nil {
		s.fail(w, "get lead", err)
		return
	}
	if lead == nil {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}

	clientMsgID := uuid.NewString()
	if err := s.db.QueueOutbox(clientMsgID, id, req.Body); err != nil {
		s.fail(w, "queue reply", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"clientMsgId": clientMsgID})
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	switch req.Status {
	case store.StatusPending, store.StatusReplied, store.StatusCompleted:
	default:
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	lead, err := s.db.GetLead(id)
	if err != nil {
		s.fail(w, "get lead", err)
		return
	}
	if lead == nil {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}

	if err := s.db.SetLeadStatus(id, req.Status); err != nil {
		s.fail(w, "set status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	results, err := s.db.SearchMessages(q, r.URL.Query().Get("lead"), queryInt(r, "limit", 50))
	if err != nil {
		s.fail(w, "search", err)
		return
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	s.logger.Error("api error", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, op+" failed")
}
