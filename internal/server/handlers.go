package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/medrights/internal/advisor"
	"github.com/ppiankov/medrights/internal/knowledge"
	"github.com/ppiankov/medrights/internal/model"
)

// ExampleQueries are offered to new users
var ExampleQueries = []string{
	"Can I get my medical reports?",
	"Doctor was rude to me",
	"I need a second opinion",
	"Hospital is charging too much",
	"Can I choose my own pharmacy?",
	"Doctor didn't take my consent",
	"My medical information was shared without permission",
	"What are my rights in emergency care?",
	"Can I get an itemized bill?",
	"What if I want to leave against medical advice?",
}

const sessionHeader = "X-Session-ID"

type queryRequest struct {
	Query     string `json:"query"`
	ShowProof bool   `json:"show_proof"`
	SessionID string `json:"session_id"`
}

type queryResponse struct {
	ID                string           `json:"id"`
	Query             string           `json:"query"`
	Response          string           `json:"response"`
	FormattedResponse string           `json:"formatted_response"`
	ProofTrace        model.ProofTrace `json:"proof_trace"`
	Cached            bool             `json:"cached"`
	DataVersion       string           `json:"data_version"`
	Status            string           `json:"status"`
	SessionID         string           `json:"session_id"`
	MessageCount      int              `json:"message_count"`
}

type clauseResponse struct {
	Clause               model.Clause `json:"clause"`
	Explanation          string       `json:"explanation"`
	FormattedExplanation string       `json:"formatted_explanation"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.advisor.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"service":      serviceName,
		"version":      snap.Knowledge.Metadata().Version,
		"data_version": snap.Version,
		"system":       serviceSystem,
		"timestamp":    time.Now().UTC(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.advisor.GetStats())
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxQueryBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxQueryBytes)
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Query too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	session := sessionID(r, req.SessionID)
	if session == "" {
		session = uuid.NewString()
	}

	start := time.Now()
	resp, err := s.advisor.ProcessQuery(r.Context(), advisor.Request{
		Query:     req.Query,
		ShowProof: req.ShowProof,
		Client:    clientKey(r),
		Session:   session,
	})
	if err != nil {
		// Only a cancelled request gets here; the client is gone
		s.logger.Debug("query abandoned", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Request cancelled")
		return
	}
	s.metrics.observeQuery(resp.Trace.TemplateUsed, resp.Cached, time.Since(start).Seconds())

	formatted := s.renderHTML(resp.Answer)
	now := time.Now().UTC()
	trace := resp.Trace
	count := s.history.Append(session,
		Message{Type: messageUser, Content: resp.Trace.Query, Timestamp: now},
		Message{Type: messageBot, Content: resp.Answer, FormattedContent: formatted, Timestamp: now, ProofTrace: &trace},
	)

	w.Header().Set(sessionHeader, session)
	writeJSON(w, http.StatusOK, queryResponse{
		ID:                resp.ID,
		Query:             resp.Trace.Query,
		Response:          resp.Answer,
		FormattedResponse: formatted,
		ProofTrace:        resp.Trace,
		Cached:            resp.Cached,
		DataVersion:       resp.Version,
		Status:            "success",
		SessionID:         session,
		MessageCount:      count,
	})
}

func (s *Server) handleExamples(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"examples": ExampleQueries,
		"count":    len(ExampleQueries),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		writeError(w, http.StatusBadRequest, "No search term provided")
		return
	}
	writeJSON(w, http.StatusOK, s.advisor.SearchKnowledge(term))
}

func (s *Server) handleClause(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	clause, err := s.advisor.Clause(id)
	if errors.Is(err, knowledge.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Clause '"+id+"' not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	explanation := s.advisor.ExplainClause(id)
	writeJSON(w, http.StatusOK, clauseResponse{
		Clause:               clause,
		Explanation:          explanation,
		FormattedExplanation: s.renderHTML(explanation),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	session := sessionID(r, "")
	if session == "" {
		writeError(w, http.StatusBadRequest, "No session provided")
		return
	}

	history := s.history.Get(session)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session,
		"history":    history,
		"count":      len(history),
	})
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	session := sessionID(r, "")
	if session == "" {
		writeError(w, http.StatusBadRequest, "No session provided")
		return
	}

	s.history.Clear(session)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"message":    "Chat history cleared",
		"session_id": session,
	})
}

// sessionID picks the session from the body, the header or the query string,
// in that order
func sessionID(r *http.Request, fromBody string) string {
	if s := strings.TrimSpace(fromBody); s != "" {
		return s
	}
	if s := strings.TrimSpace(r.Header.Get(sessionHeader)); s != "" {
		return s
	}
	return strings.TrimSpace(r.URL.Query().Get("session_id"))
}

// clientKey identifies the caller for rate limiting and the query log
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "status": "error"})
}
