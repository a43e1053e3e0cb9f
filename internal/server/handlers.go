package server

import (
	"encoding/json"
	"net/http"

	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// QueryRequest is the body of POST /api/v1/query.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse is the reply to a query: the selected chunks in fused order.
type QueryResponse struct {
	Results []models.RetrievedChunk `json:"results"`
	Count   int                     `json:"count"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ready := s.current()
	if ready == nil {
		s.respondError(w, http.StatusServiceUnavailable, "engine not initialized")
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query))
	results, err := ready.Retriever.Retrieve(r.Context(), req.Query)
	if err != nil {
		if kind, ok := models.KindOf(err); ok && kind == models.KindNoRelevantContent {
			s.respondJSON(w, http.StatusOK, QueryResponse{Results: []models.RetrievedChunk{}})
			return
		}
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, QueryResponse{Results: results, Count: len(results)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.orch.Status()
	resp := map[string]interface{}{
		"phase":   status.Phase,
		"percent": status.Percent,
	}
	if status.Error != "" {
		resp["error"] = status.Error
	}
	if ready := s.current(); ready != nil {
		resp["corpus"] = map[string]interface{}{
			"build_hash": ready.Record.BuildHash,
			"chunks":     len(ready.Record.Chunks),
			"from_cache": ready.FromCache,
			"model":      ready.Record.Manifest.Model.Name,
			"dimensions": ready.Record.Manifest.Model.Dimensions,
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
