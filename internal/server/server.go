package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/chain"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/common/logger"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/schema"
)

// Server exposes the answering pipeline over HTTP. One endpoint per
// retrieval mode; request validation lives here, not in the core.
type Server struct {
	pipeline *chain.Pipeline
}

func New(pipeline *chain.Pipeline) *Server {
	return &Server{pipeline: pipeline}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/chat", s.answer(schema.ModeChat))
	r.Post("/index", s.answer(schema.ModeIndex))
	r.Post("/document", s.answer(schema.ModeDocument))
	r.Post("/web", s.answer(schema.ModeWeb))
	return r
}

type answerRequest struct {
	Question  string               `json:"question"`
	History   []schema.ChatMessage `json:"chat_history"`
	Documents []schema.Document    `json:"documents"`
}

func (s *Server) answer(mode schema.RetrievalMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			writeError(w, http.StatusBadRequest, "question is required")
			return
		}
		if mode == schema.ModeDocument && len(req.Documents) == 0 {
			writeError(w, http.StatusBadRequest, "documents are required")
			return
		}

		resp := s.pipeline.Answer(r.Context(), chain.Request{
			Question:  req.Question,
			History:   req.History,
			Mode:      mode,
			Documents: req.Documents,
		})
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("server: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
