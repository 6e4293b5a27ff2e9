// Package server exposes the AI suggestion proxy over HTTP. The
// handlers validate input, forward to the suggest client, and mirror
// upstream failures onto the response status.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/amirbrooks/questlog/internal/suggest"
)

// Server serves the /api endpoints.
type Server struct {
	client *suggest.Client
	port   int
}

func New(client *suggest.Client, port int) *Server {
	return &Server{client: client, port: port}
}

// Handler returns the route table. OPTIONS preflight is answered on
// both endpoints with permissive CORS headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/gemini-suggest", s.handleSuggest)
	mux.HandleFunc("/api/priority-suggest", s.handlePriority)
	return mux
}

// ListenAndServe blocks serving the handler on the configured port.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.port)
	log.Printf("server: listening on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error    string          `json:"error"`
	Details  string          `json:"details,omitempty"`
	Provider json.RawMessage `json:"provider,omitempty"`
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no title provided"})
		return
	}

	out, err := s.client.Suggest(r.Context(), req.Title)
	if err != nil {
		writeSuggestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// writeSuggestError maps the suggest error taxonomy onto HTTP statuses:
// missing key 500, empty upstream response 502, malformed JSON 500, and
// provider failures proxy the upstream status and body.
func writeSuggestError(w http.ResponseWriter, err error) {
	var pe *suggest.ProviderError
	switch {
	case errors.Is(err, suggest.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, suggest.ErrMissingAPIKey):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	case errors.As(err, &pe):
		body := pe.Body
		if !json.Valid(body) {
			body = nil
		}
		writeJSON(w, pe.Status, errorResponse{Error: "ProviderError", Provider: body})
	case errors.Is(err, suggest.ErrEmptyResponse):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "EmptyResponse"})
	case errors.Is(err, suggest.ErrMalformedResponse):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Generative AI response not JSON", Details: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Google Generative AI API call failed", Details: err.Error()})
	}
}

func (s *Server) handlePriority(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req struct {
		TaskText string `json:"taskText"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.TaskText == "" {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Task text is required"})
		return
	}

	priority, err := s.client.SuggestPriority(r.Context(), req.TaskText)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"priority": priority})
}
