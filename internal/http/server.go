package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nasirperwez/rail-chatbot-backend/internal/config"
	"github.com/nasirperwez/rail-chatbot-backend/internal/llm"
	"github.com/nasirperwez/rail-chatbot-backend/internal/logging"
	"github.com/nasirperwez/rail-chatbot-backend/internal/mcp"
	"github.com/nasirperwez/rail-chatbot-backend/internal/orchestrator"
)

// Orchestrator is the chat-processing surface the server depends on.
// *orchestrator.Orchestrator satisfies it.
type Orchestrator interface {
	Process(ctx context.Context, userMessage string, history []llm.Message) <-chan orchestrator.Event
	Tools(ctx context.Context) ([]mcp.Tool, error)
}

// Server represents the HTTP API server
type Server struct {
	config *config.Config
	orch   Orchestrator
	router chi.Router
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *config.Config, orch Orchestrator) *Server {
	s := &Server{
		config: cfg,
		orch:   orch,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	// CORS configuration - allow all origins for flexibility
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false, // Must be false when AllowedOrigins is "*"
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/tools", s.handleTools)
	})

	s.router = r
}

// Run starts the HTTP server and shuts it down gracefully when ctx ends.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	logging.Info("Starting HTTP server on %s", addr)

	server := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		logging.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	return server.ListenAndServe()
}

// --- Request/Response types ---

// ChatRequest represents a chat message request with prior history.
type ChatRequest struct {
	Message string        `json:"message"`
	History []llm.Message `json:"history"`
}

// ToolSummary is one entry of the diagnostic tool listing.
type ToolSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolsResponse is the diagnostic tool listing.
type ToolsResponse struct {
	Count int           `json:"count"`
	Tools []ToolSummary `json:"tools"`
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "rail-chatbot-backend",
	})
}

// handleChat processes a chat message and streams orchestrator events to
// the client as Server-Sent Events, one data frame per event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "Message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "Streaming is not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	for event := range s.orch.Process(r.Context(), req.Message, req.History) {
		payload, err := json.Marshal(event)
		if err != nil {
			logging.Error("Failed to encode event: %v", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			// Client disconnected mid-stream; the run is cancelled via
			// the request context.
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	tools, err := s.orch.Tools(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list tools: "+err.Error())
		return
	}

	resp := ToolsResponse{
		Count: len(tools),
		Tools: make([]ToolSummary, len(tools)),
	}
	for i, tool := range tools {
		resp.Tools[i] = ToolSummary{Name: tool.Name, Description: tool.Description}
	}

	s.jsonResponse(w, http.StatusOK, resp)
}

// --- Helper methods ---

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	logging.Error("HTTP error: %d - %s", status, message)
	s.jsonResponse(w, status, map[string]string{"error": message})
}
