// Package web serves the built models over HTTP. Handlers are read-only:
// they render whatever snapshot the store currently holds, and the SSE
// endpoints notify clients when the watcher loop publishes a rebuild.
package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/trialviz/soa-analyzer/pkg/logging"
	"github.com/trialviz/soa-analyzer/pkg/pubsub"
	"github.com/trialviz/soa-analyzer/pkg/render"
	"github.com/trialviz/soa-analyzer/pkg/store"
)

// Server exposes the study models over HTTP and SSE.
type Server struct {
	router    *mux.Router
	store     *store.Store
	publisher pubsub.Publisher
}

// NewServer creates a web server over the given store.
func NewServer(st *store.Store) *Server {
	ssePublisher := pubsub.NewSSEPublisher()

	// New subscribers get the current state immediately, not the history.
	ssePublisher.ConfigureTopic(pubsub.TopicStudyStatus, pubsub.TopicConfig{
		BufferSize: 10,
		ReplayAll:  false,
	})
	ssePublisher.ConfigureTopic(pubsub.TopicGraphModel, pubsub.TopicConfig{
		BufferSize: 5,
		ReplayAll:  false,
	})

	s := &Server{
		router:    mux.NewRouter(),
		store:     st,
		publisher: ssePublisher,
	}
	s.setupRoutes()
	return s
}

// PublishStudyStatus publishes a study status event.
func (s *Server) PublishStudyStatus(state, message string, step, total int) error {
	status := pubsub.StudyStatus{
		State:   state,
		Message: message,
		Step:    step,
		Total:   total,
	}
	return s.publisher.Publish(pubsub.TopicStudyStatus, state, status)
}

// PublishGraphModel publishes a graph summary event. Clients fetch the full
// model from /api/graph when notified.
func (s *Server) PublishGraphModel(eventType string, complete bool) error {
	summary := pubsub.GraphSummary{Complete: complete}
	if snap := s.store.Snapshot(); snap != nil && snap.Graph != nil {
		summary.Nodes = len(snap.Graph.Nodes)
		summary.Edges = len(snap.Graph.Edges)
		summary.Valid = snap.Graph.Validation.Valid
	}
	return s.publisher.Publish(pubsub.TopicGraphModel, eventType, summary)
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/subscribe/study_status", s.handleSubscribe(pubsub.TopicStudyStatus)).Methods("GET")
	s.router.HandleFunc("/api/subscribe/graph_model", s.handleSubscribe(pubsub.TopicGraphModel)).Methods("GET")

	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/graph", s.handleGraph).Methods("GET")
	s.router.HandleFunc("/api/elements", s.handleElements).Methods("GET")
	s.router.HandleFunc("/api/table", s.handleTable).Methods("GET")
	s.router.HandleFunc("/api/grid", s.handleGrid).Methods("GET")
	s.router.HandleFunc("/api/flow", s.handleFlow).Methods("GET")
	s.router.HandleFunc("/api/sap", s.handleSAP).Methods("GET")
	s.router.HandleFunc("/api/issues", s.handleIssues).Methods("GET")
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

// handleSubscribe streams a topic's events as SSE until the client leaves.
func (s *Server) handleSubscribe(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		// Initial comment establishes the connection (Safari compatibility).
		fmt.Fprintf(w, ": connected\n\n")
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}

		sub, err := s.publisher.Subscribe(r.Context(), topic)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer sub.Close()

		for event := range sub.Events() {
			if err := pubsub.WriteSSE(w, event); err != nil {
				logging.DebugContext(r.Context(), "SSE client gone", "topic", topic, "error", err)
				return
			}
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
	}
}

// statusResponse summarizes the current snapshot for the UI header.
type statusResponse struct {
	Loaded     bool   `json:"loaded"`
	LoadedAt   string `json:"loadedAt,omitempty"`
	StudyName  string `json:"studyName,omitempty"`
	Nodes      int    `json:"nodes"`
	Edges      int    `json:"edges"`
	Rows       int    `json:"rows"`
	Columns    int    `json:"columns"`
	Valid      bool   `json:"valid"`
	ErrorCount int    `json:"errorCount"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	if snap == nil {
		writeJSON(w, statusResponse{})
		return
	}
	resp := statusResponse{
		Loaded:     true,
		LoadedAt:   snap.LoadedAt.Format("2006-01-02T15:04:05Z07:00"),
		Nodes:      len(snap.Graph.Nodes),
		Edges:      len(snap.Graph.Edges),
		Rows:       len(snap.Table.Rows),
		Columns:    len(snap.Table.Columns),
		Valid:      snap.Graph.Validation.Valid,
		ErrorCount: len(snap.Graph.Validation.Errors),
	}
	if snap.Design != nil {
		resp.StudyName = snap.Design.Name
	}
	writeJSON(w, resp)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	if snap == nil {
		notReady(w)
		return
	}
	writeJSON(w, snap.Graph)
}

func (s *Server) handleElements(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	if snap == nil {
		notReady(w)
		return
	}
	writeJSON(w, map[string]any{
		"elements":   render.GraphElements(snap.Graph),
		"validation": snap.Graph.Validation,
	})
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	if snap == nil {
		notReady(w)
		return
	}
	writeJSON(w, snap.Table)
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	if snap == nil {
		notReady(w)
		return
	}
	writeJSON(w, map[string]any{
		"columnDefs": render.GridColumnDefs(snap.Table),
		"rowData":    render.GridRows(snap.Table),
	})
}

func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	if snap == nil {
		notReady(w)
		return
	}
	writeJSON(w, snap.Flow)
}

func (s *Server) handleSAP(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	if snap == nil {
		notReady(w)
		return
	}
	writeJSON(w, map[string]any{"methods": snap.Methods})
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	if snap == nil {
		notReady(w)
		return
	}
	writeJSON(w, map[string]any{"issues": snap.Issues})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode response", "error", err)
	}
}

func notReady(w http.ResponseWriter) {
	http.Error(w, `{"error":"study not loaded yet"}`, http.StatusServiceUnavailable)
}
