package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"repopal/pkg/agent"
	"repopal/pkg/github"
	"repopal/pkg/llm"
	"repopal/pkg/log"
	"repopal/pkg/store"
)

// Bound on the rolling history handed to the pipeline
const historyWindow = 10

// MessageHandler runs the forward pipeline for one user message
type MessageHandler interface {
	HandleMessage(ctx context.Context, repo *github.Repo, utterance string, history []agent.Turn) (*agent.Result, error)
}

// UndoHandler reverts a previously applied commit
type UndoHandler interface {
	Undo(ctx context.Context, repo *github.Repo, commitSHA string) ([]string, error)
}

// Recorder is the persistence sink for conversation turns and commit
// records
type Recorder interface {
	AppendTurn(repo, role, content string, changedPaths []string) error
	RecentTurns(repo string, n int) ([]store.TurnRecord, error)
	SaveCommit(repo, sha, message string, changedPaths []string) error
	GetCommit(repo, sha string) (*store.CommitRecord, error)
	MarkUndone(repo, sha string) error
}

// Server exposes the pipeline and undo entry points over HTTP
type Server struct {
	logger   *log.Logger
	agent    MessageHandler
	undoer   UndoHandler
	recorder Recorder
	port     string
	srv      *http.Server
	mu       sync.RWMutex
}

// New creates a new server instance
func New(logger *log.Logger, a MessageHandler, u UndoHandler, r Recorder, port string) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if a == nil {
		return nil, fmt.Errorf("agent is required")
	}
	if u == nil {
		return nil, fmt.Errorf("undoer is required")
	}
	if r == nil {
		return nil, fmt.Errorf("recorder is required")
	}

	return &Server{
		logger:   logger,
		agent:    a,
		undoer:   u,
		recorder: r,
		port:     port,
	}, nil
}

// Start starts the server and blocks until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()

	mux := http.NewServeMux()
	mux.HandleFunc("/message", s.handleMessage)
	mux.HandleFunc("/undo", s.handleUndo)
	mux.HandleFunc("/health", s.handleHealth)

	listener, err := s.findAvailablePort(s.port)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to find available port: %w", err)
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port

	s.srv = &http.Server{
		Handler: mux,
	}
	s.mu.Unlock()

	go func() {
		if err := s.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server error: %v", err)
		}
	}()

	s.logger.Success("Server is running on port %d", actualPort)
	if s.logger.IsDebug() {
		s.logger.Info("Message endpoint: http://localhost:%d/message", actualPort)
		s.logger.Info("Undo endpoint: http://localhost:%d/undo", actualPort)
	}

	<-ctx.Done()
	return s.Stop()
}

// findAvailablePort tries the configured port first, then any free port
func (s *Server) findAvailablePort(startPort string) (net.Listener, error) {
	listener, err := net.Listen("tcp", ":"+startPort)
	if err == nil {
		return listener, nil
	}

	if s.logger.IsDebug() {
		s.logger.Info("Port %s is in use, searching for available port...", startPort)
	}

	listener, err = net.Listen("tcp", ":0")
	if err != nil {
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	return listener, nil
}

// Stop stops the server
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.srv.Shutdown(ctx); err != nil {
			s.logger.Error("Failed to stop server: %v", err)
			return fmt.Errorf("failed to stop server: %w", err)
		}
		s.srv = nil
		s.logger.Success("Server stopped")
	}

	return nil
}

type messageRequest struct {
	RepoURL string `json:"repo_url"`
	Message string `json:"message"`
}

type messageResponse struct {
	Response      string   `json:"response"`
	ChangedPaths  []string `json:"changed_paths,omitempty"`
	CommitSHA     string   `json:"commit_sha,omitempty"`
	CommitMessage string   `json:"commit_message,omitempty"`
}

type undoRequest struct {
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
}

type undoResponse struct {
	RevertedPaths []string `json:"reverted_paths"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps the error taxonomy onto HTTP statuses. Credential
// problems are the caller's to fix; everything else that reaches here is a
// backend fault.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, llm.ErrCredential), errors.Is(err, github.ErrCredential):
		return http.StatusUnauthorized
	case errors.Is(err, github.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, agent.ErrNoParent), errors.Is(err, store.ErrNotUndoable):
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

// handleMessage is the pipeline entry point
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	repo, err := github.ParseRepoURL(req.RepoURL)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	repoKey := repo.Owner + "/" + repo.Name

	s.logger.Chat("Message for %s: %s", repoKey, req.Message)

	history := s.loadHistory(repoKey)

	result, err := s.agent.HandleMessage(r.Context(), repo, req.Message, history)
	if err != nil {
		s.logger.Error("Pipeline failed: %v", err)
		writeJSON(w, errorStatus(err), errorResponse{Error: err.Error()})
		return
	}

	// The store is a sink: failures there are logged, never surfaced
	if err := s.recorder.AppendTurn(repoKey, "user", req.Message, nil); err != nil {
		s.logger.Warning("Failed to record user turn: %v", err)
	}
	if err := s.recorder.AppendTurn(repoKey, "assistant", result.Response, result.ChangedPaths); err != nil {
		s.logger.Warning("Failed to record assistant turn: %v", err)
	}
	if result.CommitSHA != "" {
		if err := s.recorder.SaveCommit(repoKey, result.CommitSHA, result.CommitMessage, result.ChangedPaths); err != nil {
			s.logger.Warning("Failed to record commit %s: %v", result.CommitSHA, err)
		}
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Response:      result.Response,
		ChangedPaths:  result.ChangedPaths,
		CommitSHA:     result.CommitSHA,
		CommitMessage: result.CommitMessage,
	})
}

// handleUndo is the undo entry point
func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req undoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.CommitSHA == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "commit_sha is required"})
		return
	}

	repo, err := github.ParseRepoURL(req.RepoURL)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	repoKey := repo.Owner + "/" + repo.Name

	rec, err := s.recorder.GetCommit(repoKey, req.CommitSHA)
	if err != nil {
		writeJSON(w, errorStatus(err), errorResponse{Error: err.Error()})
		return
	}
	if !rec.Undoable {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "commit was already undone"})
		return
	}

	s.logger.Undo("Undoing %s on %s", req.CommitSHA, repoKey)

	reverted, err := s.undoer.Undo(r.Context(), repo, req.CommitSHA)
	if err != nil {
		s.logger.Error("Undo failed: %v", err)
		writeJSON(w, errorStatus(err), errorResponse{Error: err.Error()})
		return
	}

	if err := s.recorder.MarkUndone(repoKey, req.CommitSHA); err != nil {
		s.logger.Warning("Failed to mark %s undone: %v", req.CommitSHA, err)
	}
	note := fmt.Sprintf("Reverted commit %.7s (%d file(s))", req.CommitSHA, len(reverted))
	if err := s.recorder.AppendTurn(repoKey, "assistant", note, reverted); err != nil {
		s.logger.Warning("Failed to record undo turn: %v", err)
	}

	writeJSON(w, http.StatusOK, undoResponse{RevertedPaths: reverted})
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

// loadHistory converts stored turns into pipeline history; a store failure
// just means an empty context window
func (s *Server) loadHistory(repoKey string) []agent.Turn {
	records, err := s.recorder.RecentTurns(repoKey, historyWindow)
	if err != nil {
		s.logger.Warning("Failed to load history for %s: %v", repoKey, err)
		return nil
	}

	turns := make([]agent.Turn, 0, len(records))
	for _, rec := range records {
		turns = append(turns, agent.Turn{
			Role:         rec.Role,
			Content:      rec.Content,
			ChangedPaths: rec.ChangedPaths,
		})
	}
	return turns
}
