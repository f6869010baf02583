package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"repopal/pkg/agent"
	"repopal/pkg/github"
	"repopal/pkg/llm"
	"repopal/pkg/log"
	"repopal/pkg/store"
)

// mockAgent implements MessageHandler
type mockAgent struct {
	result *agent.Result
	err    error
	calls  int
}

func (m *mockAgent) HandleMessage(_ context.Context, _ *github.Repo, _ string, _ []agent.Turn) (*agent.Result, error) {
	m.calls++
	return m.result, m.err
}

// mockUndoer implements UndoHandler
type mockUndoer struct {
	reverted []string
	err      error
	calls    int
}

func (m *mockUndoer) Undo(_ context.Context, _ *github.Repo, _ string) ([]string, error) {
	m.calls++
	return m.reverted, m.err
}

// mockRecorder implements Recorder
type mockRecorder struct {
	turns       []string
	commits     []string
	markedShas  []string
	commitRec   *store.CommitRecord
	getErr      error
	recentTurns []store.TurnRecord
}

func (m *mockRecorder) AppendTurn(_, role, content string, _ []string) error {
	m.turns = append(m.turns, role+": "+content)
	return nil
}

func (m *mockRecorder) RecentTurns(string, int) ([]store.TurnRecord, error) {
	return m.recentTurns, nil
}

func (m *mockRecorder) SaveCommit(_, sha, _ string, _ []string) error {
	m.commits = append(m.commits, sha)
	return nil
}

func (m *mockRecorder) GetCommit(string, string) (*store.CommitRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.commitRec, nil
}

func (m *mockRecorder) MarkUndone(_, sha string) error {
	m.markedShas = append(m.markedShas, sha)
	return nil
}

func setupTestServer(t *testing.T, a *mockAgent, u *mockUndoer, r *mockRecorder) *Server {
	t.Helper()
	s, err := New(log.New(false), a, u, r, "0")
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestMessageEndpointCommit(t *testing.T) {
	mockA := &mockAgent{result: &agent.Result{
		Response:      "Done! Made the header blue.",
		ChangedPaths:  []string{"style.css"},
		CommitSHA:     "abc123",
		CommitMessage: "style: blue header",
	}}
	rec := &mockRecorder{}
	s := setupTestServer(t, mockA, &mockUndoer{}, rec)

	w := postJSON(t, s.handleMessage, "/message", map[string]string{
		"repo_url": "https://github.com/owner/repo",
		"message":  "make the header blue",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp messageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.CommitSHA != "abc123" {
		t.Errorf("CommitSHA = %q, want abc123", resp.CommitSHA)
	}
	if len(resp.ChangedPaths) != 1 {
		t.Errorf("ChangedPaths = %v", resp.ChangedPaths)
	}

	if len(rec.turns) != 2 {
		t.Errorf("recorded turns = %d, want user + assistant", len(rec.turns))
	}
	if len(rec.commits) != 1 || rec.commits[0] != "abc123" {
		t.Errorf("recorded commits = %v, want [abc123]", rec.commits)
	}
}

func TestMessageEndpointConversation(t *testing.T) {
	mockA := &mockAgent{result: &agent.Result{Response: "It's a portfolio site."}}
	rec := &mockRecorder{}
	s := setupTestServer(t, mockA, &mockUndoer{}, rec)

	w := postJSON(t, s.handleMessage, "/message", map[string]string{
		"repo_url": "owner/repo",
		"message":  "what is this?",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(rec.commits) != 0 {
		t.Errorf("conversation recorded a commit: %v", rec.commits)
	}
}

func TestMessageEndpointValidation(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		payload    map[string]string
		wantStatus int
	}{
		{
			name:       "missing message",
			method:     "POST",
			payload:    map[string]string{"repo_url": "owner/repo"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad repo url",
			method:     "POST",
			payload:    map[string]string{"repo_url": "nonsense", "message": "hi"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "wrong method",
			method:     "GET",
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockA := &mockAgent{result: &agent.Result{Response: "ok"}}
			s := setupTestServer(t, mockA, &mockUndoer{}, &mockRecorder{})

			var body []byte
			if tt.payload != nil {
				body, _ = json.Marshal(tt.payload)
			}
			req := httptest.NewRequest(tt.method, "/message", bytes.NewReader(body))
			w := httptest.NewRecorder()
			s.handleMessage(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if mockA.calls != 0 {
				t.Errorf("invalid request reached the pipeline")
			}
		})
	}
}

func TestMessageEndpointCredentialError(t *testing.T) {
	mockA := &mockAgent{err: fmt.Errorf("failed to classify message: %w", llm.ErrCredential)}
	rec := &mockRecorder{}
	s := setupTestServer(t, mockA, &mockUndoer{}, rec)

	w := postJSON(t, s.handleMessage, "/message", map[string]string{
		"repo_url": "owner/repo",
		"message":  "hello",
	})

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if len(rec.turns) != 0 {
		t.Errorf("failed pipeline recorded turns: %v", rec.turns)
	}
}

func TestUndoEndpoint(t *testing.T) {
	mockU := &mockUndoer{reverted: []string{"index.html"}}
	rec := &mockRecorder{commitRec: &store.CommitRecord{
		SHA:      "abc123",
		Repo:     "owner/repo",
		Undoable: true,
	}}
	s := setupTestServer(t, &mockAgent{}, mockU, rec)

	w := postJSON(t, s.handleUndo, "/undo", map[string]string{
		"repo_url":   "owner/repo",
		"commit_sha": "abc123",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp undoResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.RevertedPaths) != 1 || resp.RevertedPaths[0] != "index.html" {
		t.Errorf("RevertedPaths = %v", resp.RevertedPaths)
	}

	if len(rec.markedShas) != 1 || rec.markedShas[0] != "abc123" {
		t.Errorf("marked undone = %v, want [abc123]", rec.markedShas)
	}
}

func TestUndoEndpointAlreadyUndone(t *testing.T) {
	mockU := &mockUndoer{}
	rec := &mockRecorder{commitRec: &store.CommitRecord{
		SHA:      "abc123",
		Undoable: false,
	}}
	s := setupTestServer(t, &mockAgent{}, mockU, rec)

	w := postJSON(t, s.handleUndo, "/undo", map[string]string{
		"repo_url":   "owner/repo",
		"commit_sha": "abc123",
	})

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	if mockU.calls != 0 {
		t.Error("already-undone commit reached the undo engine")
	}
}

func TestUndoEndpointUnknownCommit(t *testing.T) {
	rec := &mockRecorder{getErr: store.ErrNotFound}
	s := setupTestServer(t, &mockAgent{}, &mockUndoer{}, rec)

	w := postJSON(t, s.handleUndo, "/undo", map[string]string{
		"repo_url":   "owner/repo",
		"commit_sha": "nope",
	})

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUndoEndpointNoParent(t *testing.T) {
	mockU := &mockUndoer{err: fmt.Errorf("cannot undo abc123: %w", agent.ErrNoParent)}
	rec := &mockRecorder{commitRec: &store.CommitRecord{SHA: "abc123", Undoable: true}}
	s := setupTestServer(t, &mockAgent{}, mockU, rec)

	w := postJSON(t, s.handleUndo, "/undo", map[string]string{
		"repo_url":   "owner/repo",
		"commit_sha": "abc123",
	})

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	if len(rec.markedShas) != 0 {
		t.Errorf("failed undo was marked undone: %v", rec.markedShas)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := setupTestServer(t, &mockAgent{}, &mockUndoer{}, &mockRecorder{})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
