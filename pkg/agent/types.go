package agent

import (
	"context"

	"repopal/pkg/github"
	"repopal/pkg/llm"
)

// Gateway is the content-API surface the agent needs. Write operations
// re-resolve the file's revision marker internally, so nothing above this
// interface can commit against a stale marker.
type Gateway interface {
	ListTree(ctx context.Context, repo *github.Repo) ([]github.TreeEntry, error)
	GetFile(ctx context.Context, repo *github.Repo, path string) (*github.File, error)
	GetFileAt(ctx context.Context, repo *github.Repo, path, ref string) (*github.File, error)
	PutFile(ctx context.Context, repo *github.Repo, path, content, message string) (string, error)
	DeleteFile(ctx context.Context, repo *github.Repo, path, message string) (string, error)
	GetCommit(ctx context.Context, repo *github.Repo, sha string) (*github.CommitDetail, error)
}

// Completer generates text behind the shared retry/fallback policy
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// FileEdit is one proposed file change. Content is always the complete new
// file body, never a diff.
type FileEdit struct {
	Path    string `json:"path"`
	Action  string `json:"action"` // "create" or "update"
	Content string `json:"content"`
}

// ChangeSet is the structured output of the change generator
type ChangeSet struct {
	Explanation   string     `json:"explanation"`
	Changes       []FileEdit `json:"changes"`
	CommitMessage string     `json:"commit_message"`
}

// Turn is one conversation turn used as rolling context
type Turn struct {
	Role         string // "user" or "assistant"
	Content      string
	ChangedPaths []string
}

// Result is the pipeline's answer to one user message
type Result struct {
	Response      string
	ChangedPaths  []string
	CommitSHA     string
	CommitMessage string
}

// FileError records a single file that failed to commit or revert
type FileError struct {
	Path string
	Err  string
}
