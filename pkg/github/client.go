package github

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"repopal/pkg/log"
)

// Gateway error taxonomy
var (
	ErrCredential = errors.New("github rejected credentials")
	ErrNotFound   = errors.New("not found")
)

// Repo identifies a repository for one pipeline run. The default branch is
// resolved lazily and cached on the value, so a run never re-resolves it.
type Repo struct {
	Owner string
	Name  string

	defaultBranch string
}

// TreeEntry is a single entry of a recursive tree listing
type TreeEntry struct {
	Path string
	Kind string // "blob" or "tree"
}

// File is a loaded file with its current revision marker. The SHA is the
// optimistic-concurrency token GitHub checks on the next write to the path.
type File struct {
	Path    string
	Content string
	SHA     string
}

// CommitFile is a single file touched by a commit
type CommitFile struct {
	Path   string
	Status string // added, modified, removed, renamed, ...
}

// CommitDetail is the metadata needed to undo a commit
type CommitDetail struct {
	SHA     string
	Message string
	Parent  string // empty for a root commit
	Files   []CommitFile
}

// Client handles GitHub content operations
type Client struct {
	client  *github.Client
	logger  *log.Logger
	limiter *rate.Limiter
}

// New creates a new GitHub client
func New(logger *log.Logger) *Client {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		logger.Error("GITHUB_TOKEN environment variable not set")
		return nil
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	return &Client{
		client: github.NewClient(tc),
		logger: logger,
		// Core API allows 5000 requests/hour; stay well inside it
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

// ParseRepoURL parses a GitHub URL into a repository reference
func ParseRepoURL(repoURL string) (*Repo, error) {
	repoURL = strings.TrimSuffix(repoURL, ".git")

	// SSH URLs (git@github.com:owner/repo)
	if strings.HasPrefix(repoURL, "git@github.com:") {
		parts := strings.Split(strings.TrimPrefix(repoURL, "git@github.com:"), "/")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid SSH repository URL format")
		}
		return &Repo{Owner: parts[0], Name: parts[1]}, nil
	}

	// Bare owner/repo
	if !strings.Contains(repoURL, "://") {
		parts := strings.Split(repoURL, "/")
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return &Repo{Owner: parts[0], Name: parts[1]}, nil
		}
	}

	// HTTPS URLs
	u, err := url.Parse(repoURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid repository URL format")
	}

	return &Repo{Owner: parts[0], Name: parts[1]}, nil
}

// wrapErr maps GitHub API errors onto the gateway taxonomy
func wrapErr(op string, err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case 401, 403:
			return fmt.Errorf("%s: %w: %s", op, ErrCredential, ghErr.Message)
		case 404:
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// DefaultBranch resolves the repository's default branch, caching it on the
// repository reference
func (c *Client) DefaultBranch(ctx context.Context, repo *Repo) (string, error) {
	if repo.defaultBranch != "" {
		return repo.defaultBranch, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	repository, _, err := c.client.Repositories.Get(ctx, repo.Owner, repo.Name)
	if err != nil {
		return "", wrapErr("get repository", err)
	}

	repo.defaultBranch = repository.GetDefaultBranch()
	return repo.defaultBranch, nil
}

// ListTree returns the recursive tree of the default branch
func (c *Client) ListTree(ctx context.Context, repo *Repo) ([]TreeEntry, error) {
	branch, err := c.DefaultBranch(ctx, repo)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	tree, _, err := c.client.Git.GetTree(ctx, repo.Owner, repo.Name, branch, true)
	if err != nil {
		return nil, wrapErr("list tree", err)
	}

	entries := make([]TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		entries = append(entries, TreeEntry{
			Path: e.GetPath(),
			Kind: e.GetType(),
		})
	}
	return entries, nil
}

// GetFile fetches a file's decoded content and revision marker from the
// default branch
func (c *Client) GetFile(ctx context.Context, repo *Repo, path string) (*File, error) {
	branch, err := c.DefaultBranch(ctx, repo)
	if err != nil {
		return nil, err
	}
	return c.GetFileAt(ctx, repo, path, branch)
}

// GetFileAt fetches a file's decoded content and revision marker at a ref
func (c *Client) GetFileAt(ctx context.Context, repo *Repo, path, ref string) (*File, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	content, _, _, err := c.client.Repositories.GetContents(
		ctx,
		repo.Owner,
		repo.Name,
		path,
		&github.RepositoryContentGetOptions{Ref: ref},
	)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get %s", path), err)
	}
	if content == nil {
		return nil, fmt.Errorf("%s is not a file", path)
	}

	decoded, err := content.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return &File{
		Path:    path,
		Content: decoded,
		SHA:     content.GetSHA(),
	}, nil
}

// statFile returns the path's current blob SHA, or "" if the path does not
// exist on the branch
func (c *Client) statFile(ctx context.Context, repo *Repo, path, branch string) (string, error) {
	file, err := c.GetFileAt(ctx, repo, path, branch)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return file.SHA, nil
}

// PutFile writes the full content of a file and returns the resulting commit
// SHA. The current revision marker is re-fetched immediately before the
// write, so callers can never commit against a stale marker; a path with no
// marker is created instead of updated.
func (c *Client) PutFile(ctx context.Context, repo *Repo, path, content, message string) (string, error) {
	branch, err := c.DefaultBranch(ctx, repo)
	if err != nil {
		return "", err
	}

	sha, err := c.statFile(ctx, repo, path, branch)
	if err != nil {
		return "", err
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: []byte(content),
		Branch:  github.String(branch),
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var resp *github.RepositoryContentResponse
	if sha == "" {
		resp, _, err = c.client.Repositories.CreateFile(ctx, repo.Owner, repo.Name, path, opts)
	} else {
		opts.SHA = github.String(sha)
		resp, _, err = c.client.Repositories.UpdateFile(ctx, repo.Owner, repo.Name, path, opts)
	}
	if err != nil {
		return "", wrapErr(fmt.Sprintf("write %s", path), err)
	}

	return resp.Commit.GetSHA(), nil
}

// DeleteFile removes a file, re-fetching its revision marker first, and
// returns the resulting commit SHA
func (c *Client) DeleteFile(ctx context.Context, repo *Repo, path, message string) (string, error) {
	branch, err := c.DefaultBranch(ctx, repo)
	if err != nil {
		return "", err
	}

	sha, err := c.statFile(ctx, repo, path, branch)
	if err != nil {
		return "", err
	}
	if sha == "" {
		return "", fmt.Errorf("delete %s: %w", path, ErrNotFound)
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		SHA:     github.String(sha),
		Branch:  github.String(branch),
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, _, err := c.client.Repositories.DeleteFile(ctx, repo.Owner, repo.Name, path, opts)
	if err != nil {
		return "", wrapErr(fmt.Sprintf("delete %s", path), err)
	}

	return resp.Commit.GetSHA(), nil
}

// GetCommit fetches a commit's parent and per-file changes
func (c *Client) GetCommit(ctx context.Context, repo *Repo, sha string) (*CommitDetail, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	commit, _, err := c.client.Repositories.GetCommit(ctx, repo.Owner, repo.Name, sha, nil)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get commit %s", sha), err)
	}

	detail := &CommitDetail{
		SHA:     commit.GetSHA(),
		Message: commit.GetCommit().GetMessage(),
	}
	if len(commit.Parents) > 0 {
		detail.Parent = commit.Parents[0].GetSHA()
	}
	for _, f := range commit.Files {
		detail.Files = append(detail.Files, CommitFile{
			Path:   f.GetFilename(),
			Status: f.GetStatus(),
		})
	}

	return detail, nil
}
