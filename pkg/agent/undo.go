package agent

import (
	"context"
	"errors"
	"fmt"

	"repopal/pkg/github"
	"repopal/pkg/log"
)

// ErrNoParent means the commit is a root commit: there is no prior state to
// restore, so the undo is refused before any write happens.
var ErrNoParent = errors.New("commit has no parent to revert to")

// Undoer restores every file a commit touched to its pre-commit state. It
// shares nothing with the forward pipeline except the gateway.
type Undoer struct {
	logger *log.Logger
	gh     Gateway
}

// NewUndoer creates an undo engine
func NewUndoer(logger *log.Logger, gh Gateway) *Undoer {
	return &Undoer{logger: logger, gh: gh}
}

// Undo reverts a commit file by file. Files the commit added are deleted;
// everything else is overwritten with the content at the parent revision.
// Each write re-fetches the file's current revision marker, not the marker
// from the original commit. Per-file failures are logged and skipped; the
// returned slice holds the paths that were actually reverted.
func (u *Undoer) Undo(ctx context.Context, repo *github.Repo, commitSHA string) ([]string, error) {
	detail, err := u.gh.GetCommit(ctx, repo, commitSHA)
	if err != nil {
		return nil, err
	}

	if detail.Parent == "" {
		return nil, fmt.Errorf("cannot undo %.7s: %w", commitSHA, ErrNoParent)
	}

	u.logger.Undo("Reverting %d file(s) from %.7s", len(detail.Files), commitSHA)

	var reverted []string
	for _, f := range detail.Files {
		message := fmt.Sprintf("Undo %.7s: restore %s", commitSHA, f.Path)

		if f.Status == "added" {
			if _, err := u.gh.DeleteFile(ctx, repo, f.Path, message); err != nil {
				u.logger.Error("Failed to delete %s: %v", f.Path, err)
				continue
			}
		} else {
			prev, err := u.gh.GetFileAt(ctx, repo, f.Path, detail.Parent)
			if err != nil {
				u.logger.Error("Failed to fetch %s at parent %.7s: %v", f.Path, detail.Parent, err)
				continue
			}
			if _, err := u.gh.PutFile(ctx, repo, f.Path, prev.Content, message); err != nil {
				u.logger.Error("Failed to restore %s: %v", f.Path, err)
				continue
			}
		}

		u.logger.Undo("Reverted %s", f.Path)
		reverted = append(reverted, f.Path)
	}

	return reverted, nil
}
