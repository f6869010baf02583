package agent

import (
	"context"

	"repopal/pkg/github"
)

// applyOutcome is the result of attempting every edit in a change set
type applyOutcome struct {
	ChangedPaths []string
	Errors       []FileError
	CommitSHA    string // commit of the last successful write
}

// applyChanges commits each file edit in order. Edits run sequentially so
// commit order stays deterministic. One file's failure never aborts the
// rest; failures are collected and reported alongside the successes.
func (a *Agent) applyChanges(ctx context.Context, repo *github.Repo, cs *ChangeSet) *applyOutcome {
	out := &applyOutcome{}

	for _, ch := range cs.Changes {
		a.logger.File("Writing %s (%s)", ch.Path, ch.Action)

		sha, err := a.gh.PutFile(ctx, repo, ch.Path, ch.Content, cs.CommitMessage)
		if err != nil {
			a.logger.Error("Failed to commit %s: %v", ch.Path, err)
			out.Errors = append(out.Errors, FileError{Path: ch.Path, Err: err.Error()})
			continue
		}

		a.logger.Commit("Committed %s (%.7s)", ch.Path, sha)
		out.ChangedPaths = append(out.ChangedPaths, ch.Path)
		out.CommitSHA = sha
	}

	return out
}
