package agent

import (
	"context"
	"sync"

	"repopal/pkg/github"
)

// Files at or above this size are left out of the generation context
const maxContextFileChars = 20000

// loadContext fetches the selected files concurrently. A file that fails to
// load or is too large is dropped, not an error: missing context is
// acceptable, a stalled pipeline is not. Selection order is preserved.
func (a *Agent) loadContext(ctx context.Context, repo *github.Repo, paths []string) []github.File {
	results := make([]*github.File, len(paths))

	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			file, err := a.gh.GetFile(ctx, repo, path)
			if err != nil {
				a.logger.Debug("Skipping %s: %v", path, err)
				return
			}
			if len(file.Content) >= maxContextFileChars {
				a.logger.Debug("Skipping %s: %d chars exceeds context cap", path, len(file.Content))
				return
			}
			results[i] = file
		}(i, path)
	}
	wg.Wait()

	var files []github.File
	for _, f := range results {
		if f != nil {
			files = append(files, *f)
		}
	}
	return files
}
