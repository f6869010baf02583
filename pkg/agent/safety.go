package agent

import (
	"fmt"
	"strings"
)

// Paths whose removal or emptying would break the project's ability to build
var criticalPaths = map[string]bool{
	"package.json":      true,
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"go.mod":            true,
	"go.sum":            true,
	"Cargo.toml":        true,
	"requirements.txt":  true,
	"Gemfile":           true,
	"tsconfig.json":     true,
	"vite.config.js":    true,
	"vite.config.ts":    true,
	"webpack.config.js": true,
	"next.config.js":    true,
	"index.html":        true,
}

// Anything shorter on a critical path counts as effectively emptied
const minCriticalContentLen = 10

// validateChangeSet rejects any change set that would blank or delete a
// critical file. One bad edit rejects the whole set; nothing is applied.
func validateChangeSet(cs *ChangeSet) error {
	for _, ch := range cs.Changes {
		if !criticalPaths[ch.Path] {
			continue
		}
		if len(strings.TrimSpace(ch.Content)) < minCriticalContentLen {
			return fmt.Errorf("change set would empty or remove critical file %s", ch.Path)
		}
	}
	return nil
}
