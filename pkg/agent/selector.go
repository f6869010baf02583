package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"repopal/pkg/llm"
)

const (
	maxSelectedPaths = 15
	maxFallbackPaths = 12
)

const selectSystemPrompt = `You pick which files in a repository are relevant to a requested change.

Given the file list and the request, respond with ONLY a JSON array of file
paths, at most %d entries. Include files that import, reference, or style the
obvious targets, not just the targets themselves. No explanation, no markdown.`

// Extensions the deterministic fallback considers editable
var fallbackExtensions = map[string]bool{
	".html":   true,
	".css":    true,
	".scss":   true,
	".js":     true,
	".jsx":    true,
	".ts":     true,
	".tsx":    true,
	".vue":    true,
	".svelte": true,
	".md":     true,
	".json":   true,
}

// selectFiles chooses a bounded set of paths relevant to the utterance.
// Semantic selection is attempted first; malformed or empty output from the
// backend degrades to the extension-based fallback so the pipeline never
// stalls on bad model output. Every returned path exists in the tree.
func (a *Agent) selectFiles(ctx context.Context, utterance string, paths []string) []string {
	prompt := fmt.Sprintf("Files:\n%s\n\nRequest: %s", strings.Join(paths, "\n"), utterance)

	out, err := a.llm.Complete(ctx, llm.Request{
		Temperature: 0,
		Messages: []llm.Message{
			{Role: "system", Content: fmt.Sprintf(selectSystemPrompt, maxSelectedPaths)},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		a.logger.Warning("File selection failed, using fallback: %v", err)
		return fallbackSelect(paths)
	}

	var selected []string
	if err := json.Unmarshal([]byte(stripFences(out)), &selected); err != nil {
		a.logger.Warning("File selection returned malformed JSON, using fallback")
		return fallbackSelect(paths)
	}

	if len(selected) > maxSelectedPaths {
		selected = selected[:maxSelectedPaths]
	}

	// Drop anything the model invented
	known := make(map[string]bool, len(paths))
	for _, p := range paths {
		known[p] = true
	}
	var filtered []string
	for _, p := range selected {
		if known[p] {
			filtered = append(filtered, p)
		}
	}

	if len(filtered) == 0 {
		a.logger.Warning("File selection matched no real paths, using fallback")
		return fallbackSelect(paths)
	}

	return filtered
}

// fallbackSelect picks up to maxFallbackPaths paths by extension, in tree
// order
func fallbackSelect(paths []string) []string {
	var selected []string
	for _, p := range paths {
		if fallbackExtensions[filepath.Ext(p)] {
			selected = append(selected, p)
			if len(selected) == maxFallbackPaths {
				break
			}
		}
	}
	return selected
}
