package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"repopal/pkg/github"
	"repopal/pkg/llm"
)

const changeSystemPrompt = `You are a coding assistant that edits a %s hosted on GitHub.

You will receive the repository's file tree, the contents of relevant files,
recent conversation history, and a request. Respond with ONLY a JSON object,
no markdown, in this exact shape:

{
  "explanation": "plain-language summary of what you changed, for the user",
  "changes": [
    {"path": "relative/file/path", "action": "create" or "update", "content": "COMPLETE new file body"}
  ],
  "commit_message": "conventional one-line commit message"
}

Rules:
- "content" is always the ENTIRE file after your edit. Never output a diff,
  a patch, a fragment, or placeholders like "... rest unchanged".
- Only include files that actually change.
- If the request is unclear or nothing should change, return an empty
  "changes" array and use "explanation" to ask the user what they meant.`

// genOutcome tags the generator's parse result so ambiguity always maps to
// the least destructive branch
type genOutcome int

const (
	genParsed genOutcome = iota
	genMalformed
	genEmpty
)

// generateChanges produces a change set from the assembled context. A hard
// backend failure is returned as an error; unusable model output is returned
// as a tagged outcome, never an error.
func (a *Agent) generateChanges(ctx context.Context, tree []string, archetype string, files []github.File, history []Turn, utterance string) (*ChangeSet, genOutcome, error) {
	var sb strings.Builder
	sb.WriteString("Repository tree:\n")
	sb.WriteString(strings.Join(tree, "\n"))
	sb.WriteString("\n\nRelevant files:\n")
	for _, f := range files {
		fmt.Fprintf(&sb, "\n--- %s ---\n%s\n", f.Path, f.Content)
	}
	fmt.Fprintf(&sb, "\nRequest: %s", utterance)

	messages := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(changeSystemPrompt, archetype)},
	}
	for _, t := range history {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: sb.String()})

	out, err := a.llm.Complete(ctx, llm.Request{
		Temperature: 0.2,
		Messages:    messages,
	})
	if err != nil {
		return nil, genMalformed, fmt.Errorf("failed to generate changes: %w", err)
	}

	var cs ChangeSet
	if err := json.Unmarshal([]byte(stripFences(out)), &cs); err != nil {
		a.logger.Warning("Change generator returned unparsable output: %v", err)
		return nil, genMalformed, nil
	}

	if len(cs.Changes) == 0 {
		return &cs, genEmpty, nil
	}

	for i := range cs.Changes {
		if cs.Changes[i].Action == "" {
			cs.Changes[i].Action = "update"
		}
	}

	return &cs, genParsed, nil
}

// detectArchetype infers a coarse project kind from marker files. It only
// tailors the generation instructions; pipeline logic never branches on it.
func detectArchetype(paths []string) string {
	has := make(map[string]bool, len(paths))
	for _, p := range paths {
		has[p] = true
	}

	switch {
	case has["package.json"] && (has["vite.config.js"] || has["vite.config.ts"]):
		return "Vite-based web app"
	case has["package.json"] && (has["next.config.js"] || has["next.config.mjs"]):
		return "Next.js app"
	case has["package.json"]:
		return "Node.js web project"
	case has["go.mod"]:
		return "Go project"
	case has["index.html"]:
		return "static website"
	}
	return "source repository"
}

// stripFences removes a markdown code-fence wrapper, which models add even
// when told not to
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
