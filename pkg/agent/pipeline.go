package agent

import (
	"context"
	"fmt"
	"strings"

	"repopal/pkg/github"
	"repopal/pkg/llm"
	"repopal/pkg/log"
)

const chatSystemPrompt = `You are a friendly assistant for a website project hosted on GitHub.
Answer questions about the project conversationally. You can make code
changes when asked, but this message was not an edit request, so just reply
helpfully. Keep answers short.`

// Bound on the rolling history passed to the generator
const maxHistoryTurns = 10

// Agent runs the message pipeline: classify, select, load, generate,
// validate, apply
type Agent struct {
	logger *log.Logger
	llm    Completer
	gh     Gateway
}

// New creates an agent
func New(logger *log.Logger, completer Completer, gh Gateway) (*Agent, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if gh == nil {
		return nil, fmt.Errorf("gateway is required")
	}

	return &Agent{
		logger: logger,
		llm:    completer,
		gh:     gh,
	}, nil
}

// HandleMessage runs one pipeline pass for a user utterance. Conversational
// messages get a direct reply and never touch a write endpoint. Edit
// requests flow through selection, generation, the safety gate, and the
// commit applier.
func (a *Agent) HandleMessage(ctx context.Context, repo *github.Repo, utterance string, history []Turn) (*Result, error) {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	a.logger.Step("Classifying message...")
	edit, err := a.classify(ctx, utterance)
	if err != nil {
		return nil, fmt.Errorf("failed to classify message: %w", err)
	}

	if !edit {
		a.logger.Chat("Conversational message, replying directly")
		reply, err := a.converse(ctx, utterance, history)
		if err != nil {
			return nil, fmt.Errorf("failed to generate reply: %w", err)
		}
		return &Result{Response: reply}, nil
	}

	a.logger.Step("Listing repository tree...")
	entries, err := a.gh.ListTree(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to list repository: %w", err)
	}

	var blobPaths []string
	for _, e := range entries {
		if e.Kind == "blob" {
			blobPaths = append(blobPaths, e.Path)
		}
	}

	a.logger.Step("Selecting relevant files...")
	selected := a.selectFiles(ctx, utterance, blobPaths)
	a.logger.Info("Selected %d of %d files", len(selected), len(blobPaths))

	a.logger.Step("Loading file context...")
	files := a.loadContext(ctx, repo, selected)

	archetype := detectArchetype(blobPaths)
	a.logger.Debug("Detected archetype: %s", archetype)

	a.logger.Step("Generating changes...")
	cs, outcome, err := a.generateChanges(ctx, blobPaths, archetype, files, history, utterance)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case genMalformed:
		return &Result{
			Response: "Sorry, I couldn't put together a valid set of changes for that. Could you rephrase the request?",
		}, nil
	case genEmpty:
		response := cs.Explanation
		if response == "" {
			response = "I didn't find anything to change for that request. Could you be more specific?"
		}
		return &Result{Response: response}, nil
	}

	if err := validateChangeSet(cs); err != nil {
		a.logger.Warning("Change set rejected: %v", err)
		return &Result{
			Response: fmt.Sprintf("I can't apply that: %v. No files were changed.", err),
		}, nil
	}

	a.logger.Step("Applying %d file edit(s)...", len(cs.Changes))
	applied := a.applyChanges(ctx, repo, cs)

	if len(applied.ChangedPaths) == 0 {
		var sb strings.Builder
		sb.WriteString("I couldn't commit any of the changes:\n")
		for _, fe := range applied.Errors {
			fmt.Fprintf(&sb, "- %s: %s\n", fe.Path, fe.Err)
		}
		sb.WriteString("\nPlease check that the GitHub token has write access to this repository.")
		return &Result{Response: sb.String()}, nil
	}

	var sb strings.Builder
	sb.WriteString(cs.Explanation)
	fmt.Fprintf(&sb, "\n\nCommitted %d file(s): %s", len(applied.ChangedPaths), strings.Join(applied.ChangedPaths, ", "))
	if len(applied.Errors) > 0 {
		sb.WriteString("\n\n⚠️ Some files could not be committed:\n")
		for _, fe := range applied.Errors {
			fmt.Fprintf(&sb, "- %s: %s\n", fe.Path, fe.Err)
		}
	}

	a.logger.Success("Applied %d file(s), %d failure(s)", len(applied.ChangedPaths), len(applied.Errors))

	return &Result{
		Response:      sb.String(),
		ChangedPaths:  applied.ChangedPaths,
		CommitSHA:     applied.CommitSHA,
		CommitMessage: cs.CommitMessage,
	}, nil
}

// converse produces a direct conversational reply with the rolling history
func (a *Agent) converse(ctx context.Context, utterance string, history []Turn) (string, error) {
	messages := []llm.Message{
		{Role: "system", Content: chatSystemPrompt},
	}
	for _, t := range history {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: utterance})

	return a.llm.Complete(ctx, llm.Request{
		Temperature: 0.7,
		Messages:    messages,
	})
}
