package agent

import (
	"context"
	"strings"

	"repopal/pkg/llm"
)

const classifySystemPrompt = `You classify a user message sent to a coding assistant for a website project.

Respond with exactly one word:
- "edit" if the user is asking for a change to the project's code or content
- "chat" if the user is asking a question, making conversation, or anything else

Examples:
"make the header blue" -> edit
"add a contact page" -> edit
"what does this project do?" -> chat
"thanks, looks great!" -> chat
"can you fix the typo on the about page" -> edit
"how hard would a dark mode be?" -> chat`

// classify decides whether an utterance is an edit request. Anything other
// than the literal edit token is treated as conversation, so ambiguous model
// output can never authorize a write.
func (a *Agent) classify(ctx context.Context, utterance string) (bool, error) {
	out, err := a.llm.Complete(ctx, llm.Request{
		Temperature: 0,
		MaxTokens:   5,
		Messages: []llm.Message{
			{Role: "system", Content: classifySystemPrompt},
			{Role: "user", Content: utterance},
		},
	})
	if err != nil {
		return false, err
	}

	return strings.ToLower(strings.TrimSpace(out)) == "edit", nil
}
