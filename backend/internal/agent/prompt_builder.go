package agent

import (
	"fmt"
	"strings"

	"branchboard/backend/internal/state"
)

const systemPrompt = `You are an assistant inside a branching conversation board. Each node is one exchange; nodes branch from earlier nodes and inherit their conversation as context.

Use the context from parent nodes when it is relevant to the question, and focus on any text marked as highlighted. Answer the user's prompt directly.`

// buildNodePrompt assembles the user message for one node: a short node
// information block, the ancestor context, then the prompt itself
func buildNodePrompt(node state.Node, chainContext, prompt string) string {
	var parts []string

	var info strings.Builder
	if node.Title != "" {
		fmt.Fprintf(&info, "- Title: %s\n", node.Title)
	}
	if node.Role != "" {
		fmt.Fprintf(&info, "- Role: %s\n", node.Role)
	}
	if info.Len() > 0 {
		parts = append(parts, "Node Information:\n"+info.String(), "\n---\n\n")
	}

	if chainContext != "" {
		parts = append(parts, chainContext, "\n---\n\n")
	}

	parts = append(parts, prompt)
	return strings.Join(parts, "\n")
}

// buildHighlightPrompt asks the question with the highlighted passage quoted
// ahead of it
func buildHighlightPrompt(highlighted, question string) string {
	return fmt.Sprintf("Based on this highlighted text from the parent conversation:\n\n\"%s\"\n\n%s", highlighted, question)
}
