package ui

import (
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"
)

// maxPromptRows caps how many seed prompts are listed under the input.
const maxPromptRows = 4

// filterPrompts returns the prompts matching query, best match first. An
// empty query keeps the original order.
func filterPrompts(query string, prompts []string) []string {
	if query == "" {
		return prompts
	}
	matches := fuzzy.Find(query, prompts)
	filtered := make([]string, len(matches))
	for i, match := range matches {
		filtered[i] = prompts[match.Index]
	}
	return filtered
}

// truncatePrompt shortens prompt to fit in width terminal cells.
func truncatePrompt(prompt string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(prompt) <= width {
		return prompt
	}
	return runewidth.Truncate(prompt, width, "...")
}
