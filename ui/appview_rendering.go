package ui

import (
	"fmt"
	"regexp"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	tea "github.com/charmbracelet/bubbletea"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"

	"gefen/model"
)

const (
	emptyTranscript = "No messages yet. Ask me anything!"
	revealCursor    = "▋"
)

var (
	inlineCodeRegex = regexp.MustCompile(`(?s)\x1b\[44;3m(.*?)\x1b\[0m`)
	mdLinkRegex     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
	urlRegex        = regexp.MustCompile(`(https?://[^\s\x1b]+)`)
)

func (a *AppView) updateViewportContent(gotoBottom bool) {
	a.viewport.SetContent(renderTranscript(a.snapshot, a.rendered, a.spinner.View()))
	if gotoBottom {
		a.viewport.GotoBottom()
	}
}

// renderTranscript draws every message of snap. Finished replies use their
// rendered markdown when available, the reply being revealed carries a
// cursor, and a typing indicator follows while the reply is awaited.
func renderTranscript(snap model.Snapshot, rendered map[uint64]string, indicator string) string {
	if len(snap.Messages) == 0 && !snap.Awaiting() {
		return DimStyle.Render(emptyTranscript)
	}

	revealing, isRevealing := snap.Revealing()

	var content strings.Builder
	for _, msg := range snap.Messages {
		timestamp := DimStyle.Render(msg.CreatedAt.Format("[15:04]"))

		if msg.Role == model.RoleUser {
			content.WriteString(formatUserMessage(timestamp, UserStyle.Render("You"), msg.Content))
			continue
		}

		body := msg.Content
		switch {
		case msg.Error:
			body = ErrorStyle.Render(msg.Content)
		case isRevealing && msg.ID == revealing.ID:
			body = msg.Content + revealCursor
		default:
			if r, ok := rendered[msg.ID]; ok {
				body = strings.TrimRight(r, "\n")
			}
		}
		content.WriteString(fmt.Sprintf("%s %s\n%s\n\n", timestamp, AssistantStyle.Render("Assistant"), body))
	}

	if snap.Awaiting() {
		content.WriteString(fmt.Sprintf("%s\n%s\n", AssistantStyle.Render("Assistant"), indicator))
	}
	return content.String()
}

func formatUserMessage(timestamp, role, content string) string {
	bar := UserStyle.Render("┃")

	var result strings.Builder
	result.WriteString(fmt.Sprintf("%s %s %s\n", bar, timestamp, role))
	for _, line := range strings.Split(content, "\n") {
		result.WriteString(fmt.Sprintf("%s %s\n", bar, line))
	}
	result.WriteString("\n")
	return result.String()
}

// renderMarkdown renders content for a terminal of the given width.
// Autolink stays off so URLs reach the terminal as plain text.
func renderMarkdown(content string, width int) string {
	if width < 20 {
		width = 20
	}
	content = mdLinkRegex.ReplaceAllString(content, "$2")

	ext := markdown.Extensions() &^ parser.Autolink
	p := parser.NewWithExtensions(ext)
	doc := p.Parse([]byte(content))
	out := string(gomarkdown.Render(doc, markdown.NewRenderer(width-4, 0)))

	// Inline code comes back blue on italic; show it as red text instead.
	out = inlineCodeRegex.ReplaceAllString(out, "\x1b[31m$1\x1b[0m")
	return urlRegex.ReplaceAllString(out, "\x1b[31m$1\x1b[0m")
}

func renderMarkdownAsync(id uint64, content string, width int) tea.Cmd {
	return func() tea.Msg {
		return markdownRenderedMsg{
			MessageID: id,
			Width:     width,
			Rendered:  renderMarkdown(content, width),
		}
	}
}
