package ui

import (
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"gefen/model"
)

func (a AppView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		widthChanged := msg.Width != a.width
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		if widthChanged {
			// Rendered markdown depends on width
			a.rendered = make(map[uint64]string)
			a.pending = make(map[uint64]bool)
			cmds = append(cmds, a.renderFinishedReplies()...)
		}
		a.layout()
		a.updateViewportContent(true)
		return a, tea.Batch(cmds...)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		if a.snapshot.Awaiting() {
			a.updateViewportContent(true)
		}
		return a, cmd

	case snapshotMsg:
		cmds = append(cmds, a.applySnapshot(msg.Snapshot)...)
		cmds = append(cmds, waitForSnapshot(a.feed))
		return a, tea.Batch(cmds...)

	case feedClosedMsg:
		a.logger.Debug().Msg("snapshot feed closed")
		return a, tea.Quit

	case markdownRenderedMsg:
		// A render for an older width leaves the newer pending render alone
		if msg.Width != a.width {
			return a, nil
		}
		delete(a.pending, msg.MessageID)
		a.rendered[msg.MessageID] = msg.Rendered
		a.updateViewportContent(false)
		return a, nil

	case clipboardMsg:
		if msg.Err != nil {
			a.logger.Warn().Err(msg.Err).Msg("failed to copy reply")
			a.statusNote = "copy failed"
		} else {
			a.statusNote = "copied"
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	// Cursor blink and other component messages
	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	return a, cmd
}

func (a AppView) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "alt+q":
		a.logger.Debug().Msg("quit requested")
		a.session.Close()
		return a, tea.Quit

	case "alt+h":
		a.showHelp = !a.showHelp
		return a, nil

	case "esc":
		if a.showHelp {
			a.showHelp = false
		}
		return a, nil
	}

	if a.showHelp {
		return a, nil
	}

	switch msg.String() {
	case "alt+y":
		last, ok := a.snapshot.LastReply()
		if !ok {
			return a, nil
		}
		return a, yankCmd(last.Content)

	case "pgdown":
		a.viewport.PageDown()
		return a, nil

	case "pgup":
		a.viewport.PageUp()
		return a, nil

	case "alt+j", "alt+down":
		a.viewport.HalfPageDown()
		return a, nil

	case "alt+k", "alt+up":
		a.viewport.HalfPageUp()
		return a, nil
	}

	// Input is disabled while a reply is in progress
	if a.snapshot.Typing || a.snapshot.Phase == model.PhaseClosed {
		return a, nil
	}

	switch msg.String() {
	case "enter":
		return a.submit()

	case "up", "down":
		if list := a.visiblePrompts(); len(list) > 0 {
			a.selectedPrompt = stepSelection(a.selectedPrompt, len(list), msg.String() == "down")
			return a, nil
		}
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	if list := a.visiblePrompts(); a.selectedPrompt >= len(list) {
		a.selectedPrompt = len(list) - 1
	}
	a.layout()
	return a, cmd
}

func (a AppView) submit() (tea.Model, tea.Cmd) {
	text := a.textarea.Value()
	if list := a.visiblePrompts(); a.selectedPrompt >= 0 && a.selectedPrompt < len(list) {
		text = list[a.selectedPrompt]
	}
	if !a.session.Submit(text) {
		return a, nil
	}
	a.logger.Debug().Int("length", len(text)).Msg("message sent")
	a.textarea.Reset()
	a.selectedPrompt = -1
	a.statusNote = ""
	a.layout()
	return a, nil
}

// stepSelection moves a selection of n items one position; -1 means none.
func stepSelection(current, n int, down bool) int {
	if down {
		if current+1 >= n {
			return n - 1
		}
		return current + 1
	}
	if current <= 0 {
		return -1
	}
	return current - 1
}

// applySnapshot stores snap and schedules markdown renders for replies that
// finished since the previous one.
func (a *AppView) applySnapshot(snap model.Snapshot) []tea.Cmd {
	if snap.Version < a.snapshot.Version && snap.SessionID == a.snapshot.SessionID {
		return nil
	}
	wasTyping := a.snapshot.Typing
	a.snapshot = snap

	var cmds []tea.Cmd
	switch {
	case snap.Typing || snap.Phase == model.PhaseClosed:
		a.textarea.Blur()
	case wasTyping:
		cmds = append(cmds, a.textarea.Focus())
	}

	cmds = append(cmds, a.renderFinishedReplies()...)
	a.layout()
	a.updateViewportContent(true)
	return cmds
}

func (a *AppView) renderFinishedReplies() []tea.Cmd {
	if a.width == 0 {
		return nil
	}
	revealing, isRevealing := a.snapshot.Revealing()

	var cmds []tea.Cmd
	for _, m := range a.snapshot.Messages {
		if m.Role != model.RoleAssistant || m.Error || m.Content == "" {
			continue
		}
		if isRevealing && m.ID == revealing.ID {
			continue
		}
		if _, done := a.rendered[m.ID]; done || a.pending[m.ID] {
			continue
		}
		a.pending[m.ID] = true
		cmds = append(cmds, renderMarkdownAsync(m.ID, m.Content, a.width))
	}
	return cmds
}

func yankCmd(content string) tea.Cmd {
	return func() tea.Msg {
		return clipboardMsg{Err: clipboard.WriteAll(content)}
	}
}
