package ui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"gefen/model"
)

const inputHeight = 3

// Session is the part of the controller the view drives.
type Session interface {
	Submit(text string) bool
	Close()
}

type AppView struct {
	session Session
	feed    <-chan model.Snapshot
	logger  zerolog.Logger

	// Latest state received from the feed
	snapshot model.Snapshot

	// UI Components
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	// Rendered markdown per finished assistant message, for the current width
	rendered map[uint64]string
	pending  map[uint64]bool

	prompts        []string
	selectedPrompt int
	showHelp       bool
	statusNote     string

	// Window state
	width  int
	height int
	ready  bool
}

type Option func(*AppView)

// WithSeedPrompts sets the prompts offered while the transcript is empty.
func WithSeedPrompts(prompts []string) Option {
	return func(a *AppView) { a.prompts = append([]string(nil), prompts...) }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(a *AppView) { a.logger = logger.With().Str("component", "ui").Logger() }
}

// NewAppView creates the chat view. Snapshots are read from feed; input is
// handed to session.
func NewAppView(session Session, feed <-chan model.Snapshot, opts ...Option) AppView {
	ta := textarea.New()
	ta.Placeholder = "Ask me anything..."
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(inputHeight)
	ta.SetWidth(80)

	// Alt+Enter for newline, Enter is handled by the view to send
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))

	ta.SetPromptFunc(2, func(lineIdx int) string {
		if lineIdx == 0 {
			return "> "
		}
		return "| "
	})

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = DimStyle

	a := AppView{
		session:        session,
		feed:           feed,
		logger:         zerolog.Nop(),
		snapshot:       model.Snapshot{Phase: model.PhaseIdle},
		viewport:       viewport.New(0, 0),
		textarea:       ta,
		spinner:        sp,
		rendered:       make(map[uint64]string),
		pending:        make(map[uint64]bool),
		prompts:        append([]string(nil), model.SeedPrompts...),
		selectedPrompt: -1,
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

func (a AppView) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		a.spinner.Tick,
		waitForSnapshot(a.feed),
	)
}

// waitForSnapshot reads the next snapshot from the feed. It is re-armed after
// every snapshotMsg.
func waitForSnapshot(feed <-chan model.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-feed
		if !ok {
			return feedClosedMsg{}
		}
		return snapshotMsg{Snapshot: snap}
	}
}

func (a AppView) View() string {
	if !a.ready {
		return "Loading Gefen..."
	}
	if a.showHelp {
		return renderHelpModal(a.width, a.height)
	}

	title := TitleStyle.Render("Gefen")
	switch {
	case a.snapshot.Phase == model.PhaseClosed:
		title += DimStyle.Render(" | closed")
	case a.snapshot.Typing:
		title += DimStyle.Render(" | replying")
	}
	if a.statusNote != "" {
		title += DimStyle.Render(" | " + a.statusNote)
	}

	parts := []string{title, "", a.viewport.View()}
	if list := a.visiblePrompts(); len(list) > 0 {
		parts = append(parts, a.renderPromptList(list))
	}
	parts = append(parts, a.textarea.View(), a.renderStatusBar())

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (a AppView) renderStatusBar() string {
	return StatusStyle.Render(FormatFooter(successColor,
		"Alt+Q", "Quit",
		"Enter", "Send",
		"Alt+Enter", "New Line",
		"Alt+Y", "Copy",
		"Alt+H", "Help",
	))
}

// promptsVisible reports whether seed prompts are offered: only before the
// first message and while input is accepted.
func (a AppView) promptsVisible() bool {
	return len(a.snapshot.Messages) == 0 && !a.snapshot.Typing && a.snapshot.Phase != model.PhaseClosed
}

func (a AppView) visiblePrompts() []string {
	if !a.promptsVisible() {
		return nil
	}
	list := filterPrompts(a.textarea.Value(), a.prompts)
	if len(list) > maxPromptRows {
		list = list[:maxPromptRows]
	}
	return list
}

func (a AppView) renderPromptList(list []string) string {
	lines := make([]string, len(list))
	for i, p := range list {
		text := truncatePrompt(p, a.width-4)
		if i == a.selectedPrompt {
			lines[i] = SelectedStyle.Render("› " + text)
			continue
		}
		lines[i] = DimStyle.Render("  " + text)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// layout sizes the viewport to what the header, prompt list, input and
// status bar leave free.
func (a *AppView) layout() {
	used := 2 + inputHeight + 1
	used += len(a.visiblePrompts())
	h := a.height - used
	if h < 1 {
		h = 1
	}
	a.viewport.Width = a.width
	a.viewport.Height = h
	a.textarea.SetWidth(a.width)
}
