// Package tui renders the conversation list and chat views on top of the
// session controller.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"qchat/internal/chat"
	"qchat/internal/citation"
	"qchat/internal/credentials"
	"qchat/internal/domain"
)

type screen int

const (
	screenConversations screen = iota
	screenChat
)

func (s screen) String() string {
	switch s {
	case screenConversations:
		return "conversations"
	case screenChat:
		return "chat"
	default:
		return "unknown"
	}
}

// Completion messages from async controller calls. The controller holds the
// resulting state; messages only signal that a call finished.
type (
	conversationsLoadedMsg struct{}
	historyLoadedMsg       struct{}
	replySentMsg           struct{}
	deletedMsg             struct{}
	opErrMsg               struct{ err error }
)

// Model is the bubbletea model for the chat client.
type Model struct {
	ctrl  *chat.Controller
	creds *credentials.Manager

	screen  screen
	cursor  int
	input   string
	busy    bool
	errText string
	width   int
	height  int
}

// New creates the TUI model. The caller is expected to have a valid
// credential triple loaded before starting the program.
func New(ctrl *chat.Controller, creds *credentials.Manager) Model {
	return Model{ctrl: ctrl, creds: creds, screen: screenConversations, busy: true}
}

func (m Model) Init() tea.Cmd {
	return m.loadConversationsCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case conversationsLoadedMsg:
		m.busy = false
		m.clampCursor()
		return m, nil

	case historyLoadedMsg:
		m.busy = false
		m.screen = screenChat
		return m, nil

	case replySentMsg:
		m.busy = false
		m.input = ""
		return m, nil

	case deletedMsg:
		m.busy = false
		m.clampCursor()
		return m, nil

	case opErrMsg:
		m.busy = false
		m.errText = msg.err.Error()
		if m.creds.State() == credentials.StateExpiringSoon || m.creds.State() == credentials.StateExpired {
			m.errText += "\nCredentials are stale. Sign out and refresh them with `qchat creds refresh`."
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	// An error panel is dismissed by an explicit key, never on render.
	if m.errText != "" && msg.Type == tea.KeyEsc {
		m.errText = ""
		return m, nil
	}

	switch m.screen {
	case screenConversations:
		return m.handleConversationsKey(msg)
	case screenChat:
		return m.handleChatKey(msg)
	}
	return m, nil
}

func (m Model) handleConversationsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	convs := m.ctrl.Conversations()

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(convs)-1 {
			m.cursor++
		}
	case "r":
		m.busy = true
		return m, m.loadConversationsCmd()
	case "n":
		m.ctrl.StartNewConversation()
		m.screen = screenChat
		m.input = ""
	case "d":
		if m.cursor < len(convs) {
			m.busy = true
			return m, m.deleteConversationCmd(convs[m.cursor])
		}
	case "enter":
		if m.cursor < len(convs) {
			m.busy = true
			return m, m.openConversationCmd(convs[m.cursor].ConversationID)
		}
	}
	return m, nil
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		if !m.busy {
			m.ctrl.BackToList()
			m.screen = screenConversations
			m.input = ""
			m.busy = true
			return m, m.loadConversationsCmd()
		}
	case tea.KeyEnter:
		// The send affordance stays disabled while a reply is pending or
		// the input is below the minimum length.
		if !m.busy && len([]rune(m.input)) >= chat.MinInputLen {
			m.busy = true
			return m, m.sendCmd(m.input)
		}
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			runes := []rune(m.input)
			m.input = string(runes[:len(runes)-1])
		}
	case tea.KeySpace:
		m.input += " "
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	}
	return m, nil
}

func (m *Model) clampCursor() {
	n := len(m.ctrl.Conversations())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) loadConversationsCmd() tea.Cmd {
	return func() tea.Msg {
		if err := m.ctrl.LoadConversations(context.Background()); err != nil {
			return opErrMsg{err: err}
		}
		return conversationsLoadedMsg{}
	}
}

func (m Model) openConversationCmd(conversationID string) tea.Cmd {
	return func() tea.Msg {
		if err := m.ctrl.OpenConversation(context.Background(), conversationID); err != nil {
			return opErrMsg{err: err}
		}
		return historyLoadedMsg{}
	}
}

func (m Model) sendCmd(input string) tea.Cmd {
	return func() tea.Msg {
		if err := m.ctrl.Send(context.Background(), input); err != nil {
			return opErrMsg{err: err}
		}
		return replySentMsg{}
	}
}

func (m Model) deleteConversationCmd(summary domain.ConversationSummary) tea.Cmd {
	return func() tea.Msg {
		if err := m.ctrl.DeleteConversation(context.Background(), summary); err != nil {
			return opErrMsg{err: err}
		}
		return deletedMsg{}
	}
}

// formatTime renders timestamps the way the web client did.
func formatTime(t time.Time) string {
	return t.Local().Format("01/02/06 @ 3:04 PM")
}

// renderTurn builds the display block for one turn, including its source
// list when citations are present.
func renderTurn(turn domain.Turn) string {
	var b strings.Builder

	switch turn.Role {
	case domain.RoleUser:
		b.WriteString(userStyle.Render("You"))
	default:
		b.WriteString(systemStyle.Render("Assistant"))
	}
	b.WriteString("  ")
	b.WriteString(timeStyle.Render(formatTime(turn.Time)))
	b.WriteString("\n")
	b.WriteString(citation.Annotate(turn))
	b.WriteString("\n")

	if turn.Role == domain.RoleSystem && turn.HasCitations {
		for _, src := range citation.DedupeAttributions(turn.Citations) {
			fmt.Fprintf(&b, "%s\n", sourceStyle.Render(
				fmt.Sprintf("[%d] %s  %s", src.CitationNumber, citation.TruncateTitle(src.Title), src.URL)))
		}
	}
	return b.String()
}
