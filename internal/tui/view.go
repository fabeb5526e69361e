package tui

import (
	"fmt"
	"strings"

	"qchat/internal/citation"
	"qchat/internal/credentials"
)

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("qchat"))
	b.WriteString("  ")
	b.WriteString(m.credentialBadge())
	b.WriteString("\n\n")

	switch m.screen {
	case screenConversations:
		b.WriteString(m.viewConversations())
	case screenChat:
		b.WriteString(m.viewChat())
	}

	if m.errText != "" {
		b.WriteString("\n")
		b.WriteString(errStyle.Render(m.errText))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("esc: dismiss"))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) credentialBadge() string {
	switch m.creds.State() {
	case credentials.StateValid:
		return statusStyle.Render("credentials ok")
	case credentials.StateExpiringSoon:
		return staleStyle.Render("credentials expiring soon")
	case credentials.StateExpired:
		return staleStyle.Render("credentials expired")
	default:
		return staleStyle.Render("no credentials")
	}
}

func (m Model) viewConversations() string {
	var b strings.Builder

	if m.busy {
		b.WriteString(statusStyle.Render("Loading conversations..."))
		b.WriteString("\n")
		return b.String()
	}

	convs := m.ctrl.Conversations()
	if len(convs) == 0 {
		b.WriteString(statusStyle.Render("No conversations yet. Press n to start one."))
		b.WriteString("\n")
	}
	for i, c := range convs {
		line := fmt.Sprintf("%s  %s",
			citation.TruncateConversationTitle(c.Title), timeStyle.Render(formatTime(c.StartTime)))
		if i == m.cursor {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter: open  n: new  d: delete  r: reload  q: quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewChat() string {
	var b strings.Builder

	history := m.ctrl.History()
	if len(history) == 0 && !m.busy {
		b.WriteString(statusStyle.Render("New conversation. Ask a question to get started."))
		b.WriteString("\n")
	}
	for _, turn := range history {
		b.WriteString(renderTurn(turn))
		b.WriteString("\n")
	}

	if m.busy {
		b.WriteString(statusStyle.Render("Waiting for a reply..."))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(promptStyle.Render("> "))
	b.WriteString(m.input)
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter: send  esc: back  ctrl+c: quit"))
	b.WriteString("\n")
	return b.String()
}
