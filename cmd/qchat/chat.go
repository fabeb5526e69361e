package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"qchat/internal/tui"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, mgr, err := sessionFor(cmd)
			if err != nil {
				return err
			}
			program := tea.NewProgram(tui.New(ctrl, mgr), tea.WithAltScreen())
			if _, err := program.Run(); err != nil {
				return fmt.Errorf("chat session: %w", err)
			}
			return nil
		},
	}
}
