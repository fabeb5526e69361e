package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"qchat/internal/chat"
	"qchat/internal/citation"
	"qchat/internal/credentials"
	"qchat/internal/domain"
)

func newConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "List and delete past conversations",
	}
	cmd.AddCommand(newConversationsListCmd())
	cmd.AddCommand(newConversationsDeleteCmd())
	return cmd
}

// sessionFor builds a ready controller for one-shot commands. Credentials
// must already be cached and valid.
func sessionFor(cmd *cobra.Command) (*chat.Controller, *credentials.Manager, error) {
	ctx := cmd.Context()
	cfg, err := loadSettings(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := newManager(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := requireCredentials(ctx, mgr); err != nil {
		return nil, nil, err
	}
	ctrl, err := newController(cfg, mgr)
	if err != nil {
		return nil, nil, err
	}
	return ctrl, mgr, nil
}

func newConversationsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recent conversations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, err := sessionFor(cmd)
			if err != nil {
				return err
			}
			if err := ctrl.LoadConversations(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			convs := ctrl.Conversations()
			if len(convs) == 0 {
				fmt.Fprintln(out, "no conversations")
				return nil
			}
			for _, c := range convs {
				fmt.Fprintf(out, "%s  %s  %s\n",
					c.ConversationID,
					c.StartTime.Local().Format("01/02/06 @ 3:04 PM"),
					citation.TruncateConversationTitle(c.Title))
			}
			return nil
		},
	}
}

func newConversationsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation-id>",
		Short: "Delete a conversation server-side",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, err := sessionFor(cmd)
			if err != nil {
				return err
			}
			summary := domain.ConversationSummary{ConversationID: args[0]}
			if err := ctrl.DeleteConversation(cmd.Context(), summary); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
