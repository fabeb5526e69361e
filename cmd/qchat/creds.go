package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"qchat/internal/credentials"
)

func newCredsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "creds",
		Short: "Manage the temporary credential triple",
	}
	cmd.AddCommand(newCredsAcquireCmd())
	cmd.AddCommand(newCredsRefreshCmd())
	cmd.AddCommand(newCredsShowCmd())
	cmd.AddCommand(newCredsExportCmd())
	cmd.AddCommand(newCredsClearCmd())
	return cmd
}

func addTokenFlags(cmd *cobra.Command) {
	cmd.Flags().String("token", "", "identity token value")
	cmd.Flags().String("token-file", "", "path to a file holding the identity token")
}

func newCredsAcquireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Exchange an identity token for a credential triple",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadSettings(ctx, cmd)
			if err != nil {
				return err
			}
			mgr, err := newManager(ctx, cfg)
			if err != nil {
				return err
			}
			source, err := newTokenSource(cmd)
			if err != nil {
				return err
			}
			token, err := source.Token(ctx)
			if err != nil {
				return err
			}
			triple, err := mgr.Acquire(ctx, token)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credentials acquired, valid until %s\n",
				triple.Expiration.Local().Format("01/02/06 @ 3:04 PM"))
			return nil
		},
	}
	addTokenFlags(cmd)
	return cmd
}

func newCredsRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Replace the cached triple with a fresh one",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadSettings(ctx, cmd)
			if err != nil {
				return err
			}
			mgr, err := newManager(ctx, cfg)
			if err != nil {
				return err
			}
			source, err := newTokenSource(cmd)
			if err != nil {
				return err
			}
			token, err := source.Token(ctx)
			if err != nil {
				return err
			}
			triple, err := mgr.Refresh(ctx, token)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credentials refreshed, valid until %s\n",
				triple.Expiration.Local().Format("01/02/06 @ 3:04 PM"))
			return nil
		},
	}
	addTokenFlags(cmd)
	return cmd
}

func newCredsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the cached credential state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadSettings(ctx, cmd)
			if err != nil {
				return err
			}
			mgr, err := newManager(ctx, cfg)
			if err != nil {
				return err
			}
			state, triple, err := mgr.LoadCached(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state: %s\n", state)
			if !triple.IsZero() {
				fmt.Fprintf(out, "access key: %s\n", triple.AccessKeyID)
				fmt.Fprintf(out, "expires:    %s\n", triple.Expiration.Local().Format("01/02/06 @ 3:04 PM"))
			}
			return nil
		},
	}
}

func newCredsExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print shell export lines for the cached triple",
		Long:  "Prints export statements for AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, and AWS_SESSION_TOKEN. Use with eval: eval \"$(qchat creds export)\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadSettings(ctx, cmd)
			if err != nil {
				return err
			}
			mgr, err := newManager(ctx, cfg)
			if err != nil {
				return err
			}
			if err := requireCredentials(ctx, mgr); err != nil {
				return err
			}
			triple, ok := mgr.Current()
			if !ok {
				return fmt.Errorf("no credentials loaded")
			}
			fmt.Fprint(cmd.OutOrStdout(), credentials.ExportBlock(triple))
			return nil
		},
	}
}

func newCredsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop the cached triple from memory and the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadSettings(ctx, cmd)
			if err != nil {
				return err
			}
			mgr, err := newManager(ctx, cfg)
			if err != nil {
				return err
			}
			if err := mgr.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "credentials cleared")
			return nil
		},
	}
}
