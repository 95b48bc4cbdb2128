package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/afk-farmer/internal/adapters/admin"
	statusadapter "github.com/bnema/afk-farmer/internal/adapters/render/status"
	"github.com/bnema/afk-farmer/internal/application"
)

func newSessionCmd(app *app) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage sessions on a running supervisor",
	}
	cmd.PersistentFlags().StringVar(&url, "url", "", "admin API URL (default from admin.url)")

	client := func() *admin.Client { return app.adminClient(url) }
	cmd.AddCommand(
		newSessionListCmd(app, client),
		newSessionShowCmd(app, client),
		newSessionAddCmd(client),
		newSessionRefCmd("remove <ref>", "Stop a session and forget it", "removed", client, func(ctx context.Context, c *admin.Client, ref string) error {
			return c.Remove(ctx, ref)
		}),
		newSessionRefCmd("restart <ref>", "Stop a session and start it again", "restarting", client, func(ctx context.Context, c *admin.Client, ref string) error {
			return c.Restart(ctx, ref)
		}),
		newSessionRefCmd("stop <ref>", "Stop farming a session without removing it", "stopped", client, func(ctx context.Context, c *admin.Client, ref string) error {
			return c.Stop(ctx, ref)
		}),
	)

	return cmd
}

func newSessionListCmd(app *app, client func() *admin.Client) *cobra.Command {
	var asJSON bool
	var logs int
	var runningOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show every session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions, err := client().List(cmd.Context())
			if err != nil {
				return err
			}
			return writeSessionsOutput(cmd, app, sessions, statusadapter.RenderOptions{Logs: logs, RunningOnly: runningOnly}, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	cmd.Flags().IntVar(&logs, "logs", 0, "recent log lines to show per session")
	cmd.Flags().BoolVar(&runningOnly, "running", false, "only list running sessions")
	return cmd
}

func newSessionShowCmd(app *app, client func() *admin.Client) *cobra.Command {
	var asJSON bool
	var logs int

	cmd := &cobra.Command{
		Use:   "show <ref>",
		Short: "Show one session with its recent log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := client().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeSessionsOutput(cmd, app, []application.Snapshot{snap}, statusadapter.RenderOptions{Logs: logs}, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	cmd.Flags().IntVar(&logs, "logs", 15, "recent log lines to show")
	return cmd
}

func newSessionAddCmd(client func() *admin.Client) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "add <credential>",
		Short: "Register a credential and start farming it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				actor = envOrDefault("USER", "cli")
			}

			var added admin.AddResponse
			err := runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Detecting tenant...", func(ctx context.Context) error {
				var err error
				added, err = client().Add(ctx, args[0], actor)
				return err
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "added %s (tenant %s)\n", added.Key.Tail(), added.TenantID)
			return err
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "name recorded in the session log (default $USER)")
	return cmd
}

func newSessionRefCmd(use, short, done string, client func() *admin.Client, action func(context.Context, *admin.Client, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := action(cmd.Context(), client(), args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", done, args[0])
			return err
		},
	}
}

func writeSessionsOutput(cmd *cobra.Command, app *app, sessions []application.Snapshot, opts statusadapter.RenderOptions, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}

	opts.Now = app.now()
	rendered, err := app.statusRenderer(sessions, opts)
	if err != nil {
		return fmt.Errorf("render sessions: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
