package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/dataver/internal/preview"
)

// NewPreviewCommand creates the preview command group.
func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Manage preview tokens for unpublished versions",
		Long: `Preview tokens grant time-limited read access to a version that has not
been published yet. Use them with "dataver query --version-id --preview-token".`,
	}

	cmd.AddCommand(newPreviewIssueCommand(rootOpts))
	cmd.AddCommand(newPreviewListCommand(rootOpts))
	cmd.AddCommand(newPreviewRevokeCommand(rootOpts))
	cmd.AddCommand(newPreviewSweepCommand(rootOpts))

	return cmd
}

// PreviewIssueOptions holds flags for preview issue.
type PreviewIssueOptions struct {
	*RootOptions
	Label     string
	Activates string
	Expires   time.Duration
	CreatedBy string
}

func newPreviewIssueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PreviewIssueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "issue <version-id>",
		Short: "Issue a preview token",
		Long: `Issue a preview token for an unpublished version.

Examples:
  dataver preview issue 0191e0c4-... --label "Pre-release check"
  dataver preview issue 0191e0c4-... --label QA --activates 2024-03-01T09:00:00Z --expires 48h`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts.RootOptions, cmd)

			req := preview.IssueRequest{VersionID: args[0], Label: opts.Label, CreatedBy: opts.CreatedBy}
			if opts.Activates != "" {
				at, err := time.Parse(time.RFC3339, opts.Activates)
				if err != nil {
					return formatter.Fail(ExitCommandError, ErrCodeBadInput, fmt.Errorf("--activates: %w", err))
				}
				req.Activates = at
			}
			start := req.Activates
			if start.IsZero() {
				start = time.Now()
			}
			req.Expires = start.Add(opts.Expires)

			return withEnv(opts.RootOptions, func(e *env) error {
				t, err := e.previews.Issue(commandContext(cmd), req)
				if err != nil {
					return operationFailed(formatter, err)
				}
				return formatter.Render(t, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Issued preview token %s\n", t.ID)
					fmt.Fprintf(w, "  Version: %s\n", t.DataSetVersionID)
					fmt.Fprintf(w, "  Active:  %s to %s\n", t.Activates.Format(time.RFC3339), t.Expires.Format(time.RFC3339))
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Label, "label", "", "token label (required)")
	cmd.Flags().StringVar(&opts.Activates, "activates", "", "activation time, RFC 3339 (default now)")
	cmd.Flags().DurationVar(&opts.Expires, "expires", 24*time.Hour, "validity after activation")
	cmd.Flags().StringVar(&opts.CreatedBy, "created-by", "", "who requested the token")
	_ = cmd.MarkFlagRequired("label")

	return cmd
}

// TokenView is a token with its status at listing time.
type TokenView struct {
	preview.Token
	Status preview.Status `json:"status"`
}

func newPreviewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list <version-id>",
		Short:         "List the preview tokens of a version",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withEnv(rootOpts, func(e *env) error {
				tokens, err := e.store.ListTokens(commandContext(cmd), args[0])
				if err != nil {
					return operationFailed(formatter, err)
				}
				now := time.Now()
				views := make([]TokenView, len(tokens))
				for i, t := range tokens {
					views[i] = TokenView{Token: t, Status: t.StatusAt(now)}
				}
				return formatter.Render(views, func(w io.Writer) {
					printTokens(w, views)
				})
			})
		},
	}
}

func printTokens(w io.Writer, tokens []TokenView) {
	if len(tokens) == 0 {
		fmt.Fprintln(w, "No preview tokens.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tSTATUS\tACTIVATES\tEXPIRES\t")
	for _, t := range tokens {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", t.ID, t.Label, t.Status,
			t.Activates.Format(time.RFC3339), t.Expires.Format(time.RFC3339))
	}
	_ = tw.Flush()
}

func newPreviewRevokeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "revoke <token-id>",
		Short:         "Revoke a preview token",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withEnv(rootOpts, func(e *env) error {
				if err := e.store.DeleteToken(commandContext(cmd), args[0]); err != nil {
					return operationFailed(formatter, err)
				}
				return formatter.Render(map[string]string{"revoked": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Revoked preview token %s\n", args[0])
				})
			})
		},
	}
}

func newPreviewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired preview tokens now",
		Long: `Delete preview tokens that expired longer ago than the configured grace
period (DATAVER_PREVIEW_GRACE). "dataver run" does this on a schedule.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withEnv(rootOpts, func(e *env) error {
				sweeper, err := preview.NewSweeper(e.store, e.cfg.PreviewSweepSchedule, e.cfg.PreviewGrace,
					preview.WithSweeperLogger(rootOpts.Logger),
					preview.WithSweeperMetrics(e.metrics))
				if err != nil {
					return formatter.Fail(ExitCommandError, ErrCodeBadInput, err)
				}
				n, err := sweeper.Sweep(commandContext(cmd))
				if err != nil {
					return operationFailed(formatter, err)
				}
				return formatter.Render(map[string]int{"deleted": n}, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Deleted %d expired preview token(s)\n", n)
				})
			})
		},
	}
}
