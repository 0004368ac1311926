package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/dataver/internal/mapping"
	"github.com/roach88/dataver/internal/store"
)

// NewChangesCommand creates the changes command.
func NewChangesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "changes <version-id>",
		Short: "Show the change report of a version",
		Long: `Show what changed between a version and the live version it was
mapped from, the bump it was classified as and any mapping entries that
still await a decision.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withEnv(rootOpts, func(e *env) error {
				ctx := commandContext(cmd)
				out, err := e.pipeline.Changes(ctx, args[0])
				if err != nil {
					return operationFailed(formatter, err)
				}
				return renderOutcome(ctx, formatter, e.store, out)
			})
		},
	}
}

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Map []string
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <version-id>",
		Short: "Decide mapping entries of an unpublished version",
		Long: `Apply mapping decisions to a version in the mapping or processing status.

Each --map is kind:source=target, where source is the option id in the
live version and target the option id in this version. An empty target
records that the option has no counterpart. Once no entry is ambiguous the
version is classified and numbered. A numbered version is renumbered when a
decision changes its bump, for example when a removed option is mapped to
its replacement.

Examples:
  dataver resolve 0191e0c4-... --map location:shf=shf2
  dataver resolve 0191e0c4-... --map filter_option:st-sec=`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Map, "map", nil, "mapping decision kind:source=target (repeatable)")
	_ = cmd.MarkFlagRequired("map")

	return cmd
}

func runResolve(opts *ResolveOptions, versionID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	resolutions := make([]mapping.Resolution, 0, len(opts.Map))
	for _, m := range opts.Map {
		res, err := mapping.ParseResolution(m)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeBadInput, err)
		}
		resolutions = append(resolutions, res)
	}

	return withEnv(opts.RootOptions, func(e *env) error {
		ctx := commandContext(cmd)
		out, err := e.pipeline.Resolve(ctx, versionID, resolutions)
		if err != nil {
			return operationFailed(formatter, err)
		}
		return renderOutcome(ctx, formatter, e.store, out)
	})
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <version-id>",
		Short: "Publish a version and make it the live version",
		Long: `Publish a numbered version. The data set's live pointer moves to it
only if the live version is still the one the version was mapped from.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withEnv(rootOpts, func(e *env) error {
				v, err := e.pipeline.Publish(commandContext(cmd), args[0])
				if err != nil {
					return operationFailed(formatter, err)
				}
				return formatter.Render(v, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Published %s version %s (%s)\n", v.DataSetID, v.PublicVersion(), v.ID)
				})
			})
		},
	}
}

// StatusChangeOptions holds flags for cancel and deprecate.
type StatusChangeOptions struct {
	*RootOptions
	Reason string
}

// NewCancelCommand creates the cancel command.
func NewCancelCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusChangeOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:           "cancel <version-id>",
		Short:         "Cancel an unpublished version",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts.RootOptions, cmd)
			return withEnv(opts.RootOptions, func(e *env) error {
				if err := e.pipeline.Cancel(commandContext(cmd), args[0], opts.Reason); err != nil {
					return operationFailed(formatter, err)
				}
				return renderStatus(formatter, e, cmd, args[0], "Cancelled")
			})
		},
	}
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "reason recorded in the version history")
	return cmd
}

// NewDeprecateCommand creates the deprecate command.
func NewDeprecateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusChangeOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "deprecate <version-id>",
		Short: "Deprecate a published version",
		Long: `Deprecate a published version that is no longer the live version.
Deprecated versions stay queryable by exact label.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts.RootOptions, cmd)
			return withEnv(opts.RootOptions, func(e *env) error {
				if err := e.pipeline.Deprecate(commandContext(cmd), args[0], opts.Reason); err != nil {
					return operationFailed(formatter, err)
				}
				return renderStatus(formatter, e, cmd, args[0], "Deprecated")
			})
		},
	}
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "reason recorded in the version history")
	return cmd
}

func renderStatus(formatter *OutputFormatter, e *env, cmd *cobra.Command, versionID, verb string) error {
	v, err := e.store.GetVersion(commandContext(cmd), versionID)
	if err != nil {
		return operationFailed(formatter, err)
	}
	return formatter.Render(v, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s %s\n", verb, v.ID)
	})
}

// NewVersionsCommand creates the versions command.
func NewVersionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "versions <dataset-id>",
		Short:         "List the versions of a data set",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withEnv(rootOpts, func(e *env) error {
				ctx := commandContext(cmd)
				ds, err := e.store.GetDataSet(ctx, args[0])
				if err != nil {
					return operationFailed(formatter, err)
				}
				versions, err := e.store.ListVersions(ctx, args[0])
				if err != nil {
					return operationFailed(formatter, err)
				}
				return formatter.Render(versions, func(w io.Writer) {
					printVersions(w, ds, versions)
				})
			})
		},
	}
}

func printVersions(w io.Writer, ds store.DataSet, versions []store.DataSetVersion) {
	fmt.Fprintf(w, "%s: %s\n\n", ds.ID, ds.Title)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tID\tSTATUS\tCREATED\t")
	for _, v := range versions {
		label := v.PublicVersion()
		if label == "" {
			label = "-"
		}
		if ds.LatestLiveVersionID != nil && *ds.LatestLiveVersionID == v.ID {
			label += " (live)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", label, v.ID, v.Status, v.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}
