package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// RecoverOptions holds flags for the recover command.
type RecoverOptions struct {
	*RootOptions
	StaleAfter time.Duration
}

// RecoverResult lists the versions recovery failed.
type RecoverResult struct {
	Failed []string `json:"failed"`
}

// NewRecoverCommand creates the recover command.
func NewRecoverCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecoverOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Fail versions abandoned mid-stage",
		Long: `Mark versions as failed when a pipeline stage started on them longer
than --stale-after ago and never finished, e.g. after a crash. Versions
waiting for a resolve decision or for publication are left alone.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts.RootOptions, cmd)
			staleAfter := opts.StaleAfter
			if staleAfter <= 0 {
				staleAfter = opts.Config.StaleAfter
			}
			return withEnv(opts.RootOptions, func(e *env) error {
				ids, err := e.pipeline.Recover(commandContext(cmd), staleAfter)
				if err != nil {
					return operationFailed(formatter, err)
				}
				return formatter.Render(RecoverResult{Failed: ids}, func(w io.Writer) {
					if len(ids) == 0 {
						fmt.Fprintln(w, "✓ No abandoned versions")
						return
					}
					fmt.Fprintf(w, "✓ Failed %d abandoned version(s)\n", len(ids))
					for _, id := range ids {
						fmt.Fprintf(w, "  %s\n", id)
					}
				})
			})
		},
	}

	cmd.Flags().DurationVar(&opts.StaleAfter, "stale-after", 0, "age after which a working version is abandoned (default $DATAVER_STALE_AFTER)")

	return cmd
}
