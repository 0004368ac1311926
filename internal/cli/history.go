package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/dataver/internal/mapping"
	"github.com/roach88/dataver/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Status string // optional - filter to transitions into this status
}

// HistoryResult holds the complete history output.
type HistoryResult struct {
	Version    store.DataSetVersion `json:"version"`
	Timeline   []store.Event        `json:"timeline"`
	Provenance *Provenance          `json:"provenance,omitempty"`
	Stats      HistoryStats         `json:"stats"`
}

// Provenance records which live version a version was mapped from and the
// decisions applied to the mapping.
type Provenance struct {
	SourceVersionID string               `json:"source_version_id,omitempty"`
	Resolutions     []mapping.Resolution `json:"resolutions"`
	Unresolved      int                  `json:"unresolved"`
}

// HistoryStats holds summary statistics for the history.
type HistoryStats struct {
	Transitions int  `json:"transitions"`
	Consistent  bool `json:"consistent"`
	InFlight    bool `json:"in_flight"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <version-id>",
		Short: "Show the status history of a version",
		Long: `Show the recorded status transitions of a version.

The output includes:
- Timeline: every transition in order, with its detail
- Provenance: the live version the draft was mapped from and the mapping
  decisions applied to it
- Stats: whether the transitions chain up to the stored status

Examples:
  dataver history 0191e0c4-...
  dataver history 0191e0c4-... --status failed
  dataver history 0191e0c4-... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "only show transitions into this status")

	return cmd
}

func runHistory(opts *HistoryOptions, versionID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	return withEnv(opts.RootOptions, func(e *env) error {
		ctx := commandContext(cmd)
		h, err := e.store.ReplayVersion(ctx, versionID)
		if err != nil {
			return operationFailed(formatter, err)
		}

		result := HistoryResult{
			Version:  h.Version,
			Timeline: filterEvents(h.Events, opts.Status),
			Stats: HistoryStats{
				Transitions: len(h.Events),
				Consistent:  h.Consistent,
				InFlight:    h.InFlight,
			},
		}

		rec, err := e.store.LoadMapping(ctx, versionID)
		switch {
		case err == nil:
			result.Provenance = &Provenance{
				SourceVersionID: rec.SourceVersionID,
				Resolutions:     rec.Result.Resolutions(),
				Unresolved:      rec.Result.Unresolved(),
			}
		case !errors.Is(err, store.ErrNotFound):
			return operationFailed(formatter, err)
		}

		return formatter.Render(result, func(w io.Writer) {
			printHistory(w, result, opts.Verbose)
		})
	})
}

// filterEvents keeps transitions into status; an empty status keeps all.
func filterEvents(events []store.Event, status string) []store.Event {
	out := []store.Event{}
	for _, ev := range events {
		if status == "" || string(ev.To) == status {
			out = append(out, ev)
		}
	}
	return out
}

func printHistory(w io.Writer, r HistoryResult, verbose bool) {
	label := r.Version.PublicVersion()
	if label == "" {
		label = "unnumbered"
	}
	fmt.Fprintf(w, "History for Version: %s (%s %s)\n", r.Version.ID, r.Version.DataSetID, label)
	fmt.Fprintf(w, "Status: %s\n", r.Version.Status)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(r.Timeline) == 0 {
		fmt.Fprintln(w, "  (no transitions)")
	}
	for _, ev := range r.Timeline {
		fmt.Fprintf(w, "  [%d] %s -> %s\n", ev.Seq, ev.From, ev.To)
		if ev.Detail != "" {
			fmt.Fprintf(w, "       %s\n", ev.Detail)
		}
		if verbose {
			fmt.Fprintf(w, "       At: %s\n", ev.At.Format("2006-01-02T15:04:05Z07:00"))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Provenance ===")
	switch {
	case r.Provenance == nil:
		fmt.Fprintln(w, "  (not mapped)")
	case r.Provenance.SourceVersionID == "":
		fmt.Fprintln(w, "  first version, nothing to map from")
	default:
		fmt.Fprintf(w, "  mapped from %s\n", r.Provenance.SourceVersionID)
	}
	if r.Provenance != nil {
		for _, res := range r.Provenance.Resolutions {
			target := res.TargetID
			if target == "" {
				target = "(none)"
			}
			fmt.Fprintf(w, "  %s:%s -> %s\n", res.Kind, res.SourceID, target)
		}
		if r.Provenance.Unresolved > 0 {
			fmt.Fprintf(w, "  %d entr(ies) unresolved\n", r.Provenance.Unresolved)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Transitions: %d\n", r.Stats.Transitions)
	fmt.Fprintf(w, "  Consistent:  %v\n", r.Stats.Consistent)
	fmt.Fprintf(w, "  In flight:   %v\n", r.Stats.InFlight)
}
