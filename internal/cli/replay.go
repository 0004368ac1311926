package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dataver/internal/store"
	"github.com/roach88/dataver/internal/version"
)

// ReplayVersionResult holds the replay result for a single version.
type ReplayVersionResult struct {
	VersionID   string `json:"version_id"`
	DataSetID   string `json:"dataset_id"`
	Number      string `json:"number,omitempty"`
	Status      string `json:"status"`
	Transitions int    `json:"transitions"`
	InFlight    bool   `json:"in_flight"`
	Consistent  bool   `json:"consistent"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Versions      []ReplayVersionResult `json:"versions"`
	TotalVersions int                   `json:"total_versions"`
	// Problems lists data set level inconsistencies, e.g. a live pointer
	// at a version that is not published.
	Problems      []string `json:"problems,omitempty"`
	AllConsistent bool     `json:"all_consistent"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [dataset-id]",
		Short: "Replay version histories and verify them against stored state",
		Long: `Replay the recorded status transitions of every version and verify that
each chain of transitions ends at the version's stored status, and that
every live pointer refers to a published version of its own data set.

Without an argument every data set is checked.

Exit codes:
  0 - All histories are consistent
  1 - Inconsistencies detected
  2 - Command error (database not found, etc.)

Examples:
  dataver replay
  dataver replay absence --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withEnv(rootOpts, func(e *env) error {
				result, err := replayAll(commandContext(cmd), e.store, args)
				if err != nil {
					return operationFailed(formatter, err)
				}
				if formatter.Format == "json" {
					return outputReplayJSON(formatter, result)
				}
				return outputReplayText(formatter, result)
			})
		},
	}

	return cmd
}

func replayAll(ctx context.Context, st *store.Store, args []string) (ReplayResult, error) {
	var sets []store.DataSet
	if len(args) == 1 {
		ds, err := st.GetDataSet(ctx, args[0])
		if err != nil {
			return ReplayResult{}, err
		}
		sets = []store.DataSet{ds}
	} else {
		var err error
		if sets, err = st.ListDataSets(ctx); err != nil {
			return ReplayResult{}, err
		}
	}

	result := ReplayResult{Versions: []ReplayVersionResult{}, AllConsistent: true}
	for _, ds := range sets {
		versions, err := st.ListVersions(ctx, ds.ID)
		if err != nil {
			return ReplayResult{}, err
		}
		for _, v := range versions {
			h, err := st.ReplayVersion(ctx, v.ID)
			if err != nil {
				return ReplayResult{}, err
			}
			result.Versions = append(result.Versions, ReplayVersionResult{
				VersionID:   v.ID,
				DataSetID:   ds.ID,
				Number:      v.PublicVersion(),
				Status:      string(v.Status),
				Transitions: len(h.Events),
				InFlight:    h.InFlight,
				Consistent:  h.Consistent,
			})
			if !h.Consistent {
				result.AllConsistent = false
			}
		}
		if problem := checkLivePointer(ds, versions); problem != "" {
			result.Problems = append(result.Problems, problem)
			result.AllConsistent = false
		}
	}
	result.TotalVersions = len(result.Versions)
	return result, nil
}

func checkLivePointer(ds store.DataSet, versions []store.DataSetVersion) string {
	if ds.LatestLiveVersionID == nil {
		return ""
	}
	live := *ds.LatestLiveVersionID
	for _, v := range versions {
		if v.ID != live {
			continue
		}
		if v.Status != version.StatusPublished {
			return fmt.Sprintf("%s: live version %s is %s", ds.ID, live, v.Status)
		}
		return ""
	}
	return fmt.Sprintf("%s: live version %s does not belong to the data set", ds.ID, live)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if !result.AllConsistent {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_INCONSISTENT",
			Message: "history verification failed",
		}
	}

	encoder := json.NewEncoder(formatter.Writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}
	if !result.AllConsistent {
		return NewExitError(ExitFailure, "history verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(formatter *OutputFormatter, result ReplayResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Replay Summary: %d version(s)\n", result.TotalVersions)
	fmt.Fprintln(w)

	for _, v := range result.Versions {
		mark := "✓"
		if !v.Consistent {
			mark = "✗"
		}
		label := v.Number
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(w, "%s %s %s (%s)\n", mark, v.DataSetID, label, v.VersionID)
		if formatter.Verbose {
			fmt.Fprintf(w, "  Status: %s\n", v.Status)
			fmt.Fprintf(w, "  Transitions: %d\n", v.Transitions)
			fmt.Fprintf(w, "  In flight: %v\n", v.InFlight)
		}
		if !v.Consistent {
			fmt.Fprintln(w, "  Warning: transitions do not lead to the stored status!")
		}
	}
	for _, p := range result.Problems {
		fmt.Fprintf(w, "✗ %s\n", p)
	}
	fmt.Fprintln(w)

	if result.AllConsistent {
		fmt.Fprintln(w, "✓ All histories consistent")
		return nil
	}
	fmt.Fprintln(w, "✗ History verification failed")
	return NewExitError(ExitFailure, "history verification failed")
}
