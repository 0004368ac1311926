package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dataver/internal/changes"
	"github.com/roach88/dataver/internal/compiler"
	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/harness"
	"github.com/roach88/dataver/internal/pipeline"
	"github.com/roach88/dataver/internal/store"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Patch bool
	Notes string
}

// PendingEntry is a mapping entry awaiting a resolve decision.
type PendingEntry struct {
	Kind       facet.Kind `json:"kind"`
	SourceID   string     `json:"source_id"`
	Label      string     `json:"label"`
	Candidates []string   `json:"candidates"`
}

// OutcomeView is the printed state of a version after a pipeline stage.
type OutcomeView struct {
	VersionID string             `json:"version_id"`
	DataSetID string             `json:"dataset_id"`
	Status    string             `json:"status"`
	Number    string             `json:"number,omitempty"`
	Source    string             `json:"source_version_id,omitempty"`
	Decision  changes.Decision   `json:"decision"`
	Changes   *changes.ChangeSet `json:"changes,omitempty"`
	Pending   []PendingEntry     `json:"pending,omitempty"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <datasets-dir> <name>",
		Short: "Ingest a data set definition as a new version",
		Long: `Ingest the data set definition <name> from <datasets-dir> as a new
draft version, map it against the live version and classify the change.

An unblocked version is numbered and ready to publish. A version with
ambiguous mapping entries waits for "dataver resolve". An ingestion that
changes nothing is discarded unless --patch is given.

Examples:
  dataver ingest ./datasets absence_v2
  dataver ingest ./datasets absence_v2 --patch --notes "Corrected rates"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Patch, "patch", false, "publish an unchanged facet set as a patch version")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "release notes (defaults to the definition's notes)")

	return cmd
}

func runIngest(opts *IngestOptions, dir, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	def, err := loadDefinition(dir, name)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return formatter.Fail(ExitCommandError, loadErr.Code, err)
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	formatter.VerboseLog("Ingesting %s as data set %s (%d rows)", def.Name, def.ID, len(def.Observations))

	notes := def.Notes
	if opts.Notes != "" {
		notes = opts.Notes
	}

	return withEnv(opts.RootOptions, func(e *env) error {
		ctx := commandContext(cmd)
		out, err := e.pipeline.Ingest(ctx, pipeline.IngestRequest{
			DataSet: store.DataSet{
				ID:               def.ID,
				Title:            def.Title,
				Summary:          def.Summary,
				ReleaseVersionID: def.ReleaseVersionID,
			},
			Facets:       def.Facets,
			Observations: def.Observations,
			Notes:        notes,
			Patch:        opts.Patch,
		})
		if err != nil {
			return operationFailed(formatter, err)
		}
		return renderOutcome(ctx, formatter, e.store, out)
	})
}

// loadDefinition compiles dir and returns the valid definition named name.
func loadDefinition(dir, name string) (*compiler.DataSetDef, error) {
	result, errs := LoadDataSets(dir, LoadModeCollectAll)
	if result == nil {
		return nil, errs[0]
	}
	def, ok := compiler.Lookup(result.DataSets, name)
	if !ok {
		if len(errs) > 0 {
			return nil, errs[0]
		}
		return nil, &LoadError{Code: ErrCodeNoSuchEntry, Message: fmt.Sprintf("no data set definition named %q", name)}
	}
	if verrs := compiler.Validate(def); len(verrs) > 0 {
		return nil, &LoadError{Code: verrs[0].Code, Message: fmt.Sprintf("%s: %s", name, verrs[0].Error())}
	}
	return def, nil
}

// outcomeView builds the printed form of out, listing pending entries of a
// blocked version.
func outcomeView(ctx context.Context, st *store.Store, out *pipeline.Outcome) (OutcomeView, error) {
	v := OutcomeView{
		VersionID: out.Version.ID,
		DataSetID: out.Version.DataSetID,
		Status:    string(out.Version.Status),
		Number:    out.Version.PublicVersion(),
		Source:    out.SourceVersionID,
		Decision:  out.Decision,
		Changes:   out.ChangeSet,
	}
	if v.Number == "" && !out.Decision.Next.IsZero() {
		v.Number = out.Decision.Next.String()
	}
	if !out.Blocked() {
		return v, nil
	}
	rec, err := st.LoadMapping(ctx, out.Version.ID)
	if err != nil {
		return v, err
	}
	for _, kind := range facet.Kinds {
		for _, entry := range rec.Result.Entries(kind) {
			if !entry.Unresolved() {
				continue
			}
			src := rec.Result.Source.Option(kind, entry.Source)
			p := PendingEntry{Kind: kind, SourceID: src.ID(), Label: src.Label(), Candidates: []string{}}
			for _, c := range entry.Candidates {
				p.Candidates = append(p.Candidates, rec.Result.Target.Option(kind, c).ID())
			}
			v.Pending = append(v.Pending, p)
		}
	}
	return v, nil
}

func renderOutcome(ctx context.Context, formatter *OutputFormatter, st *store.Store, out *pipeline.Outcome) error {
	view, err := outcomeView(ctx, st, out)
	if err != nil {
		return operationFailed(formatter, err)
	}
	return formatter.Render(view, func(w io.Writer) {
		printOutcome(w, view)
	})
}

func printOutcome(w io.Writer, v OutcomeView) {
	fmt.Fprintf(w, "Version %s of %s: %s\n", v.VersionID, v.DataSetID, v.Status)
	if v.Number != "" {
		fmt.Fprintf(w, "  Number: %s (%s)\n", v.Number, v.Decision.Bump)
	} else if v.Decision.Bump != "" {
		fmt.Fprintf(w, "  Bump:   %s (provisional)\n", v.Decision.Bump)
	}
	if v.Source != "" {
		fmt.Fprintf(w, "  Mapped from: %s\n", v.Source)
	}
	for _, r := range v.Decision.Reasons {
		fmt.Fprintf(w, "  - %s\n", r)
	}
	if len(v.Pending) > 0 {
		fmt.Fprintf(w, "\n%d mapping entr(ies) await resolution:\n", len(v.Pending))
		for _, p := range v.Pending {
			fmt.Fprintf(w, "  %s:%s (%s) candidates: %s\n", p.Kind, p.SourceID, p.Label, strings.Join(p.Candidates, ", "))
		}
		fmt.Fprintf(w, "\nResolve with: dataver resolve %s --map kind:source=target\n", v.VersionID)
	}
}

// operationFailed reports an operation error with its stable code.
// Missing entities and unexpected failures are command errors; refusals
// by the version lifecycle are failures.
func operationFailed(formatter *OutputFormatter, err error) error {
	code := harness.ErrorCode(err)
	switch code {
	case harness.ErrCodeNotFound, harness.ErrCodeUnknown:
		return formatter.Fail(ExitCommandError, code, err)
	default:
		return formatter.Fail(ExitFailure, code, err)
	}
}

// commandContext returns the command's context, or Background when the
// command runs outside ExecuteContext.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
