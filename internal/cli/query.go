package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/dataver/internal/criteria"
	"github.com/roach88/dataver/internal/executor"
	"github.com/roach88/dataver/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Version      string // version label: latest, exact or wildcard
	VersionID    string // unpublished version, requires PreviewToken
	PreviewToken string
	Criteria     string // request file, .json or .yaml
	Indicators   []string
	Page         int
	PageSize     int
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <dataset-id>",
		Short: "Query the observations of a data set version",
		Long: `Query observations of a published data set version.

--version selects the version by label: "latest" (default), an exact
label such as "1.2" or a wildcard such as "1.*". Unpublished versions are
read with --version-id and an active --preview-token.

The request is read from --criteria (JSON or YAML); --indicators, --page
and --page-size override the corresponding fields.

Examples:
  dataver query absence --indicators abs
  dataver query absence --version 1.* --criteria request.yaml
  dataver query absence --version-id 0191e0c4-... --preview-token 0191e0d2-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Version, "version", "latest", "version label")
	cmd.Flags().StringVar(&opts.VersionID, "version-id", "", "unpublished version id (requires --preview-token)")
	cmd.Flags().StringVar(&opts.PreviewToken, "preview-token", "", "preview token id")
	cmd.Flags().StringVar(&opts.Criteria, "criteria", "", "request file (.json, .yaml or .yml)")
	cmd.Flags().StringSliceVar(&opts.Indicators, "indicators", nil, "indicator ids")
	cmd.Flags().IntVar(&opts.Page, "page", 0, "page number")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 0, "page size")
	cmd.MarkFlagsRequiredTogether("version-id", "preview-token")
	cmd.MarkFlagsMutuallyExclusive("version", "version-id")

	return cmd
}

func runQuery(opts *QueryOptions, dataSetID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	req, err := buildRequest(opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBadInput, err)
	}

	return withEnv(opts.RootOptions, func(e *env) error {
		ctx := commandContext(cmd)

		var versionID string
		if opts.VersionID != "" {
			v, err := e.store.GetVersion(ctx, opts.VersionID)
			if err != nil {
				return operationFailed(formatter, err)
			}
			if v.DataSetID != dataSetID {
				return operationFailed(formatter, fmt.Errorf("version %s of %s: %w", opts.VersionID, dataSetID, store.ErrNotFound))
			}
			if _, err := e.previews.Authorize(ctx, opts.PreviewToken, opts.VersionID); err != nil {
				return operationFailed(formatter, err)
			}
			versionID = v.ID
		} else {
			v, err := e.store.ResolveVersion(ctx, dataSetID, opts.Version)
			if err != nil {
				return operationFailed(formatter, err)
			}
			versionID = v.ID
		}
		formatter.VerboseLog("Querying %s version %s", dataSetID, versionID)

		page, err := e.executor.Query(ctx, versionID, req)
		if err != nil {
			if executor.IsExecutionError(err) {
				return formatter.Fail(ExitCommandError, ErrCodeQuery, err)
			}
			return operationFailed(formatter, err)
		}
		return formatter.Render(page, func(w io.Writer) {
			printPage(w, page)
		})
	})
}

// buildRequest reads the request file and applies flag overrides.
func buildRequest(opts *QueryOptions) (criteria.Request, error) {
	var req criteria.Request
	if opts.Criteria != "" {
		data, err := os.ReadFile(opts.Criteria)
		if err != nil {
			return req, fmt.Errorf("read criteria: %w", err)
		}
		if req, err = decodeRequest(opts.Criteria, data); err != nil {
			return req, err
		}
	}
	if len(opts.Indicators) > 0 {
		req.Indicators = opts.Indicators
	}
	if opts.Page > 0 {
		req.Page = criteria.Some(opts.Page)
	}
	if opts.PageSize > 0 {
		req.PageSize = criteria.Some(opts.PageSize)
	}
	return req, nil
}

// decodeRequest decodes a request strictly: unknown fields are errors.
func decodeRequest(path string, data []byte) (criteria.Request, error) {
	var req criteria.Request
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return req, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&req); err != nil && err != io.EOF {
			return req, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return req, fmt.Errorf("criteria file %s: want .json, .yaml or .yml", path)
	}
	return req, nil
}

func printPage(w io.Writer, page *executor.Page) {
	fmt.Fprintf(w, "%s %s (%s): page %d of %d, %d result(s)\n\n",
		page.Meta.DataSetID, page.Meta.Version, page.Meta.VersionID,
		page.Paging.Page, page.Paging.TotalPages, page.Paging.TotalResults)

	indicators := make([]string, len(page.Meta.Indicators))
	for i, ind := range page.Meta.Indicators {
		indicators[i] = ind.ID
	}
	filters := make([]string, len(page.Meta.Filters))
	for i, f := range page.Meta.Filters {
		filters[i] = f.ID
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := append([]string{"TIME PERIOD", "LOCATION"}, upper(filters)...)
	header = append(header, upper(indicators)...)
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")
	for _, r := range page.Results {
		row := []string{r.TimePeriod.Label, r.Location.Label}
		for _, f := range filters {
			row = append(row, r.Filters[f].Label)
		}
		for _, id := range indicators {
			row = append(row, r.Values[id])
		}
		fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	}
	_ = tw.Flush()

	for _, warning := range page.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
}

func upper(ss []string) []string {
	out := slices.Clone(ss)
	for i := range out {
		out[i] = strings.ToUpper(out[i])
	}
	return out
}
