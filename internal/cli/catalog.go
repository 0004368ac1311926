package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/dataver/internal/catalog"
	"github.com/roach88/dataver/internal/criteria"
)

// CatalogOptions holds flags for the catalog command.
type CatalogOptions struct {
	*RootOptions
	Release   string
	Search    string
	Sort      string
	Direction string
	Page      int
	PageSize  int
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CatalogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List published data sets",
		Long: `List the data sets that have a live version.

Examples:
  dataver catalog
  dataver catalog --search absence
  dataver catalog --release 2024-release --sort natural`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Release, "release", "", "only data sets of this release")
	cmd.Flags().StringVar(&opts.Search, "search", "", "search terms")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "title|published|natural|relevance")
	cmd.Flags().StringVar(&opts.Direction, "direction", "", "asc|desc")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", criteria.DefaultPageSize, "page size")

	return cmd
}

func runCatalog(opts *CatalogOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	req := catalog.ListRequest{
		Search:    opts.Search,
		Sort:      catalog.Sort(opts.Sort),
		Direction: opts.Direction,
		Page:      opts.Page,
		PageSize:  opts.PageSize,
	}
	if cmd.Flags().Changed("release") {
		req.ReleaseVersionID = criteria.Some(opts.Release)
	}

	return withEnv(opts.RootOptions, func(e *env) error {
		result, err := catalog.List(commandContext(cmd), e.store, req)
		if err != nil {
			return operationFailed(formatter, err)
		}
		return formatter.Render(result, func(w io.Writer) {
			printCatalog(w, result)
		})
	})
}

func printCatalog(w io.Writer, result *catalog.ListResult) {
	if len(result.Results) == 0 {
		fmt.Fprintln(w, "No published data sets.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tVERSION\tPUBLISHED\t")
	for _, e := range result.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", e.ID, e.Title, e.LatestVersion, e.PublishedAt.Format("2006-01-02"))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\nPage %d of %d (%d data set(s))\n",
		result.Paging.Page, result.Paging.TotalPages, result.Paging.TotalResults)
}
