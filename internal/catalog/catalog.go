// Package catalog lists published data sets with search and sorting.
package catalog

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/dataver/internal/criteria"
	"github.com/roach88/dataver/internal/executor"
	"github.com/roach88/dataver/internal/facet"
)

// Entry is one published data set.
type Entry struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Summary          string    `json:"summary"`
	ReleaseVersionID string    `json:"releaseVersionId,omitempty"`
	Order            int       `json:"order"`
	PublishedAt      time.Time `json:"publishedAt"`
	LatestVersionID  string    `json:"latestVersionId"`
	LatestVersion    string    `json:"latestVersion"`
}

// Source returns the data sets that have a live version. An empty
// releaseVersionID means every release.
type Source interface {
	PublishedDataSets(ctx context.Context, releaseVersionID string) ([]Entry, error)
}

// Sort names a listing order.
type Sort string

const (
	// SortTitle orders by title, A to Z.
	SortTitle Sort = "title"

	// SortPublished orders by publication time, newest first.
	SortPublished Sort = "published"

	// SortNatural is the analyst-defined order inside one release.
	SortNatural Sort = "natural"

	// SortRelevance orders search matches by score, best first.
	SortRelevance Sort = "relevance"
)

// ListRequest selects and orders catalog entries. Sort defaults to
// relevance when Search is set and to title otherwise. Direction "asc" or
// "desc" overrides the default direction of the sort.
type ListRequest struct {
	ReleaseVersionID criteria.Option[string] `json:"releaseVersionId,omitzero"`
	Search           string                  `json:"search,omitempty"`
	Sort             Sort                    `json:"sort,omitempty"`
	Direction        string                  `json:"direction,omitempty"`
	Page             int                     `json:"page"`
	PageSize         int                     `json:"pageSize"`
}

// ListResult is one page of entries.
type ListResult struct {
	Results []Entry         `json:"results"`
	Paging  executor.Paging `json:"paging"`
}

type scored struct {
	Entry
	score int
}

// List filters, orders and pages the published data sets of src.
func List(ctx context.Context, src Source, req ListRequest) (*ListResult, error) {
	if req.Page < 1 {
		return nil, &executor.ValidationError{Field: "page", Message: "must be at least 1"}
	}
	if req.PageSize < 1 || req.PageSize > criteria.MaxPageSize {
		return nil, &executor.ValidationError{Field: "pageSize", Message: fmt.Sprintf("must be between 1 and %d", criteria.MaxPageSize)}
	}
	release, hasRelease := req.ReleaseVersionID.Get()
	if hasRelease && release == "" {
		return nil, &executor.ValidationError{Field: "releaseVersionId", Message: "must not be empty"}
	}
	terms := strings.Fields(facet.NormalizeLabel(req.Search))

	sort := req.Sort
	if sort == "" {
		sort = SortTitle
		if len(terms) > 0 {
			sort = SortRelevance
		}
	}
	var desc bool
	switch sort {
	case SortTitle, SortNatural:
	case SortPublished, SortRelevance:
		desc = true
	default:
		return nil, &executor.ValidationError{Field: "sort", Message: fmt.Sprintf("unknown sort %q", req.Sort)}
	}
	switch req.Direction {
	case "":
	case "asc":
		desc = false
	case "desc":
		desc = true
	default:
		return nil, &executor.ValidationError{Field: "direction", Message: "must be asc or desc"}
	}
	if sort == SortNatural && !hasRelease {
		return nil, &executor.ValidationError{Field: "sort", Message: "natural sort requires releaseVersionId"}
	}
	if sort == SortRelevance && len(terms) == 0 {
		return nil, &executor.ValidationError{Field: "sort", Message: "relevance sort requires search"}
	}

	entries, err := src.PublishedDataSets(ctx, release)
	if err != nil {
		return nil, fmt.Errorf("list data sets: %w", err)
	}

	var matches []scored
	for _, e := range entries {
		s, ok := score(e, terms)
		if ok {
			matches = append(matches, scored{Entry: e, score: s})
		}
	}

	slices.SortFunc(matches, func(a, b scored) int {
		var c int
		switch sort {
		case SortTitle:
			c = cmp.Compare(facet.NormalizeLabel(a.Title), facet.NormalizeLabel(b.Title))
		case SortPublished:
			c = a.PublishedAt.Compare(b.PublishedAt)
		case SortNatural:
			c = cmp.Compare(a.Order, b.Order)
		case SortRelevance:
			c = cmp.Compare(a.score, b.score)
		}
		if desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Or(cmp.Compare(a.Title, b.Title), cmp.Compare(a.ID, b.ID))
	})

	total := len(matches)
	res := &ListResult{
		Results: []Entry{},
		Paging: executor.Paging{
			Page:         req.Page,
			PageSize:     req.PageSize,
			TotalResults: total,
			TotalPages:   (total + req.PageSize - 1) / req.PageSize,
		},
	}
	if total == 0 || req.Page-1 > (total-1)/req.PageSize {
		return res, nil
	}
	offset := (req.Page - 1) * req.PageSize
	for i := offset; i < total && i < offset+req.PageSize; i++ {
		res.Results = append(res.Results, matches[i].Entry)
	}
	return res, nil
}

// score counts term occurrences, title matches weighing double. Every
// term must occur in the title or the summary.
func score(e Entry, terms []string) (int, bool) {
	if len(terms) == 0 {
		return 0, true
	}
	title := facet.NormalizeLabel(e.Title)
	summary := facet.NormalizeLabel(e.Summary)
	total := 0
	for _, term := range terms {
		n := 2*strings.Count(title, term) + strings.Count(summary, term)
		if n == 0 {
			return 0, false
		}
		total += n
	}
	return total, true
}
