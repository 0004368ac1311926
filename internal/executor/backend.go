package executor

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/ir"
	"github.com/roach88/dataver/internal/queryir"
)

// Backend evaluates queries over the observation rows of one version,
// selected by sel.From.
//
// Rows are flat column maps keyed by the physical column names of
// package facet (row_seq, location_id, f_<column>, i_<column>, ...).
// Select must order rows by sel.OrderBy and then by row_seq ascending.
type Backend interface {
	// Name identifies the backend in metrics and logs.
	Name() string

	// Count returns the number of rows matching sel.Filter.
	Count(ctx context.Context, sel queryir.Select) (int, error)

	// Select returns at most limit matching rows after skipping offset.
	Select(ctx context.Context, sel queryir.Select, limit, offset int) ([]ir.IRObject, error)
}

// MemoryBackend holds observation rows in memory and evaluates predicates
// with queryir.Eval. It is used by tests and for scenario runs.
//
// Thread-safety: MemoryBackend is safe for concurrent use.
type MemoryBackend struct {
	mu   sync.RWMutex
	rows map[string][]ir.IRObject
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{rows: make(map[string][]ir.IRObject)}
}

// Name implements Backend.
func (m *MemoryBackend) Name() string { return "memory" }

// Load replaces the rows of versionID with obs, flattened against set.
func (m *MemoryBackend) Load(versionID string, set *facet.Set, obs []facet.Observation) error {
	rows := make([]ir.IRObject, len(obs))
	for i, o := range obs {
		row, err := o.Columns(set)
		if err != nil {
			return fmt.Errorf("load version %s: %w", versionID, err)
		}
		rows[i] = row
	}
	slices.SortFunc(rows, func(a, b ir.IRObject) int {
		c, _ := ir.Compare(a[facet.ColumnSeq], b[facet.ColumnSeq])
		return c
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[versionID] = rows
	return nil
}

// Drop forgets the rows of versionID.
func (m *MemoryBackend) Drop(versionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, versionID)
}

func (m *MemoryBackend) version(id string) ([]ir.IRObject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("no observations loaded for version %s", id)
	}
	return rows, nil
}

func (m *MemoryBackend) match(ctx context.Context, sel queryir.Select) ([]ir.IRObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := m.version(sel.From)
	if err != nil {
		return nil, err
	}
	var out []ir.IRObject
	for _, row := range rows {
		if sel.Filter == nil || queryir.Eval(sel.Filter, row) {
			out = append(out, row)
		}
	}
	return out, nil
}

// Count implements Backend.
func (m *MemoryBackend) Count(ctx context.Context, sel queryir.Select) (int, error) {
	rows, err := m.match(ctx, sel)
	return len(rows), err
}

// Select implements Backend.
func (m *MemoryBackend) Select(ctx context.Context, sel queryir.Select, limit, offset int) ([]ir.IRObject, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("select: negative limit %d or offset %d", limit, offset)
	}
	rows, err := m.match(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(sel.OrderBy) > 0 {
		slices.SortStableFunc(rows, func(a, b ir.IRObject) int {
			for _, o := range sel.OrderBy {
				c, _ := ir.Compare(a[o.Field], b[o.Field])
				if o.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}
