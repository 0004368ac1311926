package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/dataver/internal/executor"
	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/ir"
	"github.com/roach88/dataver/internal/queryir"
	"github.com/roach88/dataver/internal/querysql"
)

// observationTableName is the unquoted table holding the rows of a version.
func observationTableName(versionID string) string {
	return "obs_" + strings.ReplaceAll(versionID, "-", "_")
}

// observationTable returns the validated, quoted table name of a version.
func observationTable(versionID string) (string, error) {
	return querysql.QuoteTable(observationTableName(versionID))
}

// observationSchema lists the physical columns of a version's table in
// creation order with their SQLite types.
func observationSchema(set *facet.Set) ([][2]string, error) {
	cols := [][2]string{
		{facet.ColumnSeq, "INTEGER PRIMARY KEY"},
		{facet.ColumnGeographicLevel, "TEXT NOT NULL"},
		{facet.ColumnLocation, "TEXT NOT NULL"},
		{facet.ColumnTimePeriod, "TEXT NOT NULL"},
		{facet.ColumnTimeIdentifier, "TEXT NOT NULL"},
		{facet.ColumnTimeOrdinal, "INTEGER NOT NULL"},
	}
	for _, f := range set.Filters {
		cols = append(cols, [2]string{facet.FilterColumn(f.Column), "TEXT NOT NULL DEFAULT ''"})
	}
	for _, i := range set.Indicators {
		cols = append(cols, [2]string{facet.IndicatorColumn(i.Column), "TEXT"})
	}
	for _, c := range cols {
		if _, err := querysql.QuoteColumn(c[0]); err != nil {
			return nil, err
		}
	}
	return cols, nil
}

// WriteObservations replaces the observation table of a version with obs.
// The table is rebuilt in one transaction so readers never see a partial
// load.
func (s *Store) WriteObservations(ctx context.Context, versionID string, set *facet.Set, obs []facet.Observation) error {
	table, err := observationTable(versionID)
	if err != nil {
		return fmt.Errorf("write observations: %w", err)
	}
	schema, err := observationSchema(set)
	if err != nil {
		return fmt.Errorf("write observations of %s: %w", versionID, err)
	}

	defs := make([]string, len(schema))
	names := make([]string, len(schema))
	marks := make([]string, len(schema))
	for i, c := range schema {
		defs[i] = `"` + c[0] + `" ` + c[1]
		names[i] = `"` + c[0] + `"`
		marks[i] = "?"
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := versionStatus(ctx, tx, versionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
			return fmt.Errorf("drop observations: %w", err)
		}
		create := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))
		if _, err := tx.ExecContext(ctx, create); err != nil {
			return fmt.Errorf("create observations: %w", err)
		}
		insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), strings.Join(marks, ", "))
		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return fmt.Errorf("prepare observation insert: %w", err)
		}
		defer stmt.Close()

		args := make([]any, len(schema))
		for _, o := range obs {
			row, err := o.Columns(set)
			if err != nil {
				return fmt.Errorf("write observations of %s: %w", versionID, err)
			}
			for i, c := range schema {
				if args[i], err = ir.ToParam(row[c[0]]); err != nil {
					return fmt.Errorf("observation %d column %s: %w", o.Seq, c[0], err)
				}
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("insert observation %d: %w", o.Seq, err)
			}
		}
		return nil
	})
}

// ObservationBackend evaluates queries against the observation tables of
// a Store. Predicates are compiled to parameterized SQLite SQL.
type ObservationBackend struct {
	store    *Store
	compiler *querysql.SQLCompiler
}

// NewObservationBackend creates a backend over s.
func NewObservationBackend(s *Store) *ObservationBackend {
	return &ObservationBackend{store: s, compiler: querysql.NewSQLCompiler(querysql.DialectSQLite)}
}

// Name implements executor.Backend.
func (b *ObservationBackend) Name() string { return "sqlite" }

// Count implements executor.Backend.
func (b *ObservationBackend) Count(ctx context.Context, sel queryir.Select) (int, error) {
	query, params, err := b.compiler.CompileCount(sel, observationTableName(sel.From))
	if err != nil {
		return 0, fmt.Errorf("compile count: %w", err)
	}
	var n int
	if err := b.store.db.QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count observations of %s: %w", sel.From, classify(err))
	}
	return n, nil
}

// Select implements executor.Backend.
func (b *ObservationBackend) Select(ctx context.Context, sel queryir.Select, limit, offset int) ([]ir.IRObject, error) {
	query, params, err := b.compiler.CompileSelect(sel, observationTableName(sel.From), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("compile select: %w", err)
	}
	rows, err := b.store.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("select observations of %s: %w", sel.From, classify(err))
	}
	defer rows.Close()

	out, err := scanObservations(rows)
	if err != nil {
		return nil, fmt.Errorf("select observations of %s: %w", sel.From, classify(err))
	}
	return out, nil
}

// scanObservations reads every row into a column map. SQLite returns
// INTEGER columns as int64, TEXT as string or []byte and NULL as nil.
func scanObservations(rows *sql.Rows) ([]ir.IRObject, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []ir.IRObject{}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(ir.IRObject, len(cols))
		for i, name := range cols {
			switch v := vals[i].(type) {
			case nil:
				row[name] = ir.IRNull{}
			case []byte:
				row[name] = ir.IRString(v)
			default:
				iv, err := ir.FromAny(v)
				if err != nil {
					return nil, fmt.Errorf("column %s: %w", name, err)
				}
				row[name] = iv
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var _ executor.Backend = (*ObservationBackend)(nil)
