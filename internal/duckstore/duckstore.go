package duckstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	duckdb "github.com/duckdb/duckdb-go/v2"

	"github.com/roach88/dataver/internal/executor"
	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/ir"
	"github.com/roach88/dataver/internal/queryir"
	"github.com/roach88/dataver/internal/querysql"
)

// Store holds observation tables in a DuckDB database.
//
// Thread-safety: Store is safe for concurrent use. Writes to one version
// must not overlap.
type Store struct {
	db       *sql.DB
	compiler *querysql.SQLCompiler
}

// Open opens the DuckDB database at path; "" opens a private in-memory
// database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect duckdb: %w", err)
	}
	return &Store{db: db, compiler: querysql.NewSQLCompiler(querysql.DialectDuckDB)}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func tableName(versionID string) string {
	return "obs_" + strings.ReplaceAll(versionID, "-", "_")
}

// columns lists the physical columns of a version's table with their
// DuckDB types, in append order.
func columns(set *facet.Set) ([][2]string, error) {
	cols := [][2]string{
		{facet.ColumnSeq, "BIGINT PRIMARY KEY"},
		{facet.ColumnGeographicLevel, "VARCHAR NOT NULL"},
		{facet.ColumnLocation, "VARCHAR NOT NULL"},
		{facet.ColumnTimePeriod, "VARCHAR NOT NULL"},
		{facet.ColumnTimeIdentifier, "VARCHAR NOT NULL"},
		{facet.ColumnTimeOrdinal, "BIGINT NOT NULL"},
	}
	for _, f := range set.Filters {
		cols = append(cols, [2]string{facet.FilterColumn(f.Column), "VARCHAR NOT NULL"})
	}
	for _, i := range set.Indicators {
		cols = append(cols, [2]string{facet.IndicatorColumn(i.Column), "VARCHAR"})
	}
	for _, c := range cols {
		if _, err := querysql.QuoteColumn(c[0]); err != nil {
			return nil, err
		}
	}
	return cols, nil
}

// WriteObservations replaces the table of a version with obs. The table
// is recreated and filled through the appender inside one transaction.
func (s *Store) WriteObservations(ctx context.Context, versionID string, set *facet.Set, obs []facet.Observation) error {
	name := tableName(versionID)
	table, err := querysql.QuoteTable(name)
	if err != nil {
		return fmt.Errorf("write observations: %w", err)
	}
	cols, err := columns(set)
	if err != nil {
		return fmt.Errorf("write observations of %s: %w", versionID, err)
	}
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = `"` + c[0] + `" ` + c[1]
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open duckdb conn: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, `BEGIN TRANSACTION`); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	rollback := func(cause error) error {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `ROLLBACK`)
		return cause
	}

	create := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", table, strings.Join(defs, ", "))
	if _, err := conn.ExecContext(ctx, create); err != nil {
		return rollback(fmt.Errorf("create observations: %w", err))
	}

	err = conn.Raw(func(raw any) error {
		driverConn, ok := raw.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected raw conn type %T", raw)
		}
		appender, err := duckdb.NewAppenderFromConn(driverConn, "", name)
		if err != nil {
			return fmt.Errorf("create appender: %w", err)
		}

		values := make([]driver.Value, len(cols))
		for _, o := range obs {
			if err := ctx.Err(); err != nil {
				_ = appender.Close()
				return err
			}
			row, err := o.Columns(set)
			if err != nil {
				_ = appender.Close()
				return err
			}
			for i, c := range cols {
				if values[i], err = ir.ToParam(row[c[0]]); err != nil {
					_ = appender.Close()
					return fmt.Errorf("observation %d column %s: %w", o.Seq, c[0], err)
				}
			}
			if err := appender.AppendRow(values...); err != nil {
				_ = appender.Close()
				return fmt.Errorf("append observation %d: %w", o.Seq, err)
			}
		}
		if err := appender.Close(); err != nil {
			return fmt.Errorf("flush appender: %w", err)
		}
		return nil
	})
	if err != nil {
		return rollback(fmt.Errorf("write observations of %s: %w", versionID, err))
	}

	if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
		return rollback(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// DropVersion removes the table of a version if it exists.
func (s *Store) DropVersion(ctx context.Context, versionID string) error {
	table, err := querysql.QuoteTable(tableName(versionID))
	if err != nil {
		return fmt.Errorf("drop version: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
		return fmt.Errorf("drop observations of %s: %w", versionID, err)
	}
	return nil
}

// Name implements executor.Backend.
func (s *Store) Name() string { return "duckdb" }

// Count implements executor.Backend.
func (s *Store) Count(ctx context.Context, sel queryir.Select) (int, error) {
	query, params, err := s.compiler.CompileCount(sel, tableName(sel.From))
	if err != nil {
		return 0, fmt.Errorf("compile count: %w", err)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count observations of %s: %w", sel.From, err)
	}
	return int(n), nil
}

// Select implements executor.Backend.
func (s *Store) Select(ctx context.Context, sel queryir.Select, limit, offset int) ([]ir.IRObject, error) {
	query, params, err := s.compiler.CompileSelect(sel, tableName(sel.From), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("compile select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("select observations of %s: %w", sel.From, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("select observations of %s: %w", sel.From, err)
	}
	out := []ir.IRObject{}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		row := make(ir.IRObject, len(cols))
		for i, name := range cols {
			v, err := ir.FromAny(vals[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", name, err)
			}
			row[name] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations of %s: %w", sel.From, err)
	}
	return out, nil
}

var _ executor.Backend = (*Store)(nil)
