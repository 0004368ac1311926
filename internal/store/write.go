package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/mapping"
	"github.com/roach88/dataver/internal/version"
)

// CreateDataSet inserts a data set.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - re-creating an existing
// data set is silently ignored.
func (s *Store) CreateDataSet(ctx context.Context, ds DataSet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO data_sets (id, title, summary, release_version_id, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ds.ID, ds.Title, ds.Summary, ds.ReleaseVersionID, ds.Order, formatTime(ds.CreatedAt))
	if err != nil {
		return fmt.Errorf("create data set: %w", err)
	}
	return nil
}

// CreateVersion inserts a draft version. Its number is assigned later with
// AssignNumber. Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) CreateVersion(ctx context.Context, v DataSetVersion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO data_set_versions (id, data_set_id, status, notes, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, v.ID, v.DataSetID, string(version.StatusDraft), v.Notes, formatTime(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("create version: %w", err)
	}
	return nil
}

// AssignNumber gives a version its number. The number must be greater
// than every number ever assigned in the data set, including numbers of
// cancelled and failed versions; the unique index backs the check.
func (s *Store) AssignNumber(ctx context.Context, versionID string, n version.Number) error {
	if n.IsZero() {
		return fmt.Errorf("assign number to %s: zero version number", versionID)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var dataSetID string
		err := tx.QueryRowContext(ctx, `SELECT data_set_id FROM data_set_versions WHERE id = ?`, versionID).Scan(&dataSetID)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("version", versionID)
		}
		if err != nil {
			return fmt.Errorf("assign number: %w", err)
		}

		existing, err := assignedNumbers(ctx, tx, dataSetID, versionID)
		if err != nil {
			return err
		}
		if err := version.Validate(existing, n); err != nil {
			return fmt.Errorf("assign number to %s: %w", versionID, err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE data_set_versions SET major = ?, minor = ?, patch = ? WHERE id = ?
		`, n.Major, n.Minor, n.Patch, versionID)
		if isUniqueViolation(err) {
			return fmt.Errorf("assign number to %s: %w: %s", versionID, version.ErrDuplicateVersion, n)
		}
		if err != nil {
			return fmt.Errorf("assign number: %w", err)
		}
		return nil
	})
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// assignedNumbers returns the numbers of every numbered version of a data
// set other than exceptID, in ascending order.
func assignedNumbers(ctx context.Context, q queryer, dataSetID, exceptID string) ([]version.Number, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT major, minor, patch FROM data_set_versions
		WHERE data_set_id = ? AND id != ? AND major IS NOT NULL
		ORDER BY major ASC, minor ASC, patch ASC
	`, dataSetID, exceptID)
	if err != nil {
		return nil, fmt.Errorf("query version numbers: %w", err)
	}
	defer rows.Close()

	nums := []version.Number{}
	for rows.Next() {
		var n version.Number
		if err := rows.Scan(&n.Major, &n.Minor, &n.Patch); err != nil {
			return nil, fmt.Errorf("scan version number: %w", err)
		}
		nums = append(nums, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate version numbers: %w", err)
	}
	return nums, nil
}

// SaveFacetSet replaces the facet options of a version and records its
// summary and digest. The write is one transaction, so a failed save
// leaves the previous set intact.
func (s *Store) SaveFacetSet(ctx context.Context, versionID string, set *facet.Set) error {
	digest, err := set.Digest()
	if err != nil && !errors.Is(err, facet.ErrMalformedKey) {
		return fmt.Errorf("save facet set: %w", err)
	}
	summary, err := json.Marshal(set.Summarize())
	if err != nil {
		return fmt.Errorf("save facet set: marshal summary: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE data_set_versions SET summary = ?, facet_digest = ? WHERE id = ?
		`, string(summary), digest, versionID)
		if err != nil {
			return fmt.Errorf("save facet set: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound("version", versionID)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM facet_options WHERE version_id = ?`, versionID); err != nil {
			return fmt.Errorf("save facet set: clear: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO facet_options (version_id, kind, idx, public_id, parent_idx, natural_key, body)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("save facet set: prepare: %w", err)
		}
		defer stmt.Close()

		for _, kind := range facet.Kinds {
			for idx := range set.Len(kind) {
				row, err := marshalOption(set, kind, idx)
				if err != nil {
					return fmt.Errorf("save facet set: %w", err)
				}
				if _, err := stmt.ExecContext(ctx, versionID, string(row.kind), row.idx, row.publicID, row.parentIdx, row.key, row.body); err != nil {
					return fmt.Errorf("save facet set: insert %s %s: %w", kind, row.publicID, err)
				}
			}
		}
		return nil
	})
}

// SaveMapping upserts the mapping of target against source ("" for a
// first version). The mapping of a published target cannot change.
func (s *Store) SaveMapping(ctx context.Context, targetID, sourceID string, r *mapping.Result, at time.Time) error {
	body, err := r.Encode()
	if err != nil {
		return fmt.Errorf("save mapping: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		status, err := versionStatus(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if status == version.StatusPublished || status == version.StatusDeprecated {
			return fmt.Errorf("save mapping of %s: %w", targetID, ErrMappingImmutable)
		}
		blocked := 0
		if r.Blocked() {
			blocked = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO mappings (target_version_id, source_version_id, body, blocked, unresolved, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(target_version_id) DO UPDATE SET
				source_version_id = excluded.source_version_id,
				body = excluded.body,
				blocked = excluded.blocked,
				unresolved = excluded.unresolved,
				updated_at = excluded.updated_at
		`, targetID, nullString(sourceID), string(body), blocked, r.Unresolved(), formatTime(at))
		if err != nil {
			return fmt.Errorf("save mapping: %w", err)
		}
		return nil
	})
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func versionStatus(ctx context.Context, q rowQueryer, versionID string) (version.Status, error) {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM data_set_versions WHERE id = ?`, versionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("version", versionID)
	}
	if err != nil {
		return "", fmt.Errorf("read status of %s: %w", versionID, err)
	}
	return version.Status(status), nil
}

// Transition moves a version to status to, recording an event. A move to
// Failed stores detail as the version's failure diagnostic.
func (s *Store) Transition(ctx context.Context, versionID string, to version.Status, detail string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return transition(ctx, tx, versionID, to, detail, at)
	})
}

func transition(ctx context.Context, tx *sql.Tx, versionID string, to version.Status, detail string, at time.Time) error {
	from, err := versionStatus(ctx, tx, versionID)
	if err != nil {
		return err
	}
	if err := version.CheckTransition(from, to); err != nil {
		return fmt.Errorf("version %s: %w", versionID, err)
	}

	if to == version.StatusFailed {
		_, err = tx.ExecContext(ctx, `UPDATE data_set_versions SET status = ?, failure = ? WHERE id = ?`,
			string(to), nullString(detail), versionID)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE data_set_versions SET status = ? WHERE id = ?`, string(to), versionID)
	}
	if err != nil {
		return fmt.Errorf("update status of %s: %w", versionID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO version_events (version_id, from_status, to_status, detail, at)
		VALUES (?, ?, ?, ?, ?)
	`, versionID, string(from), string(to), detail, formatTime(at))
	if err != nil {
		return fmt.Errorf("record event for %s: %w", versionID, err)
	}
	return nil
}

// Publish makes a Processing version the latest live version of its data
// set. expectedLive is the live version id the caller mapped against, ""
// when there was none. If the live pointer moved since, nothing changes
// and ErrPublishConflict is returned.
func (s *Store) Publish(ctx context.Context, versionID, expectedLive string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			dataSetID string
			major     sql.NullInt64
		)
		err := tx.QueryRowContext(ctx, `SELECT data_set_id, major FROM data_set_versions WHERE id = ?`, versionID).Scan(&dataSetID, &major)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("version", versionID)
		}
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		if !major.Valid {
			return fmt.Errorf("publish %s: version has no number", versionID)
		}

		if err := transition(ctx, tx, versionID, version.StatusPublished, "", at); err != nil {
			return fmt.Errorf("publish: %w", err)
		}

		// Compare-and-swap on the live pointer.
		res, err := tx.ExecContext(ctx, `
			UPDATE data_sets SET latest_live_version_id = ?, published_at = ?
			WHERE id = ? AND latest_live_version_id IS ?
		`, versionID, formatTime(at), dataSetID, nullString(expectedLive))
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("publish %s: %w", versionID, ErrPublishConflict)
		}

		_, err = tx.ExecContext(ctx, `UPDATE data_set_versions SET published_at = ? WHERE id = ?`, formatTime(at), versionID)
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		return nil
	})
}

// DeleteVersion removes an unpublished version with its facet options,
// mapping, tokens, events and observation table.
func (s *Store) DeleteVersion(ctx context.Context, versionID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		status, err := versionStatus(ctx, tx, versionID)
		if err != nil {
			return err
		}
		if status.Queryable() {
			return fmt.Errorf("delete version %s: version is %s", versionID, status)
		}
		table, err := observationTable(versionID)
		if err != nil {
			return fmt.Errorf("delete version: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
			return fmt.Errorf("delete version: drop observations: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM data_set_versions WHERE id = ?`, versionID); err != nil {
			return fmt.Errorf("delete version: %w", err)
		}
		return nil
	})
}
