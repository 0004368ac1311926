package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/dataver/internal/catalog"
	"github.com/roach88/dataver/internal/executor"
	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/mapping"
	"github.com/roach88/dataver/internal/version"
)

const dataSetColumns = `id, title, summary, release_version_id, sort_order, latest_live_version_id, published_at, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDataSet(row scanner) (DataSet, error) {
	var (
		ds        DataSet
		live      sql.NullString
		published sql.NullString
		created   string
	)
	if err := row.Scan(&ds.ID, &ds.Title, &ds.Summary, &ds.ReleaseVersionID, &ds.Order, &live, &published, &created); err != nil {
		return DataSet{}, err
	}
	if live.Valid {
		ds.LatestLiveVersionID = &live.String
	}
	var err error
	if ds.PublishedAt, err = parseNullTime(published); err != nil {
		return DataSet{}, err
	}
	if ds.CreatedAt, err = parseTime(created); err != nil {
		return DataSet{}, err
	}
	return ds, nil
}

// GetDataSet retrieves a data set by id.
// Returns an error wrapping ErrNotFound if it does not exist.
func (s *Store) GetDataSet(ctx context.Context, id string) (DataSet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dataSetColumns+` FROM data_sets WHERE id = ?`, id)
	ds, err := scanDataSet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DataSet{}, notFound("data set", id)
	}
	if err != nil {
		return DataSet{}, fmt.Errorf("get data set: %w", err)
	}
	return ds, nil
}

// ListDataSets returns every data set ordered by title, then id.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListDataSets(ctx context.Context) ([]DataSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dataSetColumns+` FROM data_sets
		ORDER BY title COLLATE BINARY ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query data sets: %w", err)
	}
	defer rows.Close()

	out := []DataSet{}
	for rows.Next() {
		ds, err := scanDataSet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan data set: %w", err)
		}
		out = append(out, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate data sets: %w", err)
	}
	return out, nil
}

const versionColumns = `id, data_set_id, major, minor, patch, status, notes, summary, facet_digest, failure, created_at, published_at`

func scanVersion(row scanner) (DataSetVersion, error) {
	var (
		v                   DataSetVersion
		major, minor, patch sql.NullInt64
		status, summary     string
		failure, published  sql.NullString
		created             string
	)
	err := row.Scan(&v.ID, &v.DataSetID, &major, &minor, &patch, &status, &v.Notes,
		&summary, &v.FacetDigest, &failure, &created, &published)
	if err != nil {
		return DataSetVersion{}, err
	}
	if major.Valid {
		v.Number = version.Number{Major: int(major.Int64), Minor: int(minor.Int64), Patch: int(patch.Int64)}
	}
	v.Status = version.Status(status)
	if err := json.Unmarshal([]byte(summary), &v.Summary); err != nil {
		return DataSetVersion{}, fmt.Errorf("unmarshal summary of %s: %w", v.ID, err)
	}
	if failure.Valid {
		v.Failure = json.RawMessage(failure.String)
	}
	if v.CreatedAt, err = parseTime(created); err != nil {
		return DataSetVersion{}, err
	}
	if v.PublishedAt, err = parseNullTime(published); err != nil {
		return DataSetVersion{}, err
	}
	return v, nil
}

// GetVersion retrieves a version by id.
// Returns an error wrapping ErrNotFound if it does not exist.
func (s *Store) GetVersion(ctx context.Context, id string) (DataSetVersion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM data_set_versions WHERE id = ?`, id)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DataSetVersion{}, notFound("version", id)
	}
	if err != nil {
		return DataSetVersion{}, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

// ListVersions returns the versions of a data set in number order.
// Unnumbered versions come last, by creation time then id.
func (s *Store) ListVersions(ctx context.Context, dataSetID string) ([]DataSetVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+` FROM data_set_versions
		WHERE data_set_id = ?
		ORDER BY major IS NULL ASC, major ASC, minor ASC, patch ASC,
		         created_at COLLATE BINARY ASC, id COLLATE BINARY ASC
	`, dataSetID)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	out := []DataSetVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return out, nil
}

// AssignedNumbers returns every number ever assigned in a data set.
func (s *Store) AssignedNumbers(ctx context.Context, dataSetID string) ([]version.Number, error) {
	return assignedNumbers(ctx, s.db, dataSetID, "")
}

// ResolveVersion finds a queryable version of a data set by label:
// "latest", an exact number ("1.2", "1.2.3") or a wildcard ("1.*", "*").
func (s *Store) ResolveVersion(ctx context.Context, dataSetID, label string) (DataSetVersion, error) {
	if version.IsLatest(label) {
		ds, err := s.GetDataSet(ctx, dataSetID)
		if err != nil {
			return DataSetVersion{}, err
		}
		if ds.LatestLiveVersionID == nil {
			return DataSetVersion{}, fmt.Errorf("data set %s has no live version: %w", dataSetID, ErrNotFound)
		}
		return s.GetVersion(ctx, *ds.LatestLiveVersionID)
	}

	sel, err := version.ParseSelector(label)
	if err != nil {
		return DataSetVersion{}, err
	}
	versions, err := s.ListVersions(ctx, dataSetID)
	if err != nil {
		return DataSetVersion{}, err
	}
	var candidates []version.Number
	for _, v := range versions {
		if v.Status.Queryable() && !v.Number.IsZero() {
			candidates = append(candidates, v.Number)
		}
	}
	n, ok := sel.Resolve(candidates)
	if !ok {
		return DataSetVersion{}, fmt.Errorf("data set %s version %s: %w", dataSetID, label, ErrNotFound)
	}
	i := slices.IndexFunc(versions, func(v DataSetVersion) bool { return v.Number == n })
	return versions[i], nil
}

// LoadFacetSet rebuilds the facet set of a version with its original
// indices.
func (s *Store) LoadFacetSet(ctx context.Context, versionID string) (*facet.Set, error) {
	if _, err := s.GetVersion(ctx, versionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, idx, public_id, parent_idx, natural_key, body FROM facet_options
		WHERE version_id = ?
		ORDER BY kind COLLATE BINARY ASC, idx ASC
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("query facet options: %w", err)
	}
	defer rows.Close()

	byKind := make(map[facet.Kind][]optionRow)
	for rows.Next() {
		var (
			r    optionRow
			kind string
		)
		if err := rows.Scan(&kind, &r.idx, &r.publicID, &r.parentIdx, &r.key, &r.body); err != nil {
			return nil, fmt.Errorf("scan facet option: %w", err)
		}
		r.kind = facet.Kind(kind)
		byKind[r.kind] = append(byKind[r.kind], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facet options: %w", err)
	}

	set := facet.NewSet()
	for _, kind := range facet.Kinds {
		for _, r := range byKind[kind] {
			if err := addOption(set, r); err != nil {
				return nil, fmt.Errorf("load facet set of %s: %w", versionID, err)
			}
		}
	}
	return set, nil
}

// MappingRecord is a stored mapping with the version it was computed from.
type MappingRecord struct {
	SourceVersionID string
	Result          *mapping.Result
}

// LoadMapping restores the mapping of a target version together with the
// facet sets it indexes into.
func (s *Store) LoadMapping(ctx context.Context, targetID string) (*MappingRecord, error) {
	var (
		source sql.NullString
		body   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT source_version_id, body FROM mappings WHERE target_version_id = ?
	`, targetID).Scan(&source, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("mapping of version", targetID)
	}
	if err != nil {
		return nil, fmt.Errorf("load mapping: %w", err)
	}

	target, err := s.LoadFacetSet(ctx, targetID)
	if err != nil {
		return nil, err
	}
	var sourceSet *facet.Set
	if source.Valid {
		if sourceSet, err = s.LoadFacetSet(ctx, source.String); err != nil {
			return nil, err
		}
	}
	r, err := mapping.Decode([]byte(body), sourceSet, target)
	if err != nil {
		return nil, fmt.Errorf("load mapping of %s: %w", targetID, err)
	}
	return &MappingRecord{SourceVersionID: source.String, Result: r}, nil
}

// ReadEvents returns the status history of a version, oldest first.
func (s *Store) ReadEvents(ctx context.Context, versionID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, version_id, from_status, to_status, detail, at FROM version_events
		WHERE version_id = ?
		ORDER BY seq ASC
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var (
			e        Event
			from, to string
			at       string
		)
		if err := rows.Scan(&e.Seq, &e.VersionID, &from, &to, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.From, e.To = version.Status(from), version.Status(to)
		if e.At, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// PublishedDataSets lists data sets with a live version for the catalog.
// An empty releaseVersionID lists every release.
func (s *Store) PublishedDataSets(ctx context.Context, releaseVersionID string) ([]catalog.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.summary, d.release_version_id, d.sort_order, d.published_at,
		       v.id, v.major, v.minor, v.patch
		FROM data_sets d
		JOIN data_set_versions v ON v.id = d.latest_live_version_id
		WHERE ? = '' OR d.release_version_id = ?
		ORDER BY d.id COLLATE BINARY ASC
	`, releaseVersionID, releaseVersionID)
	if err != nil {
		return nil, fmt.Errorf("query published data sets: %w", err)
	}
	defer rows.Close()

	out := []catalog.Entry{}
	for rows.Next() {
		var (
			e         catalog.Entry
			published sql.NullString
			n         version.Number
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.Summary, &e.ReleaseVersionID, &e.Order, &published,
			&e.LatestVersionID, &n.Major, &n.Minor, &n.Patch); err != nil {
			return nil, fmt.Errorf("scan published data set: %w", err)
		}
		at, err := parseNullTime(published)
		if err != nil {
			return nil, err
		}
		if at != nil {
			e.PublishedAt = *at
		}
		e.LatestVersion = n.String()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate published data sets: %w", err)
	}
	return out, nil
}

// LoadMeta implements executor.MetaLoader.
func (s *Store) LoadMeta(ctx context.Context, versionID string) (*executor.VersionMeta, error) {
	v, err := s.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	set, err := s.LoadFacetSet(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return &executor.VersionMeta{
		VersionID: v.ID,
		DataSetID: v.DataSetID,
		Label:     v.PublicVersion(),
		Status:    v.Status,
		Facets:    set,
	}, nil
}

var (
	_ catalog.Source      = (*Store)(nil)
	_ executor.MetaLoader = (*Store)(nil)
)

// VersionStatus returns the status of a version.
// Returns an error wrapping ErrNotFound if it does not exist.
func (s *Store) VersionStatus(ctx context.Context, versionID string) (version.Status, error) {
	return versionStatus(ctx, s.db, versionID)
}
