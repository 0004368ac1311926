package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/dataver/internal/version"
)

// VersionHistory is the replayed status history of a version.
type VersionHistory struct {
	Version DataSetVersion
	Events  []Event

	// Consistent is true when the events chain from draft to the stored
	// status, each event starting where the previous one ended.
	Consistent bool

	// InFlight is true while the version sits in a working status
	// (mapping or processing).
	InFlight bool
}

// ReplayVersion rebuilds the history of a version from its events and
// checks it against the stored status.
func (s *Store) ReplayVersion(ctx context.Context, versionID string) (VersionHistory, error) {
	v, err := s.GetVersion(ctx, versionID)
	if err != nil {
		return VersionHistory{}, fmt.Errorf("replay version: %w", err)
	}
	events, err := s.ReadEvents(ctx, versionID)
	if err != nil {
		return VersionHistory{}, fmt.Errorf("replay version: %w", err)
	}

	h := VersionHistory{Version: v, Events: events, InFlight: inFlight(v.Status)}
	h.Consistent = replay(events) == v.Status
	return h, nil
}

// replay folds events from draft, returning "" when an event does not
// start from the status the previous one produced.
func replay(events []Event) version.Status {
	status := version.StatusDraft
	for _, e := range events {
		if e.From != status || !version.CanTransition(e.From, e.To) {
			return ""
		}
		status = e.To
	}
	return status
}

func inFlight(s version.Status) bool {
	return s == version.StatusMapping || s == version.StatusProcessing
}

// FindStuckVersions returns versions that entered a working status before
// cutoff and never finished the stage: a mapping version without a stored
// mapping, or a processing version without a number. A pipeline that
// crashed mid-run leaves its version here; recovery marks them failed.
// Versions waiting for resolve or publish are not stuck.
// Results are ordered by data set id, then version id.
func (s *Store) FindStuckVersions(ctx context.Context, cutoff time.Time) ([]DataSetVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id FROM data_set_versions v
		WHERE (
		        (v.status = ? AND NOT EXISTS (SELECT 1 FROM mappings m WHERE m.target_version_id = v.id))
		     OR (v.status = ? AND v.major IS NULL)
		      )
		  AND COALESCE(
		        (SELECT MAX(e.at) FROM version_events e WHERE e.version_id = v.id),
		        v.created_at
		      ) < ?
		ORDER BY v.data_set_id COLLATE BINARY ASC, v.id COLLATE BINARY ASC
	`, string(version.StatusMapping), string(version.StatusProcessing), formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("query stuck versions: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stuck version: %w", err)
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate stuck versions: %w", err)
	}

	out := make([]DataSetVersion, 0, len(ids))
	for _, id := range ids {
		v, err := s.GetVersion(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
