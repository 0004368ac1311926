package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/dataver/internal/store"
	"github.com/roach88/dataver/internal/version"
)

// Publish makes a Processing version the live version of its data set.
//
// The live pointer is swapped only if it still points at the version the
// mapping was computed against; otherwise store.ErrPublishConflict is
// returned and the version stays in Processing for a re-ingest. A version
// with unresolved mapping entries fails with ErrMappingAmbiguous.
func (p *Pipeline) Publish(ctx context.Context, versionID string) (store.DataSetVersion, error) {
	start := time.Now()
	v, err := p.publish(ctx, versionID)
	p.observe(StagePublish, start, err)
	return v, err
}

func (p *Pipeline) publish(ctx context.Context, versionID string) (store.DataSetVersion, error) {
	v, err := p.store.GetVersion(ctx, versionID)
	if err != nil {
		return store.DataSetVersion{}, fmt.Errorf("publish %s: %w", versionID, err)
	}
	rec, err := p.store.LoadMapping(ctx, versionID)
	if err != nil {
		return store.DataSetVersion{}, fmt.Errorf("publish %s: %w", versionID, err)
	}
	if rec.Result.Blocked() {
		return store.DataSetVersion{}, fmt.Errorf("publish %s: %w: %d entries", versionID, ErrMappingAmbiguous, rec.Result.Unresolved())
	}
	if v.Status != version.StatusProcessing {
		return store.DataSetVersion{}, invalidState(StagePublish, versionID, "version is %s, publishing needs %s", v.Status, version.StatusProcessing)
	}

	if err := p.store.Publish(ctx, versionID, rec.SourceVersionID, p.clock.Now()); err != nil {
		return store.DataSetVersion{}, fmt.Errorf("publish %s: %w", versionID, err)
	}
	v, err = p.store.GetVersion(ctx, versionID)
	if err != nil {
		return store.DataSetVersion{}, fmt.Errorf("publish %s: %w", versionID, err)
	}
	p.logger.Info("version published",
		"data_set", v.DataSetID,
		"version", versionID,
		"number", v.PublicVersion())
	return v, nil
}

// Cancel abandons a version that has not been published.
func (p *Pipeline) Cancel(ctx context.Context, versionID, reason string) error {
	if err := p.store.Transition(ctx, versionID, version.StatusCancelled, reason, p.clock.Now()); err != nil {
		return fmt.Errorf("cancel %s: %w", versionID, err)
	}
	p.logger.Info("version cancelled", "version", versionID, "reason", reason)
	return nil
}

// Deprecate flags a published version. It stays queryable and its
// responses carry a deprecation warning.
func (p *Pipeline) Deprecate(ctx context.Context, versionID, reason string) error {
	if err := p.store.Transition(ctx, versionID, version.StatusDeprecated, reason, p.clock.Now()); err != nil {
		return fmt.Errorf("deprecate %s: %w", versionID, err)
	}
	p.logger.Info("version deprecated", "version", versionID, "reason", reason)
	return nil
}

// Recover fails versions left in a working status for longer than
// staleAfter, e.g. by a process that crashed mid-stage. It returns the
// ids of the versions it failed.
func (p *Pipeline) Recover(ctx context.Context, staleAfter time.Duration) ([]string, error) {
	start := time.Now()
	ids, err := p.recover(ctx, staleAfter)
	p.observe(StageRecover, start, err)
	return ids, err
}

func (p *Pipeline) recover(ctx context.Context, staleAfter time.Duration) ([]string, error) {
	now := p.clock.Now()
	stuck, err := p.store.FindStuckVersions(ctx, now.Add(-staleAfter))
	if err != nil {
		return nil, fmt.Errorf("recover: %w", err)
	}
	ids := []string{}
	for _, v := range stuck {
		detail := fmt.Sprintf(`{"reason":"abandoned in %s"}`, v.Status)
		if err := p.store.Transition(ctx, v.ID, version.StatusFailed, detail, now); err != nil {
			return ids, fmt.Errorf("recover %s: %w", v.ID, err)
		}
		p.logger.Warn("abandoned version failed",
			"data_set", v.DataSetID,
			"version", v.ID,
			"status", v.Status)
		ids = append(ids, v.ID)
	}
	return ids, nil
}
