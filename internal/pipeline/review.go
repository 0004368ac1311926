package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/dataver/internal/mapping"
	"github.com/roach88/dataver/internal/version"
)

// Changes rebuilds the ChangeSet and decision of a version from its
// stored mapping. The result is the same on every call.
func (p *Pipeline) Changes(ctx context.Context, versionID string) (*Outcome, error) {
	rec, err := p.store.LoadMapping(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("changes of %s: %w", versionID, err)
	}
	out, err := p.classify(ctx, versionID, rec.SourceVersionID, rec.Result)
	if err != nil {
		return nil, err
	}
	if !out.Version.Number.IsZero() {
		out.Decision.Next = out.Version.Number
	}
	return out, nil
}

// Resolve applies manual mapping decisions to a version in Mapping or
// Processing. When no entries remain unresolved the version is numbered
// and moved to Processing. A version already in Processing is
// re-classified and renumbered if its bump changes; decisions that would
// leave it with unresolved entries are refused.
//
// Resolutions are applied in order and stored together; if any fails
// nothing is stored.
func (p *Pipeline) Resolve(ctx context.Context, versionID string, resolutions []mapping.Resolution) (*Outcome, error) {
	start := time.Now()
	out, err := p.resolve(ctx, versionID, resolutions)
	p.observe(StageResolve, start, err)
	return out, err
}

func (p *Pipeline) resolve(ctx context.Context, versionID string, resolutions []mapping.Resolution) (*Outcome, error) {
	v, err := p.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", versionID, err)
	}
	if v.Status != version.StatusMapping && v.Status != version.StatusProcessing {
		return nil, invalidState(StageResolve, versionID, "version is %s, mapping decisions need %s or %s",
			v.Status, version.StatusMapping, version.StatusProcessing)
	}

	rec, err := p.store.LoadMapping(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", versionID, err)
	}
	r, err := mapping.ResolveAll(rec.Result, resolutions)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", versionID, err)
	}
	if v.Status == version.StatusProcessing && r.Blocked() {
		return nil, invalidState(StageResolve, versionID, "decisions leave %d entries unresolved on a numbered version", r.Unresolved())
	}
	if err := p.store.SaveMapping(ctx, versionID, rec.SourceVersionID, r, p.clock.Now()); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", versionID, err)
	}
	p.logger.Info("mapping decisions applied",
		"data_set", v.DataSetID,
		"version", versionID,
		"decisions", len(resolutions),
		"unresolved", r.Unresolved())

	out, err := p.classify(ctx, versionID, rec.SourceVersionID, r)
	if err != nil {
		return nil, err
	}
	if out.Decision.Bump == version.BumpNone && !out.Decision.Blocked {
		// Every change was resolved away; publish as a patch.
		out.Decision.Bump = version.BumpPatch
	}
	if err := p.finishClassify(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}
