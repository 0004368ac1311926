package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/dataver/internal/changes"
	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/mapping"
	"github.com/roach88/dataver/internal/store"
	"github.com/roach88/dataver/internal/version"
)

// IngestRequest is one upload of a data set's facets and rows.
type IngestRequest struct {
	DataSet      store.DataSet
	Facets       *facet.Set
	Observations []facet.Observation
	Notes        string

	// Patch republishes an unchanged facet set as a patch version instead
	// of discarding the draft.
	Patch bool
}

// Outcome is the state of a version after a stage.
type Outcome struct {
	Version         store.DataSetVersion
	SourceVersionID string
	ChangeSet       *changes.ChangeSet
	Decision        changes.Decision
}

// Blocked reports whether the version awaits mapping decisions.
func (o *Outcome) Blocked() bool { return o.Decision.Blocked }

// Ingest creates a draft version of req.DataSet, maps it against the
// live version and classifies the change.
//
// An unblocked version is numbered and left in Processing, ready to
// publish. A blocked version stays in Mapping until Resolve. An ingestion
// with no changes is discarded with ErrCodeNoChange unless req.Patch is
// set.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*Outcome, error) {
	start := time.Now()
	out, err := p.ingest(ctx, req)
	p.observe(StageIngest, start, err)
	return out, err
}

func (p *Pipeline) ingest(ctx context.Context, req IngestRequest) (*Outcome, error) {
	if req.Facets == nil {
		return nil, fmt.Errorf("ingest %s: nil facet set", req.DataSet.ID)
	}
	if n := len(req.Observations); n > p.maxObservations {
		return nil, newQuotaError(req.DataSet.ID, n, p.maxObservations)
	}

	now := p.clock.Now()
	ds := req.DataSet
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = now
	}
	if err := p.store.CreateDataSet(ctx, ds); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	v := store.DataSetVersion{ID: p.ids.Generate(), DataSetID: ds.ID, Notes: req.Notes, CreatedAt: now}
	if err := p.store.CreateVersion(ctx, v); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	log := p.logger.With("data_set", ds.ID, "version", v.ID)
	log.Info("draft created", "observations", len(req.Observations))

	if err := p.store.SaveFacetSet(ctx, v.ID, req.Facets); err != nil {
		p.abort(ctx, StageIngest, v.ID, err)
		return nil, fmt.Errorf("ingest %s: %w", v.ID, err)
	}
	if err := p.writeObservations(ctx, v.ID, req.Facets, req.Observations); err != nil {
		p.abort(ctx, StageIngest, v.ID, err)
		return nil, fmt.Errorf("ingest %s: %w", v.ID, err)
	}

	out, err := p.mapVersion(ctx, v.ID, ds.ID, req.Facets)
	if err != nil {
		return nil, err
	}

	if out.Decision.Bump == version.BumpNone && !out.Decision.Blocked {
		if !req.Patch {
			if err := p.discard(context.WithoutCancel(ctx), v.ID); err != nil {
				return nil, fmt.Errorf("discard unchanged draft %s: %w", v.ID, err)
			}
			log.Info("unchanged draft discarded")
			return nil, &StageError{
				Code:      ErrCodeNoChange,
				Stage:     StageClassify,
				VersionID: v.ID,
				Message:   "facet set is identical to the live version; pass a patch request to republish",
			}
		}
		out.Decision.Bump = version.BumpPatch
		out.Decision.Reasons = []string{"data republished with an unchanged facet set"}
	}

	if err := p.finishClassify(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) writeObservations(ctx context.Context, versionID string, set *facet.Set, obs []facet.Observation) error {
	if err := p.store.WriteObservations(ctx, versionID, set, obs); err != nil {
		return err
	}
	for _, sink := range p.sinks {
		if err := sink.WriteObservations(ctx, versionID, set, obs); err != nil {
			return fmt.Errorf("observation sink: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) discard(ctx context.Context, versionID string) error {
	if err := p.store.DeleteVersion(ctx, versionID); err != nil {
		return err
	}
	for _, sink := range p.sinks {
		if err := sink.DropVersion(ctx, versionID); err != nil {
			return fmt.Errorf("observation sink: %w", err)
		}
	}
	return nil
}

// mapVersion moves a draft to Mapping, maps it against the live version
// and stores the mapping.
func (p *Pipeline) mapVersion(ctx context.Context, versionID, dataSetID string, target *facet.Set) (*Outcome, error) {
	start := time.Now()
	out, err := p.doMap(ctx, versionID, dataSetID, target)
	p.observe(StageMap, start, err)
	return out, err
}

func (p *Pipeline) doMap(ctx context.Context, versionID, dataSetID string, target *facet.Set) (*Outcome, error) {
	if err := p.store.Transition(ctx, versionID, version.StatusMapping, "", p.clock.Now()); err != nil {
		return nil, fmt.Errorf("map %s: %w", versionID, err)
	}

	ds, err := p.store.GetDataSet(ctx, dataSetID)
	if err != nil {
		p.abort(ctx, StageMap, versionID, err)
		return nil, fmt.Errorf("map %s: %w", versionID, err)
	}
	var (
		sourceID string
		source   *facet.Set
	)
	if ds.LatestLiveVersionID != nil {
		sourceID = *ds.LatestLiveVersionID
		if source, err = p.store.LoadFacetSet(ctx, sourceID); err != nil {
			p.abort(ctx, StageMap, versionID, err)
			return nil, fmt.Errorf("map %s: %w", versionID, err)
		}
	}

	r, err := p.mapper.Map(ctx, source, target)
	if err != nil {
		p.abort(ctx, StageMap, versionID, err)
		if mapping.IsMappingFailed(err) {
			return nil, &StageError{
				Code:      ErrCodeMappingFailed,
				Stage:     StageMap,
				VersionID: versionID,
				Message:   "option without a natural key",
				Err:       err,
			}
		}
		return nil, fmt.Errorf("map %s: %w", versionID, err)
	}
	if err := p.store.SaveMapping(ctx, versionID, sourceID, r, p.clock.Now()); err != nil {
		p.abort(ctx, StageMap, versionID, err)
		return nil, fmt.Errorf("map %s: %w", versionID, err)
	}

	return p.classify(ctx, versionID, sourceID, r)
}

// classify builds the ChangeSet of a stored mapping and decides the bump.
func (p *Pipeline) classify(ctx context.Context, versionID, sourceID string, r *mapping.Result) (*Outcome, error) {
	v, err := p.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", versionID, err)
	}
	base, err := p.base(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", versionID, err)
	}
	cs := changes.Build(r)
	d := changes.Classify(cs, base)

	p.logger.Info("version classified",
		"data_set", v.DataSetID,
		"version", versionID,
		"bump", d.Bump,
		"blocked", d.Blocked,
		"unresolved", d.Unresolved)
	return &Outcome{Version: v, SourceVersionID: sourceID, ChangeSet: cs, Decision: d}, nil
}

// base is the greatest number assigned in the data set to any version
// other than v, including cancelled and failed ones.
func (p *Pipeline) base(ctx context.Context, v store.DataSetVersion) (version.Number, error) {
	nums, err := p.store.AssignedNumbers(ctx, v.DataSetID)
	if err != nil {
		return version.Number{}, err
	}
	var others []version.Number
	for _, n := range nums {
		if n != v.Number {
			others = append(others, n)
		}
	}
	base, _ := version.Max(others)
	return base, nil
}

// finishClassify numbers an unblocked version and moves it to Processing.
// A blocked version is left in Mapping.
func (p *Pipeline) finishClassify(ctx context.Context, out *Outcome) error {
	start := time.Now()
	err := p.doFinishClassify(ctx, out)
	p.observe(StageClassify, start, err)
	return err
}

func (p *Pipeline) doFinishClassify(ctx context.Context, out *Outcome) error {
	if out.Decision.Blocked {
		return nil
	}
	id := out.Version.ID
	base, err := p.base(ctx, out.Version)
	if err != nil {
		return fmt.Errorf("classify %s: %w", id, err)
	}
	out.Decision.Next = changes.NextNumber(base, out.Decision.Bump)

	if err := p.store.AssignNumber(ctx, id, out.Decision.Next); err != nil {
		if errors.Is(err, version.ErrDuplicateVersion) {
			// Another draft of the data set took the number first.
			return fmt.Errorf("classify %s: %w", id, err)
		}
		p.abort(ctx, StageClassify, id, err)
		return fmt.Errorf("classify %s: %w", id, err)
	}
	if out.Version.Status == version.StatusProcessing {
		p.logger.Info("version renumbered",
			"data_set", out.Version.DataSetID,
			"version", id,
			"from", out.Version.Number,
			"to", out.Decision.Next)
	} else if err := p.store.Transition(ctx, id, version.StatusProcessing, string(out.Decision.Bump), p.clock.Now()); err != nil {
		return fmt.Errorf("classify %s: %w", id, err)
	}

	v, err := p.store.GetVersion(ctx, id)
	if err != nil {
		return fmt.Errorf("classify %s: %w", id, err)
	}
	out.Version = v
	return nil
}
