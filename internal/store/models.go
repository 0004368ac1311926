package store

import (
	"encoding/json"
	"time"

	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/version"
)

// DataSet is a published statistical data set and its live pointer.
type DataSet struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Summary          string `json:"summary"`
	ReleaseVersionID string `json:"releaseVersionId,omitempty"`
	Order            int    `json:"order"`

	// LatestLiveVersionID is nil until the first version is published and
	// only ever changes through Publish.
	LatestLiveVersionID *string    `json:"latestLiveVersionId,omitempty"`
	PublishedAt         *time.Time `json:"publishedAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// DataSetVersion is one version of a data set. Number is zero until the
// change classifier assigns it.
type DataSetVersion struct {
	ID          string         `json:"id"`
	DataSetID   string         `json:"dataSetId"`
	Number      version.Number `json:"number"`
	Status      version.Status `json:"status"`
	Notes       string         `json:"notes,omitempty"`
	Summary     facet.Summary  `json:"summary"`
	FacetDigest string         `json:"facetDigest,omitempty"`

	// Failure holds the diagnostic of a failed version as JSON.
	Failure     json.RawMessage `json:"failure,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	PublishedAt *time.Time      `json:"publishedAt,omitempty"`
}

// PublicVersion returns the version label, or "" while unnumbered.
func (v DataSetVersion) PublicVersion() string {
	if v.Number.IsZero() {
		return ""
	}
	return v.Number.String()
}

// Event is one recorded status transition of a version.
type Event struct {
	Seq       int64          `json:"seq"`
	VersionID string         `json:"versionId"`
	From      version.Status `json:"from"`
	To        version.Status `json:"to"`
	Detail    string         `json:"detail,omitempty"`
	At        time.Time      `json:"at"`
}
