package preview

import "time"

// Token grants read access to one unpublished version between Activates
// and Expires.
type Token struct {
	ID               string    `json:"id"`
	DataSetVersionID string    `json:"dataSetVersionId"`
	Label            string    `json:"label"`
	Activates        time.Time `json:"activates"`
	Expires          time.Time `json:"expires"`
	CreatedBy        string    `json:"createdBy"`
	CreatedAt        time.Time `json:"created"`
}

// Status is the state of a token at a point in time.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// StatusAt derives the token's status at now. Expiry wins over activation,
// so a token whose window is empty is expired, never pending.
func (t Token) StatusAt(now time.Time) Status {
	switch {
	case !now.Before(t.Expires):
		return StatusExpired
	case now.Before(t.Activates):
		return StatusPending
	}
	return StatusActive
}
