package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/dataver/internal/facet"
)

// Timestamps are stored as RFC 3339 text in UTC so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// optionRow is the stored form of one facet option.
type optionRow struct {
	kind      facet.Kind
	idx       int
	publicID  string
	parentIdx sql.NullInt64
	key       string
	body      string
}

// marshalOption encodes the option of kind at idx. A malformed natural key
// is stored as "": the mapping engine reports it with a diagnostic later.
func marshalOption(set *facet.Set, kind facet.Kind, idx int) (optionRow, error) {
	opt := set.Option(kind, idx)
	row := optionRow{kind: kind, idx: idx, publicID: opt.ID()}

	key, err := opt.NaturalKey()
	switch {
	case errors.Is(err, facet.ErrMalformedKey):
	case err != nil:
		return optionRow{}, fmt.Errorf("%s %s: %w", kind, opt.ID(), err)
	default:
		row.key = string(key)
	}

	var body any = opt
	switch o := opt.(type) {
	case *facet.FilterOption:
		row.parentIdx = sql.NullInt64{Int64: int64(o.Filter), Valid: true}
	case *facet.TimePeriod:
		body = o.Period
	}
	data, err := json.Marshal(body)
	if err != nil {
		return optionRow{}, fmt.Errorf("marshal %s %s: %w", kind, opt.ID(), err)
	}
	row.body = string(data)
	return row, nil
}

// addOption decodes a stored option into set. Rows must arrive in
// facet.Kinds order and by index, so parents exist before their options
// and indices are reproduced exactly.
func addOption(set *facet.Set, row optionRow) error {
	var (
		idx int
		err error
	)
	switch row.kind {
	case facet.KindLocation:
		var l facet.Location
		if err := json.Unmarshal([]byte(row.body), &l); err != nil {
			return fmt.Errorf("unmarshal location %s: %w", row.publicID, err)
		}
		idx, err = set.AddLocation(&l)
	case facet.KindFilter:
		var f facet.Filter
		if err := json.Unmarshal([]byte(row.body), &f); err != nil {
			return fmt.Errorf("unmarshal filter %s: %w", row.publicID, err)
		}
		idx, err = set.AddFilter(&f)
	case facet.KindFilterOption:
		var o facet.FilterOption
		if err := json.Unmarshal([]byte(row.body), &o); err != nil {
			return fmt.Errorf("unmarshal filter option %s: %w", row.publicID, err)
		}
		if !row.parentIdx.Valid {
			return fmt.Errorf("filter option %s has no parent", row.publicID)
		}
		idx, err = set.AddFilterOption(int(row.parentIdx.Int64), &o)
	case facet.KindIndicator:
		var i facet.Indicator
		if err := json.Unmarshal([]byte(row.body), &i); err != nil {
			return fmt.Errorf("unmarshal indicator %s: %w", row.publicID, err)
		}
		idx, err = set.AddIndicator(&i)
	case facet.KindTimePeriod:
		var p facet.Period
		if err := json.Unmarshal([]byte(row.body), &p); err != nil {
			return fmt.Errorf("unmarshal time period %s: %w", row.publicID, err)
		}
		idx, err = set.AddTimePeriod(p)
	default:
		return fmt.Errorf("unknown facet kind %q", row.kind)
	}
	if err != nil {
		return err
	}
	if idx != row.idx {
		return fmt.Errorf("%s %s: stored at index %d, restored at %d", row.kind, row.publicID, row.idx, idx)
	}
	return nil
}
