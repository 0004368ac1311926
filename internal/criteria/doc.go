// Package criteria parses structured query requests and binds them to one
// data set version.
//
// A Request holds a tree of facet selectors (Node) plus indicator, paging
// and sort parameters. Parse resolves every id and code in it against the
// facet set of the version being queried, not the version a client may
// have written the query for, and produces a Plan whose predicate is a
// queryir tree. Parse is pure: it reads the facet set and nothing else.
//
// Optional selector operators are modelled with Option so that an absent
// operator ("no constraint") stays distinct from an explicitly empty one
// ("in: []" matches nothing). A null operator counts as absent.
package criteria
