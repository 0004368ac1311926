// Package facet models the facet options of a data set version: locations,
// filters with their options, indicators and time periods.
//
// Every option carries a natural key derived from its semantic attributes.
// Two options from different versions describe the same real-world entity
// iff their natural keys are equal; surrogate and public ids play no part.
//
// Options live in a Set, an arena with stable insertion indices per kind.
// Filters refer to their options by index and options refer back to their
// filter by index, so nothing in a Set holds an object back reference.
package facet
