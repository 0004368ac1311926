// Package duckstore keeps observation rows in DuckDB, a columnar engine
// suited to scanning and aggregating large versions.
//
// Each version is one table named after the version id. Tables are
// rebuilt wholesale by WriteObservations using the DuckDB appender and
// queried with SQL compiled by package querysql. Facet metadata lives in
// package store; this package only holds rows.
package duckstore
