// Package harness runs versioning scenarios: scripted sequences of
// ingestions, mapping decisions, publications and queries checked against
// expected outcomes.
//
// # Scenario Format
//
// Scenarios are defined in YAML files and refer to data set definitions
// by name. Definitions are compiled from CUE separately (see
// compiler.CompileAll) and passed to Run.
//
//	name: indicator_added
//	description: "Adding an indicator is a minor change"
//	steps:
//	  - action: ingest
//	    dataset: absence_v1
//	    expect: { number: "1.0", status: processing }
//	  - action: publish
//	    version: v-0001
//	  - action: ingest
//	    dataset: absence_v2
//	    expect: { bump: minor, number: "1.1" }
//	  - action: resolve
//	    version: v-0002
//	    map: ["location:shf=shf2"]
//	  - action: query
//	    dataset: absence
//	    label: "1.*"
//	    query: { indicators: [abs] }
//	    expect: { version: v-0002, total: 4 }
//	assertions:
//	  - type: live_version
//	    dataset: absence
//	    version: v-0002
//
// # Assertion Types
//
//   - version_status: a version has the given status
//   - live_version: a data set's live version ("" for none)
//   - version_count: a data set stores exactly N versions
//   - resolves: a version label resolves to the given version ("" for none)
//
// # Deterministic Testing
//
// Every scenario runs in an in-memory SQLite database with a manual clock
// and sequential version ids ("v-0001", "v-0002", ...), so traces are
// reproducible and can be compared with golden files.
package harness
