// Package pipeline drives a data set version from ingestion to
// publication.
//
// Stages:
//
//	Ingest   create the draft, store its facet set and observations
//	Map      match the draft's options against the live version
//	Classify derive the ChangeSet and the version bump
//	Resolve  apply manual decisions to a blocked mapping
//	Publish  swap the data set's live pointer to the version
//
// Each stage records the version's status transition in the store. A
// stage that fails moves the version to Failed with a diagnostic; a
// cancelled context moves it to Cancelled. Mapping rows are written once
// at the end of the stage, so a cancelled mapping leaves nothing behind.
//
// Thread-safety: Pipeline is safe for concurrent use. Two publications of
// the same data set race on the store's compare-and-swap; the loser gets
// store.ErrPublishConflict.
package pipeline
