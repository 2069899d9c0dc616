// Package research assembles the Research Store.
//
// A research table holds one dataset's non-identifying columns keyed by the
// pseudonymous sirad_id. It is built by attaching the Data, PII and Link
// stores to a versioned research database and joining
//
//	pii.sirad_id r ⋈ pii.<t> p ⋈ link.<t> l ⋈ data.<t> d
//
// on pii_id and record_id. Datasets without a PII table are copied as is.
// Research stores are disposable: every table is dropped and rebuilt on
// each run.
package research
