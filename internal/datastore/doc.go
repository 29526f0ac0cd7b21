// Package datastore owns named datasets of parsed rows.
//
// A dataset is created from a raw domain.Table: every column is classified by
// the detector, every cell is parsed under the detected format, and per-cell
// parse failures are kept in place as failure values. Failures never abort an
// ingest; they surface in Metadata and are skipped by filters and aggregates.
//
// Indexes
//
// Number and Date columns get a range index: distinct keys kept sorted and
// searched with sort.Search. String columns get a categorical index: an
// exact-match map whose distinct keys are scanned for Contains. Null and
// failed cells sit in a missing bucket, so every row ID in the dataset
// appears in exactly one bucket of every index.
//
// Concurrency
//
// The Store guards its catalog with a RWMutex and each dataset carries its
// own RWMutex. Queries and aggregates share the read lock. Every writer,
// including index rebuilds, holds the write lock until all indexes agree with
// the rows.
package datastore
