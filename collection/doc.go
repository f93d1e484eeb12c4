// Package collection is an embedded document store.
//
// A collection holds documents of one type T keyed by K. Every stored
// document has a unique key and no two stored documents intersect (see
// Document). The whole collection is kept in memory, queries are scans
// with a predicate.
//
// Documents are persisted by one of:
//   - NewMemory: not persisted
//   - OpenFile: a single file of fixed-length slots
//   - OpenDir: a directory with one file per document
//
// Collections are not safe for concurrent use, wrap them with NewShared.
package collection
