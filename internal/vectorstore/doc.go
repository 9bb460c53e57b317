// Package vectorstore owns the canonical array of stored vectors.
//
// Vectors are laid out contiguously (Structure-of-Arrays) and addressed by a
// dense slot number assigned at append time. The store is append-only: a
// vector is never mutated or moved once appended, and slots are never reused,
// because the proximity graph navigates exclusively through slot references.
//
// Deletion is a tombstone kept in a roaring bitmap; the vector data stays in
// place so tombstoned slots remain usable as traversal waypoints.
//
// # Concurrency
//
// The store is safe for concurrent readers. Append and MarkDeleted require
// external synchronization.
package vectorstore
