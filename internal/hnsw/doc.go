// Package hnsw implements Hierarchical Navigable Small World graphs over the
// slots of a vector store.
//
// HNSW provides approximate nearest neighbor search with high recall and
// sub-linear query time. Nodes are addressed by the slot of the vector they
// index; the graph never copies vectors and reads them through the Vectors
// interface.
//
// # Parameters
//
//   - M: Connections made by a new node per layer; layers above 0 are capped at M
//   - M0: Neighbor cap on layer 0 (2*M)
//   - EFConstruction: Candidate frontier size during insertion (default: 200)
//   - LevelMultiplier: Scale of the exponential level draw (default: 1.0)
//
// # Deletion
//
// Tombstoned slots keep their edges. They are traversed like any other node
// but never enter a query result set.
//
// # Concurrency
//
// Search is read-only and may run concurrently with other searches. Insert
// mutates neighbor lists and requires exclusive access.
//
// # Reference
//
// Malkov & Yashunin, "Efficient and robust approximate nearest neighbor search
// using Hierarchical Navigable Small World graphs", IEEE TPAMI 2018.
package hnsw
