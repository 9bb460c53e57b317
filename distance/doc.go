// Package distance provides the dissimilarity functions used by the index.
//
// All functions assume equal-length inputs; length validation happens at the
// index boundary. Lower values always mean "more similar".
//
// # Metrics
//
//   - Euclidean: squared L2 distance. Zero iff the vectors are identical.
//   - Cosine: 1 - <a,b> over L2-normalized vectors, clamped at zero.
//   - InnerProduct: 1 - <a,b> over raw vectors. May be negative when the
//     inputs are not normalized.
package distance
