// Package voyago provides an in-memory approximate nearest neighbor index
// built on a Hierarchical Navigable Small World (HNSW) graph.
//
// # Quick Start
//
//	idx, err := voyago.New(128, distance.Cosine)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	id, _ := idx.Insert(ctx, vector)
//	results, _ := idx.Query(ctx, query, 10)
//	for _, r := range results {
//	    fmt.Println(r.ID, r.Distance)
//	}
//
// # Identifiers
//
// Every entry has a uint64 identifier. Insert picks the smallest identifier
// that is not live; InsertWithID uses the caller's. Delete tombstones an entry:
// it is never returned again but stays in the graph as a waypoint, and its
// identifier may be reused.
//
// # Metrics
//
//   - distance.Euclidean: squared L2 distance
//   - distance.Cosine: 1 - cosine similarity, inputs are normalized on insert
//   - distance.InnerProduct: 1 - dot product, may be negative
//
// # Persistence
//
// Serialize produces a single self-describing blob (magic, version,
// compression, CRC32 checksum). It can be written to any io.Writer, a file
// or a blobstore.Store:
//
//	err := idx.SaveToFile("products.voy")
//	idx, err := voyago.LoadFromFile("products.voy", voyago.WithExpectedDimension(128))
//
//	store := s3.NewStore(client, "my-bucket", "indexes/")
//	err = idx.Save(ctx, store, "products.voy")
//	idx, err = voyago.Open(ctx, store, "products.voy")
//
// Malformed input never panics; it fails with an error for which IsCorrupt
// reports true.
//
// # Concurrency
//
// An Index is safe for concurrent use. Queries share a read lock and run in
// parallel; inserts and deletes are serialized.
package voyago
