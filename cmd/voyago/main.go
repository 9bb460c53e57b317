// Package main provides the voyago CLI.
//
// Usage:
//
//	voyago [flags] <command> [args]
//
// Commands:
//
//	build  - Build an index from JSON lines of {"id": N, "vector": [...]}
//	query  - Query an index for the nearest neighbors of a vector
//	stats  - Print graph statistics of an index
//
// Index locations are local paths, s3://bucket/key or
// minio://endpoint/bucket/key.
package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/voyago/cmd/voyago/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
