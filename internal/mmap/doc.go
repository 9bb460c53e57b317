// Package mmap provides read-only memory mapping of files.
//
// On platforms without mmap support the file is read into memory instead,
// behind the same API.
package mmap
