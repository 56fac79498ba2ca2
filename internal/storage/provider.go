// Package storage defines the output-tree abstraction the executor writes through.
package storage

import "io"

// Provider is the interface for output tree operations. Paths are relative
// to the output root.
type Provider interface {
	// Root returns the absolute output root.
	Root() string
	// Rel converts an absolute destination under the output root into a
	// relative path accepted by the other methods.
	Rel(abs string) (string, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces path with content, creating parents.
	Write(path string, content []byte) error
	// WriteFrom atomically replaces path with everything read from r.
	WriteFrom(path string, r io.Reader) error
	// Exists reports whether a regular file exists at path.
	Exists(path string) bool
	// IsDir reports whether path is a directory.
	IsDir(path string) bool
}
