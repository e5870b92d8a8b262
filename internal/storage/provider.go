// Package storage defines the vault file-system abstraction.
package storage

import "time"

// Entry describes one vault file returned by List.
type Entry struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for vault file operations. Paths are relative to
// the vault root.
type Provider interface {
	// List returns an entry for every note and schema module under dir.
	List(dir string) ([]Entry, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
}
