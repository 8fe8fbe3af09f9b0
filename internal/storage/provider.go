// Package storage defines the vault file-system abstraction used for
// converted output and the served vault.
package storage

import "github.com/starford/wikiport/internal/models"

// Provider is the interface for vault file operations.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to vault root).
	List(dir string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to vault root).
	Write(path string, content []byte) error
	// Exists reports whether a file is present at path (relative to vault root).
	Exists(path string) (bool, error)
	// Root returns the absolute vault directory.
	Root() string
}
