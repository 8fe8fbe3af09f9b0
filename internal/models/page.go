// Package models defines the domain types shared by storage, the index and the API.
package models

import "time"

// FileMetadata is a lightweight representation returned by list operations.
type FileMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Link is a directed edge between two pages of a vault.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}
