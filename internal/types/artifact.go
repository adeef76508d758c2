package types

import "time"

// ArtifactType is a coarse classification of stored bytes.
type ArtifactType string

const (
	ArtifactImage   ArtifactType = "image"
	ArtifactFile    ArtifactType = "file"
	ArtifactDataset ArtifactType = "dataset"
	ArtifactBinary  ArtifactType = "binary"
)

// Artifact describes a durable binary output produced by either path.
// Created once by whichever executor produced the bytes; storage is
// append-only and addressed by the stable id.
type Artifact struct {
	ID          string       `json:"id"`
	Type        ArtifactType `json:"type"`
	MimeType    string       `json:"mime_type"`
	DisplayName string       `json:"display_name"`
	SizeBytes   int64        `json:"size_bytes"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
	URL         string       `json:"url"`
}

// Expired reports whether the artifact's TTL has elapsed at t.
func (a Artifact) Expired(t time.Time) bool {
	return !a.ExpiresAt.IsZero() && t.After(a.ExpiresAt)
}
