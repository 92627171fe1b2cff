package models

import "time"

// SecretVersion is one immutable snapshot of a project's secret content,
// encrypted under the project content key that was active when it was
// written. History is ordered by CreatedAt descending; the newest version
// is the current content.
type SecretVersion struct {
	ID               string
	ProjectID        string
	AuthorID         string
	EncryptedContent []byte
	CreatedAt        time.Time
}
