package models

import "time"

// KeyWrap is a project content key encrypted under one member's public key.
// One wrap exists per (project, member) pair and the set of wraps for a
// project equals its member set. Wraps are never updated in place: a
// rotation replaces them wholesale under a new content key.
type KeyWrap struct {
	ProjectID         string
	MemberID          string
	WrappedContentKey []byte
	CreatedAt         time.Time
}
