package models

import "time"

// Invitation lets a member grant project access to someone who does not yet
// hold a stable key pair. It carries a single-use temporary key pair: the
// temp private key encrypted under a one-time passphrase shared out-of-band,
// and the project content key wrapped for the temp public key.
//
// An invitation is consumed atomically on accept, removed on revoke, and
// swept once it outlives its TTL. The one-time passphrase is never stored.
type Invitation struct {
	ID                           string
	ProjectID                    string
	AuthorID                     string
	TemporaryPublicKey           []byte
	TemporaryPrivateKeyEncrypted []byte
	WrappedContentKey            []byte
	CreatedAt                    time.Time
}

// ExpiresAt returns the moment the invitation becomes eligible for the sweep.
func (i *Invitation) ExpiresAt(ttl time.Duration) time.Time {
	return i.CreatedAt.Add(ttl)
}
