// Package models defines the persisted records of the key-distribution
// protocol. All key and ciphertext fields are opaque byte strings; nothing
// here is ever stored in plaintext except public keys.
package models

import "time"

// UserKey is a user's asymmetric key pair record: the shareable public key
// and the private key encrypted under a key derived from the user's
// passphrase. Exactly one live record exists per user; a record missing
// either half is treated as "keys not yet set up".
type UserKey struct {
	UserID              string
	PublicKey           []byte
	EncryptedPrivateKey []byte
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Complete reports whether both halves of the record are present.
func (k *UserKey) Complete() bool {
	return len(k.PublicKey) > 0 && len(k.EncryptedPrivateKey) > 0
}
