// Package cryptox implements the cryptographic primitives envault is built
// on: RSA key pairs for wrapping content keys per member, secretbox
// authenticated encryption for payloads and passphrase-protected private
// keys, and sealed (one-way) encryption towards external recipients.
//
// Passphrase-to-key derivation is a single SHA-256 pass over the
// passphrase. This mirrors the behavior of the system envault replaces and
// is deliberately not an iterated KDF.
package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"

	"github.com/envault/envault/internal/common"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// KeySize is the size of symmetric keys in bytes.
	KeySize = 32

	// NonceSize is the size of secretbox nonces in bytes.
	NonceSize = 24

	// Overhead is the secretbox authentication tag size in bytes.
	Overhead = secretbox.Overhead

	rsaBits = 2048

	publicKeyPEMType  = "PUBLIC KEY"
	privateKeyPEMType = "RSA PRIVATE KEY"
)

// GenerateKeyPair creates a new RSA-2048 key pair and returns both halves
// PEM-encoded: the public key as PKIX "PUBLIC KEY", the private key as
// PKCS#1 "RSA PRIVATE KEY".
func GenerateKeyPair() (publicPEM []byte, privatePEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	publicPEM = pem.EncodeToMemory(&pem.Block{Type: publicKeyPEMType, Bytes: pubDER})
	privatePEM = pem.EncodeToMemory(&pem.Block{Type: privateKeyPEMType, Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return publicPEM, privatePEM, nil
}

// ParsePublicKey decodes a PEM-encoded PKIX RSA public key.
func ParsePublicKey(publicPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(publicPEM)
	if block == nil || block.Type != publicKeyPEMType {
		return nil, fmt.Errorf("failed to decode PEM block containing public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaPub, nil
}

// ParsePrivateKey decodes a PEM-encoded PKCS#1 RSA private key.
func ParsePrivateKey(privatePEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(privatePEM)
	if block == nil || block.Type != privateKeyPEMType {
		return nil, fmt.Errorf("failed to decode PEM block containing private key")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

// AsymmetricEncrypt encrypts plaintext under the given PEM-encoded public
// key. Used to wrap content keys for individual members.
func AsymmetricEncrypt(plaintext []byte, publicPEM []byte) ([]byte, error) {
	pub, err := ParsePublicKey(publicPEM)
	if err != nil {
		return nil, err
	}
	return rsa.EncryptPKCS1v15(rand.Reader, pub, plaintext)
}

// AsymmetricDecrypt decrypts a ciphertext produced by AsymmetricEncrypt.
// Any mismatch between the ciphertext and the key, as well as malformed
// input, yields common.ErrorDecryptionFailed.
func AsymmetricDecrypt(ciphertext []byte, privatePEM []byte) ([]byte, error) {
	priv, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}
	plaintext, err := rsa.DecryptPKCS1v15(rand.Reader, priv, ciphertext)
	if err != nil {
		return nil, common.ErrorDecryptionFailed
	}
	return plaintext, nil
}

// DeriveKeyFromPassphrase maps a passphrase to a 32-byte symmetric key.
// Deterministic: the same passphrase always yields the same key.
func DeriveKeyFromPassphrase(passphrase string) [KeySize]byte {
	return sha256.Sum256([]byte(passphrase))
}

// NewContentKey returns a fresh random 32-byte project content key.
func NewContentKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate content key: %w", err)
	}
	return key, nil
}

// SymmetricEncrypt encrypts plaintext with secretbox under the given
// 32-byte key. A fresh random 24-byte nonce is generated per call and
// prefixed to the ciphertext.
func SymmetricEncrypt(plaintext []byte, key []byte) ([]byte, error) {
	boxKey, err := toBoxKey(key)
	if err != nil {
		return nil, err
	}

	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return secretbox.Seal(nonce[:], plaintext, &nonce, boxKey), nil
}

// SymmetricDecrypt opens a ciphertext produced by SymmetricEncrypt. It
// fails closed: on a too-short input or any authentication failure the
// result is common.ErrorDecryptionFailed and no plaintext is returned.
func SymmetricDecrypt(ciphertext []byte, key []byte) ([]byte, error) {
	boxKey, err := toBoxKey(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < NonceSize+Overhead {
		return nil, common.ErrorDecryptionFailed
	}

	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[NonceSize:], &nonce, boxKey)
	if !ok {
		return nil, common.ErrorDecryptionFailed
	}
	return plaintext, nil
}

// SealedEncrypt encrypts plaintext one-way to the recipient identified by
// the given PEM-encoded public key, using RSA-OAEP with SHA-256. There is
// no corresponding decrypt here: only the recipient can open the result.
func SealedEncrypt(plaintext []byte, recipientPublicPEM []byte) ([]byte, error) {
	pub, err := ParsePublicKey(recipientPublicPEM)
	if err != nil {
		return nil, err
	}
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
}

func toBoxKey(key []byte) (*[KeySize]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid symmetric key length: expected %d bytes, got %d bytes", KeySize, len(key))
	}
	var k [KeySize]byte
	copy(k[:], key)
	return &k, nil
}
