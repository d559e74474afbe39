package secure

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// SealedVersion prefixes every sealed blob and is authenticated as AAD.
const SealedVersion byte = 0x01

// SealedOverhead is version + XChaCha20 nonce + Poly1305 tag.
const SealedOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

var hkdfInfoCredentials = []byte("helpdesk.credentials.v1")

var (
	// ErrMissingKey means the process was started without a credentials key.
	ErrMissingKey = errors.New("credentials encryption key is not configured")
	// ErrDecrypt means the blob was sealed under another key or was tampered with.
	ErrDecrypt = errors.New("credential secret could not be decrypted")
)

// Sealer encrypts credential secrets with one process-wide key.
type Sealer struct {
	key []byte
}

// NewSealer derives the AEAD key from the configured passphrase. An empty
// passphrase yields a Sealer whose every call fails with ErrMissingKey.
func NewSealer(passphrase string) (*Sealer, error) {
	passphrase = strings.TrimSpace(passphrase)
	if passphrase == "" {
		return &Sealer{}, nil
	}
	key := make([]byte, chacha20poly1305.KeySize)
	reader := hkdf.New(sha256.New, []byte(passphrase), nil, hkdfInfoCredentials)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive credentials key: %w", err)
	}
	return &Sealer{key: key}, nil
}

// Configured reports whether a key is present.
func (s *Sealer) Configured() bool {
	return s != nil && len(s.key) == chacha20poly1305.KeySize
}

// Seal encrypts plaintext bound to recordID:
//
//	[version][24-byte nonce][ciphertext+tag]
func (s *Sealer) Seal(plaintext []byte, recordID string) ([]byte, error) {
	if !s.Configured() {
		return nil, ErrMissingKey
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 1+len(nonce), SealedOverhead+len(plaintext))
	out[0] = SealedVersion
	copy(out[1:], nonce[:])
	return aead.Seal(out, nonce[:], plaintext, buildAAD(SealedVersion, recordID)), nil
}

// Open decrypts a blob produced by Seal for the same recordID.
func (s *Sealer) Open(blob []byte, recordID string) ([]byte, error) {
	if !s.Configured() {
		return nil, ErrMissingKey
	}
	if len(blob) < SealedOverhead {
		return nil, fmt.Errorf("%w: blob is %d bytes", ErrDecrypt, len(blob))
	}
	if blob[0] != SealedVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrDecrypt, blob[0])
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], buildAAD(blob[0], recordID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

func buildAAD(version byte, recordID string) []byte {
	aad := make([]byte, 1+len(recordID))
	aad[0] = version
	copy(aad[1:], recordID)
	return aad
}
