package securestore

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	autherrors "github.com/jrsteele09/go-authkit-session/internal/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// SaltSize is the length of the per-store random salt fed to Argon2id
	SaltSize = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// Sealer encrypts records with XChaCha20-Poly1305. The record key is bound as
// additional data, so a sealed value only opens under the key it was written to.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a sealer from a 32 byte key.
func NewSealer(key []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("chacha20poly1305.NewX: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// NewPassphraseSealer derives the key from a passphrase with Argon2id.
func NewPassphraseSealer(passphrase string, salt []byte) (*Sealer, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("[NewPassphraseSealer] passphrase is required")
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("[NewPassphraseSealer] salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	return NewSealer(DeriveKey(passphrase, salt))
}

func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("rand.Read: %w", err)
	}
	return salt, nil
}

// Seal returns nonce||ciphertext.
func (s *Sealer) Seal(key string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("rand.Read: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, []byte(key)), nil
}

func (s *Sealer) Open(key string, sealed []byte) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize()+s.aead.Overhead() {
		return nil, autherrors.Wrapf(autherrors.ErrSealedRecordInvalid, "record %q too short", key)
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return nil, autherrors.Wrapf(autherrors.ErrSealedRecordInvalid, "record %q", key)
	}
	return plaintext, nil
}
