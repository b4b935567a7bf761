package securestore

import (
	"context"
	"regexp"

	autherrors "github.com/jrsteele09/go-authkit-session/internal/errors"
)

// Store is opaque key-value persistence for credentials. Implementations must be
// safe for concurrent use and must treat Delete of a missing key as success.
type Store interface {
	// Get returns the stored value and whether the key was present
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set writes the value atomically, replacing any prior value
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the key; deleting an absent key is not an error
	Delete(ctx context.Context, key string) error
}

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,63}$`)

// ValidateKey rejects keys that cannot double as a file name.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return autherrors.Wrapf(autherrors.ErrInvalidKey, "%q", key)
	}
	return nil
}
