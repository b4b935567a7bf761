// Package securestoretest holds the behaviour every securestore.Store must share.
package securestoretest

import (
	"context"
	"sync"
	"testing"

	autherrors "github.com/jrsteele09/go-authkit-session/internal/errors"
	"github.com/jrsteele09/go-authkit-session/securestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunContract exercises a fresh store returned by newStore.
func RunContract(t *testing.T, newStore func(t *testing.T) securestore.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		s := newStore(t)
		v, ok, err := s.Get(ctx, "session")
		require.NoError(t, err)
		require.False(t, ok)
		require.Nil(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "session", []byte(`{"a":1}`)))
		v, ok, err := s.Get(ctx, "session")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte(`{"a":1}`), v)
	})

	t.Run("set replaces", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "pkce", []byte("first")))
		require.NoError(t, s.Set(ctx, "pkce", []byte("second")))
		v, ok, err := s.Get(ctx, "pkce")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("second"), v)
	})

	t.Run("keys are independent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "session", []byte("s")))
		require.NoError(t, s.Set(ctx, "pkce", []byte("p")))
		require.NoError(t, s.Delete(ctx, "pkce"))
		v, ok, err := s.Get(ctx, "session")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("s"), v)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "session", []byte("s")))
		require.NoError(t, s.Delete(ctx, "session"))
		require.NoError(t, s.Delete(ctx, "session"))
		_, ok, err := s.Get(ctx, "session")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "session", []byte("abc")))
		v, _, err := s.Get(ctx, "session")
		require.NoError(t, err)
		v[0] = 'z'
		again, _, err := s.Get(ctx, "session")
		require.NoError(t, err)
		require.Equal(t, []byte("abc"), again)
	})

	t.Run("invalid key", func(t *testing.T) {
		s := newStore(t)
		err := s.Set(ctx, "../escape", []byte("x"))
		require.ErrorIs(t, err, autherrors.ErrInvalidKey)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Set(ctx, "session", []byte("value")))
				_, _, err := s.Get(ctx, "session")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
	})
}
