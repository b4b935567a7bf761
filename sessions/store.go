package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-authkit-session/securestore"
	"github.com/rs/zerolog/log"
)

const (
	SessionKey = "session"
	PKCEKey    = "pkce"

	// recordVersion is bumped whenever a persisted shape changes incompatibly.
	// Records written with any other version are discarded on read.
	recordVersion = 1
)

var _ Repo = (*Store)(nil)

type envelope struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Store is the Repo backed by a SecureStore. Every Load deserializes a fresh
// copy, so nothing returned here aliases persisted state.
type Store struct {
	secure securestore.Store
}

func NewStore(secure securestore.Store) (*Store, error) {
	if secure == nil {
		return nil, errors.New("[NewStore] secure store is required")
	}
	return &Store{secure: secure}, nil
}

func (s *Store) Save(ctx context.Context, session *StoredSession) error {
	if session == nil {
		return errors.New("[Store.Save] session is required")
	}
	return s.put(ctx, SessionKey, session)
}

// Load returns nil, nil when there is no session.
func (s *Store) Load(ctx context.Context) (*StoredSession, error) {
	var session StoredSession
	found, err := s.get(ctx, SessionKey, &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

// Clear removes the session and any pending challenge. Clearing twice is fine.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.secure.Delete(ctx, SessionKey); err != nil {
		return fmt.Errorf("[Store.Clear] delete %s: %w", SessionKey, err)
	}
	if err := s.secure.Delete(ctx, PKCEKey); err != nil {
		return fmt.Errorf("[Store.Clear] delete %s: %w", PKCEKey, err)
	}
	return nil
}

func (s *Store) SavePKCE(ctx context.Context, state *PkceState) error {
	if state == nil {
		return errors.New("[Store.SavePKCE] state is required")
	}
	return s.put(ctx, PKCEKey, state)
}

// LoadPKCE returns nil, nil when no challenge is pending.
func (s *Store) LoadPKCE(ctx context.Context) (*PkceState, error) {
	var state PkceState
	found, err := s.get(ctx, PKCEKey, &state)
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

func (s *Store) DeletePKCE(ctx context.Context) error {
	if err := s.secure.Delete(ctx, PKCEKey); err != nil {
		return fmt.Errorf("[Store.DeletePKCE] delete: %w", err)
	}
	return nil
}

func (s *Store) put(ctx context.Context, key string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("[Store.put] marshal %s: %w", key, err)
	}
	raw, err := json.Marshal(envelope{Version: recordVersion, Data: data})
	if err != nil {
		return fmt.Errorf("[Store.put] marshal envelope %s: %w", key, err)
	}
	if err := s.secure.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("[Store.put] set %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, target any) (bool, error) {
	raw, ok, err := s.secure.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("[Store.get] get %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Version != recordVersion {
		return false, s.discard(ctx, key, env.Version, err)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return false, s.discard(ctx, key, env.Version, err)
	}
	return true, nil
}

// discard drops a record that this build cannot read; the caller sees it as absent.
func (s *Store) discard(ctx context.Context, key string, version int, cause error) error {
	log.Warn().Err(cause).Str("key", key).Int("version", version).Msg("discarding unreadable stored record")
	if err := s.secure.Delete(ctx, key); err != nil {
		return fmt.Errorf("[Store.discard] delete %s: %w", key, err)
	}
	return nil
}
