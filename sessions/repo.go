package sessions

import "context"

// Repo persists the session and the pending PKCE challenge.
type Repo interface {
	Save(ctx context.Context, session *StoredSession) error
	Load(ctx context.Context) (*StoredSession, error)
	Clear(ctx context.Context) error

	SavePKCE(ctx context.Context, state *PkceState) error
	LoadPKCE(ctx context.Context) (*PkceState, error)
	DeletePKCE(ctx context.Context) error
}
