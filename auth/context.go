package auth

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-authkit-session/users"
)

// Snapshot is the observable auth state at one moment.
type Snapshot struct {
	User    *users.User
	Loading bool
}

// AuthContext is the reactive surface handed to the presentation layer. It is
// written only by its Controller; readers get copies.
type AuthContext struct {
	ctrl *Controller

	mu      sync.RWMutex
	user    *users.User
	loading int // Outstanding operations; starts at 1 until Restore completes
	subs    map[int]chan Snapshot
	nextID  int
}

func newAuthContext(ctrl *Controller) *AuthContext {
	return &AuthContext{
		ctrl:    ctrl,
		loading: 1,
		subs:    make(map[int]chan Snapshot),
	}
}

// User returns the signed-in user or nil.
func (a *AuthContext) User() *users.User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.user.Clone()
}

func (a *AuthContext) Loading() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loading > 0
}

func (a *AuthContext) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshotLocked()
}

// Subscribe delivers the current snapshot and then every change until ctx is
// done, when the channel is closed. A slow reader only ever misses
// intermediate snapshots, never the latest one.
func (a *AuthContext) Subscribe(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 1)

	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = ch
	ch <- a.snapshotLocked()
	a.mu.Unlock()

	go func() {
		<-ctx.Done()
		a.mu.Lock()
		delete(a.subs, id)
		close(ch)
		a.mu.Unlock()
	}()
	return ch
}

// SignIn runs the interactive sign-in.
func (a *AuthContext) SignIn(ctx context.Context) Result {
	return a.ctrl.SignIn(ctx)
}

func (a *AuthContext) SignOut(ctx context.Context) Result {
	return a.ctrl.SignOut(ctx)
}

func (a *AuthContext) setUser(u *users.User) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user = u.Clone()
	a.publishLocked()
}

func (a *AuthContext) beginLoading() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loading++
	if a.loading == 1 {
		a.publishLocked()
	}
}

func (a *AuthContext) endLoading() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loading == 0 {
		return
	}
	a.loading--
	if a.loading == 0 {
		a.publishLocked()
	}
}

func (a *AuthContext) snapshotLocked() Snapshot {
	return Snapshot{User: a.user.Clone(), Loading: a.loading > 0}
}

func (a *AuthContext) publishLocked() {
	for _, ch := range a.subs {
		snap := a.snapshotLocked()
		select {
		case ch <- snap:
		default:
			// Replace the unread snapshot with the newer one
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
