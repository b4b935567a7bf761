package auth

// State is the session lifecycle state.
type State int

const (
	// SignedOut: no session is stored.
	SignedOut State = iota
	// Authenticating: an interactive sign-in is in progress.
	Authenticating
	// SignedIn: a session with an access token that was valid when last checked.
	SignedIn
	// Refreshing: the stored access token expired and a refresh is in flight.
	Refreshing
)

func (s State) String() string {
	switch s {
	case SignedOut:
		return "signed-out"
	case Authenticating:
		return "authenticating"
	case SignedIn:
		return "signed-in"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}
