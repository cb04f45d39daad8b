package session

// State is where the session sits in its lifecycle
type State int

const (
	// Anonymous means no refresh token is held
	Anonymous State = iota
	// Authenticated means a token pair is held and no refresh is running
	Authenticated
	// Refreshing means a single shared refresh call is in flight
	Refreshing
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}
