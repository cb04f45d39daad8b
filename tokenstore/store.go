package tokenstore

// Slot names a durable storage location for one credential
type Slot string

const (
	// AccessSlot holds the short-lived bearer credential
	AccessSlot Slot = "auth_token"
	// RefreshSlot holds the credential used to mint new access tokens
	RefreshSlot Slot = "refresh_token"
)

// Store persists the session's token pair on the client between runs.
// Only the session manager writes to it; Get returns errors.ErrNotFound for
// an empty slot.
type Store interface {
	Get(slot Slot) (string, error)
	Set(slot Slot, value string) error
	Delete(slot Slot) error
}
