package users

import (
	"strings"

	"github.com/jrsteele09/go-authkit-session/internal/utils"
)

// User is the identity provider's profile snapshot for the signed-in user.
// It is replaced wholesale on every authentication or refresh, never patched.
type User struct {
	ID                string  `json:"id"`                // Provider user id (e.g. "user_01H...")
	Email             string  `json:"email"`             // Primary email address
	FirstName         *string `json:"firstName"`         // Optional, null when unknown
	LastName          *string `json:"lastName"`          // Optional, null when unknown
	ProfilePictureURL *string `json:"profilePictureUrl"` // Optional avatar URL
}

// DisplayName returns "First Last", falling back to the email address.
func (u User) DisplayName() string {
	name := strings.TrimSpace(utils.Value(u.FirstName) + " " + utils.Value(u.LastName))
	if name == "" {
		return u.Email
	}
	return name
}

// Clone returns a deep copy so callers can never alias a stored snapshot.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.FirstName != nil {
		c.FirstName = utils.Ptr(*u.FirstName)
	}
	if u.LastName != nil {
		c.LastName = utils.Ptr(*u.LastName)
	}
	if u.ProfilePictureURL != nil {
		c.ProfilePictureURL = utils.Ptr(*u.ProfilePictureURL)
	}
	return &c
}
