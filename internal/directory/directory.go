// Package directory resolves user ids to presentation profiles. Lookup
// failures are presentation concerns only: callers fall back to a
// placeholder instead of failing the request.
package directory

import "fmt"

// Profile is the display data attached to messages and conversations.
type Profile struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// Resolver looks up display data for a user.
type Resolver interface {
	Resolve(userID string) (Profile, error)
}

// Placeholder is the profile shown when the directory cannot resolve a
// user.
func Placeholder(userID string) Profile {
	return Profile{UserID: userID, Username: "unknown"}
}

// StaticResolver serves profiles from a fixed map. Deployments wire the
// real user service behind Resolver instead.
type StaticResolver map[string]Profile

func (r StaticResolver) Resolve(userID string) (Profile, error) {
	p, ok := r[userID]
	if !ok {
		return Profile{}, fmt.Errorf("no profile for %q", userID)
	}
	return p, nil
}
