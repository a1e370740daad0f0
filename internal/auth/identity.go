// Package auth provides caller identity resolution primitives
package auth

import "fmt"

// Identity is the resolved caller reference used for quota keying.
// It is resolved fresh per request and never persisted beyond it.
type Identity struct {
	// UserID is set for authenticated callers
	UserID string

	// ClientIP is set for anonymous callers
	ClientIP string
}

// Anonymous returns an IP-keyed identity for an unauthenticated caller
func Anonymous(clientIP string) Identity {
	return Identity{ClientIP: clientIP}
}

// User returns an identity for an authenticated caller
func User(userID string) Identity {
	return Identity{UserID: userID}
}

// Authenticated reports whether the identity refers to a known user
func (id Identity) Authenticated() bool {
	return id.UserID != ""
}

// Key returns the stable string used to key rate-limit windows:
// "user:<id>" for authenticated callers, "ip:<addr>" otherwise.
func (id Identity) Key() string {
	if id.UserID != "" {
		return fmt.Sprintf("user:%s", id.UserID)
	}
	return fmt.Sprintf("ip:%s", id.ClientIP)
}
