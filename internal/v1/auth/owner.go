// Package auth implements the arena's capability checks: the preshared
// owner key that gates host-claim and moderation, origin allowlisting for
// the websocket upgrade, and one-time routing tokens minted by the gateway.
package auth

import (
	"crypto/subtle"
	"strings"
)

// OwnerKeyChecker validates presented owner keys against the preshared
// secret in constant time. An empty configured key rejects everything.
type OwnerKeyChecker struct {
	key []byte
}

// NewOwnerKeyChecker returns a checker for the given preshared key.
func NewOwnerKeyChecker(key string) *OwnerKeyChecker {
	return &OwnerKeyChecker{key: []byte(key)}
}

// Check reports whether presented matches the configured owner key.
// Comparison is constant time.
func (c *OwnerKeyChecker) Check(presented string) bool {
	if len(c.key) == 0 || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare(c.key, []byte(presented)) == 1
}

// ParseAllowedOrigins splits a comma-separated origin allowlist. A "*"
// entry (or empty input) means allow all, returned as nil.
func ParseAllowedOrigins(originsStr string) []string {
	if originsStr == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(originsStr, ",") {
		o = strings.TrimSpace(o)
		if o == "*" {
			return nil
		}
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
