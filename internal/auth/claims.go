package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AllConnections grants access to every connection key.
const AllConnections = "*"

// ConnectionClaims is the payload of a replica access token.
type ConnectionClaims struct {
	Connections []string `json:"connections"`
	jwt.RegisteredClaims
}

// Allows reports whether the token grants access to connection.
func (c ConnectionClaims) Allows(connection string) bool {
	for _, granted := range c.Connections {
		granted = strings.TrimSpace(granted)
		if granted == AllConnections || granted == connection {
			return true
		}
	}
	return false
}
