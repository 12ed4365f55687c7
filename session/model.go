package session

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Session is one persisted refresh session: the record of a single refresh
// credential's issuance, tied to a device. The plaintext credential is never
// stored; TokenHash is its one-way digest.
//
// Lifecycle: created at login, revoked on logout / explicit revoke / password
// change, or expired by TTL. Revoked and Expired are both terminal.
type Session struct {
	SessionID   string `json:"sid"`
	UserID      string `json:"uid"`
	TokenHash   string `json:"th"`
	DeviceType  string `json:"dt,omitempty"`
	DeviceLabel string `json:"dl,omitempty"`
	ClientIP    string `json:"ip,omitempty"`
	UserAgent   string `json:"ua,omitempty"`
	IssuedAt    int64  `json:"iat"`
	ExpiresAt   int64  `json:"exp"`
	// RevokedAt is the unix second of revocation, 0 while active.
	RevokedAt int64 `json:"rat,omitempty"`
}

// Revoked reports whether the session was explicitly revoked.
func (s *Session) Revoked() bool { return s.RevokedAt != 0 }

// Expired reports whether the session's lifetime has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt <= now.Unix()
}

// Active reports whether the session is neither revoked nor expired.
func (s *Session) Active(now time.Time) bool {
	return !s.Revoked() && !s.Expired(now)
}

// HashToken returns the SHA-256 hex digest used to key sessions and
// blacklist entries. Tokens are never stored or looked up in plaintext.
func HashToken(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}
