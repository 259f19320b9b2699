// Package token inspects bearer tokens without verifying them. The console
// never mints or validates credentials; it only surfaces expiry so the CLI
// can warn before a doomed request.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed means the token could not be parsed as a JWT at all.
var ErrMalformed = errors.New("token: malformed token")

// Info is the subset of claims the console cares about.
type Info struct {
	Subject   string
	ExpiresAt time.Time
}

// Inspect parses a JWT without signature verification and extracts the
// subject and expiry. Verification belongs to the deployment service.
func Inspect(raw string) (Info, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return Info{}, ErrMalformed
	}
	var info Info
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}

// Expired reports whether the token carries an expiry in the past. A token
// without an exp claim is never reported expired.
func Expired(raw string, now time.Time) bool {
	info, err := Inspect(raw)
	if err != nil {
		return false
	}
	return !info.ExpiresAt.IsZero() && info.ExpiresAt.Before(now)
}
