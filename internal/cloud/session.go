package cloud

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenRefreshBuffer is how long before the JWT exp claim the token is
// considered stale and proactively refreshed.
const tokenRefreshBuffer = 60 * time.Second

// session holds the account credentials and the current bearer token.
//
// Single-writer discipline: only the sign-in path calls setToken or
// invalidate. Readers always observe either the old token or the new
// one, never a partial update.
type session struct {
	mu sync.RWMutex

	email    string
	password string

	token     string
	tokenType string
	expiresAt time.Time // zero when the token carries no exp claim
}

func (s *session) setCredentials(email, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.email = email
	s.password = password
}

func (s *session) credentials() (email, password string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.email, s.password
}

// setToken stores a fresh token and derives its expiry from the JWT
// exp claim. Tokens that are not JWTs (or carry no exp) get a zero
// expiry and are refreshed only on 401/403.
func (s *session) setToken(token, tokenType string) {
	if tokenType == "" {
		tokenType = "Bearer"
	}

	var expiresAt time.Time
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.tokenType = tokenType
	s.expiresAt = expiresAt
}

// bearer returns the current token and type. ok is false when no token
// is held.
func (s *session) bearer() (token, tokenType string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", "", false
	}
	return s.token, s.tokenType, true
}

// invalidate drops the token, forcing a re-login on the next request.
func (s *session) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
}

// needsRefresh reports whether a sign-in is required before the next
// request: no token held, or the token expires within the refresh
// buffer.
func (s *session) needsRefresh(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return true
	}
	if s.expiresAt.IsZero() {
		return false
	}
	return !now.Before(s.expiresAt.Add(-tokenRefreshBuffer))
}
