package cloud

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestSessionNeedsRefresh(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		setup func(s *session)
		want  bool
	}{
		{
			name:  "no token",
			setup: func(_ *session) {},
			want:  true,
		},
		{
			name: "fresh token",
			setup: func(s *session) {
				s.setToken(signedToken(t, now.Add(time.Hour)), "Bearer")
			},
			want: false,
		},
		{
			name: "token inside refresh buffer",
			setup: func(s *session) {
				s.setToken(signedToken(t, now.Add(30*time.Second)), "Bearer")
			},
			want: true,
		},
		{
			name: "expired token",
			setup: func(s *session) {
				s.setToken(signedToken(t, now.Add(-time.Minute)), "Bearer")
			},
			want: true,
		},
		{
			name: "opaque token without exp claim",
			setup: func(s *session) {
				s.setToken("not-a-jwt", "Bearer")
			},
			want: false,
		},
		{
			name: "invalidated token",
			setup: func(s *session) {
				s.setToken(signedToken(t, now.Add(time.Hour)), "Bearer")
				s.invalidate()
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &session{}
			tt.setup(s)
			if got := s.needsRefresh(now); got != tt.want {
				t.Errorf("needsRefresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSessionDefaultsTokenType(t *testing.T) {
	s := &session{}
	s.setToken("tok", "")
	_, tokenType, ok := s.bearer()
	if !ok || tokenType != "Bearer" {
		t.Errorf("bearer() type = %q, %v, want Bearer, true", tokenType, ok)
	}
}
