package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/TheVisher/pawkit-sync/internal/common"
)

// TokenSource supplies the bearer token for server calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token.
type StaticTokenSource string

func (s StaticTokenSource) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// CheckedTokenSource wraps another source and rejects tokens whose JWT
// expiry has already passed, so the queue parks on a clear credential
// error instead of burning retries on guaranteed 401s.
type CheckedTokenSource struct {
	Source TokenSource
	Clock  func() time.Time

	mu      sync.Mutex
	cached  string
	expires time.Time
}

func (c *CheckedTokenSource) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

func (c *CheckedTokenSource) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != "" && (c.expires.IsZero() || c.now().Before(c.expires)) {
		return c.cached, nil
	}

	token, err := c.Source.Token(ctx)
	if err != nil {
		return "", err
	}

	// signature verification is the server's job; only the expiry claim
	// matters here
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if exp != nil {
		if !c.now().Before(exp.Time) {
			return "", common.ErrTokenExpired
		}
		c.expires = exp.Time
	}
	c.cached = token
	return token, nil
}
