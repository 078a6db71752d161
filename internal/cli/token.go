package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/TheVisher/pawkit-sync/internal/common"
)

// fileTokenSource reads the stored access token on demand, so a fresh
// login takes effect without restarting a running daemon.
type fileTokenSource string

func (f fileTokenSource) Token(ctx context.Context) (string, error) {
	raw, err := os.ReadFile(string(f))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: not logged in, run 'pawkit login'", common.ErrUnauthorized)
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("%w: empty token file, run 'pawkit login'", common.ErrUnauthorized)
	}
	return token, nil
}

func (a *App) saveToken(token string) error {
	if err := os.WriteFile(a.tokenPath, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}
