// Package secrets stores the GitHub token. The OS keyring is the
// primary backend; headless hosts without a keyring fall back to an
// obfuscated file under the user's home directory.
package secrets

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/vantagesign/signdeck/internal/errors"
	"github.com/vantagesign/signdeck/internal/logging"
)

const (
	keyringService = "signdeck"
	keyringUser    = "github-token"
)

// TokenStore reads and writes the GitHub token.
type TokenStore struct {
	service      string
	fallbackPath string
	log          logging.Logger
}

// NewTokenStore builds a store using the default fallback location,
// ~/.signdeck/token.
func NewTokenStore(log logging.Logger) (*TokenStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	return &TokenStore{
		service:      keyringService,
		fallbackPath: filepath.Join(home, ".signdeck", "token"),
		log:          log.WithComponent("secrets"),
	}, nil
}

// NewTokenStoreAt builds a store with an explicit fallback path. Used in
// tests and by the SIGNDECK_TOKEN_FILE override.
func NewTokenStoreAt(fallbackPath string, log logging.Logger) *TokenStore {
	return &TokenStore{
		service:      keyringService,
		fallbackPath: fallbackPath,
		log:          log.WithComponent("secrets"),
	}
}

// Set stores the token, preferring the keyring.
func (s *TokenStore) Set(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.NewValidation("empty_token", "token must not be empty")
	}

	if err := keyring.Set(s.service, keyringUser, token); err == nil {
		s.log.Info(ctx, "token stored in keyring")
		return nil
	} else {
		s.log.Warn(ctx, err, "keyring unavailable, using file fallback", "path", s.fallbackPath)
	}

	if err := os.MkdirAll(filepath.Dir(s.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	if err := os.WriteFile(s.fallbackPath, []byte(obfuscate(token)), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// Get returns the stored token, checking the keyring first and the file
// fallback second. A missing token yields errors.ErrNotFound.
func (s *TokenStore) Get(ctx context.Context) (string, error) {
	if token, err := keyring.Get(s.service, keyringUser); err == nil {
		return token, nil
	}

	data, err := os.ReadFile(s.fallbackPath)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("github token: %w", errors.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	token, err := deobfuscate(strings.TrimSpace(string(data)))
	if err != nil {
		return "", fmt.Errorf("decode token file: %w", err)
	}
	return token, nil
}

// Clear removes the token from both backends.
func (s *TokenStore) Clear(ctx context.Context) error {
	keyringErr := keyring.Delete(s.service, keyringUser)

	fileErr := os.Remove(s.fallbackPath)
	if os.IsNotExist(fileErr) {
		fileErr = nil
	}

	if keyringErr != nil && fileErr != nil {
		return fmt.Errorf("clear token: keyring: %v, file: %v", keyringErr, fileErr)
	}
	return fileErr
}

// The file fallback is obfuscated, not encrypted: it only keeps the
// token out of casual greps and shoulder-surfing, matching what the old
// console did in localStorage. Anything that can read the file can
// recover the token.
var keystream = sha256.Sum256([]byte("signdeck-token-v1"))

func xorKeystream(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ keystream[i%len(keystream)]
	}
	return out
}

func obfuscate(token string) string {
	return base64.StdEncoding.EncodeToString(xorKeystream([]byte(token)))
}

func deobfuscate(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", err
	}
	return string(xorKeystream(raw)), nil
}
