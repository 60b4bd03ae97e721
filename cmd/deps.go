package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/vantagesign/signdeck/internal/cdn"
	"github.com/vantagesign/signdeck/internal/config"
	"github.com/vantagesign/signdeck/internal/github"
	"github.com/vantagesign/signdeck/internal/logging"
	"github.com/vantagesign/signdeck/internal/secrets"
)

// newLogger builds the process logger from the persistent flags.
func newLogger() logging.Logger {
	return logging.New(&logging.Config{
		Level:  logging.ParseLevel(viper.GetString("log-level")),
		Format: viper.GetString("log-format"),
		Output: os.Stderr,
	})
}

// newTokenStore honors the SIGNDECK_TOKEN_FILE override for the file
// fallback location.
func newTokenStore(log logging.Logger) (*secrets.TokenStore, error) {
	if path := os.Getenv("SIGNDECK_TOKEN_FILE"); path != "" {
		return secrets.NewTokenStoreAt(path, log), nil
	}
	return secrets.NewTokenStore(log)
}

// resolveToken finds the GitHub token: the SIGNDECK_GITHUB_TOKEN
// environment variable wins, then the token store.
func resolveToken(ctx context.Context, log logging.Logger) (string, error) {
	if token := os.Getenv("SIGNDECK_GITHUB_TOKEN"); token != "" {
		return token, nil
	}

	store, err := newTokenStore(log)
	if err != nil {
		return "", err
	}
	token, err := store.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("no GitHub token configured (run `signdeck token set`): %w", err)
	}
	return token, nil
}

// newPublisher wires the CDN publisher from config and the stored
// token.
func newPublisher(ctx context.Context, cfg *config.Config, log logging.Logger) (*cdn.Publisher, error) {
	token, err := resolveToken(ctx, log)
	if err != nil {
		return nil, err
	}
	client := github.NewClient(cfg.GitHub, token, log)
	return cdn.NewPublisher(client, cfg.GitHub, log), nil
}
