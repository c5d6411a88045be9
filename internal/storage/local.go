package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const fileTokenAudience = "files"

// LocalBackend stores files on disk and serves them through JWT-signed links.
type LocalBackend struct {
	dir     string
	baseURL string
	secret  []byte
}

func NewLocalBackend(dir, publicURL, secret string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &LocalBackend{
		dir:     dir,
		baseURL: strings.TrimRight(publicURL, "/"),
		secret:  []byte(secret),
	}, nil
}

func (b *LocalBackend) Put(_ context.Context, key string, data []byte, _ string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Delete removes key. Missing files are not an error.
func (b *LocalBackend) Delete(_ context.Context, key string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (b *LocalBackend) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   cleaned,
		Audience:  jwt.ClaimStrings{fileTokenAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	})
	signed, err := token.SignedString(b.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign file token: %w", err)
	}

	return b.baseURL + "/files/" + cleaned + "?token=" + url.QueryEscape(signed), nil
}

// Resolve checks that token grants access to key and returns the file path.
func (b *LocalBackend) Resolve(key, token string) (string, error) {
	cleaned, err := cleanKey(strings.TrimPrefix(key, "/"))
	if err != nil {
		return "", err
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return b.secret, nil
	}, jwt.WithAudience(fileTokenAudience), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid || claims.Subject != cleaned {
		return "", ErrInvalidToken
	}

	return b.path(cleaned)
}

func (b *LocalBackend) path(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.dir, filepath.FromSlash(cleaned)), nil
}
