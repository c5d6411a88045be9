// Package storage keeps uploaded and generated files behind a narrow backend interface.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"fleetops/internal/config"
	"fleetops/internal/retry"
)

var (
	ErrInvalidKey   = errors.New("invalid storage key")
	ErrInvalidToken = errors.New("invalid or expired file token")
)

// Backend stores opaque objects by key.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	// SignedURL returns a time-limited download link for key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// New builds the configured backend wrapped with the outbound retry policy.
func New(ctx context.Context, cfg config.Storage, publicURL, secret string, policy retry.Policy) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch cfg.Backend {
	case "s3":
		b, err = NewS3Backend(ctx, cfg.S3)
	default:
		b, err = NewLocalBackend(cfg.LocalDir, publicURL, secret)
	}
	if err != nil {
		return nil, err
	}
	return WithRetry(b, policy), nil
}

// DocumentKey names an uploaded rider document.
func DocumentKey(riderID uuid.UUID, ext string) string {
	return fmt.Sprintf("riders/%s/documents/%s%s", riderID, uuid.NewString(), strings.ToLower(ext))
}

// AcknowledgementKey names a generated acknowledgement PDF.
func AcknowledgementKey(riderID uuid.UUID, ackType string) string {
	return fmt.Sprintf("riders/%s/acknowledgements/%s-%s.pdf", riderID, strings.ToLower(ackType), uuid.NewString())
}

// cleanKey rejects absolute keys and keys escaping the storage root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

type retryingBackend struct {
	next   Backend
	policy retry.Policy
}

// WithRetry retries writes and deletes on b according to policy.
func WithRetry(b Backend, policy retry.Policy) Backend {
	return &retryingBackend{next: b, policy: policy}
}

func (r *retryingBackend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return r.policy.Do(ctx, "storage.put", func(ctx context.Context) error {
		return permanentIfInvalid(r.next.Put(ctx, key, data, contentType))
	})
}

func (r *retryingBackend) Delete(ctx context.Context, key string) error {
	return r.policy.Do(ctx, "storage.delete", func(ctx context.Context) error {
		return permanentIfInvalid(r.next.Delete(ctx, key))
	})
}

func (r *retryingBackend) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return r.next.SignedURL(ctx, key, ttl)
}

// Unwrap returns the wrapped backend.
func (r *retryingBackend) Unwrap() Backend {
	return r.next
}

func permanentIfInvalid(err error) error {
	if errors.Is(err, ErrInvalidKey) {
		return retry.Permanent(err)
	}
	return err
}

// Local returns the LocalBackend behind b, if any.
func Local(b Backend) (*LocalBackend, bool) {
	for {
		switch v := b.(type) {
		case *LocalBackend:
			return v, true
		case interface{ Unwrap() Backend }:
			b = v.Unwrap()
		default:
			return nil, false
		}
	}
}
