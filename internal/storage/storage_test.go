package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/config"
	"fleetops/internal/retry"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{"riders/a/doc.pdf", "riders/a/doc.pdf", false},
		{"riders//a/./doc.pdf", "riders/a/doc.pdf", false},
		{"", "", true},
		{"/etc/passwd", "", true},
		{"../secret", "", true},
		{"riders/../../secret", "", true},
		{"a\\b", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := cleanKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeys(t *testing.T) {
	id := uuid.New()
	assert.True(t, strings.HasPrefix(DocumentKey(id, ".PDF"), "riders/"+id.String()+"/documents/"))
	assert.True(t, strings.HasSuffix(DocumentKey(id, ".PDF"), ".pdf"))
	assert.Contains(t, AcknowledgementKey(id, "VISA"), "/acknowledgements/visa-")
}

func TestLocalBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalBackend(dir, "http://api.test/", "secret")
	require.NoError(t, err)
	ctx := context.Background()

	key := "riders/1/documents/a.pdf"
	require.NoError(t, b.Put(ctx, key, []byte("%PDF"), "application/pdf"))

	link, err := b.SignedURL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "http://api.test/files/"+key+"?token="))

	u, err := url.Parse(link)
	require.NoError(t, err)
	p, err := b.Resolve(strings.TrimPrefix(u.Path, "/files"), u.Query().Get("token"))
	require.NoError(t, err)

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	// token is bound to its key
	_, err = b.Resolve("riders/1/documents/other.pdf", u.Query().Get("token"))
	assert.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, b.Delete(ctx, key))
	require.NoError(t, b.Delete(ctx, key), "deleting a missing file is not an error")
	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err))
}

func TestLocalBackendRejectsExpiredAndForeignTokens(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir(), "http://api.test", "secret")
	require.NoError(t, err)
	other, err := NewLocalBackend(t.TempDir(), "http://api.test", "other-secret")
	require.NoError(t, err)
	ctx := context.Background()

	expired, err := b.SignedURL(ctx, "k.pdf", -time.Minute)
	require.NoError(t, err)
	u, _ := url.Parse(expired)
	_, err = b.Resolve("k.pdf", u.Query().Get("token"))
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign, err := other.SignedURL(ctx, "k.pdf", time.Minute)
	require.NoError(t, err)
	u, _ = url.Parse(foreign)
	_, err = b.Resolve("k.pdf", u.Query().Get("token"))
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.ErrorIs(t, b.Put(ctx, "../escape", nil, ""), ErrInvalidKey)
}

type flakyBackend struct {
	mu       sync.Mutex
	failures int
	puts     int
}

func (f *flakyBackend) Put(context.Context, string, []byte, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.puts <= f.failures {
		return errors.New("temporary outage")
	}
	return nil
}

func (f *flakyBackend) Delete(context.Context, string) error { return ErrInvalidKey }

func (f *flakyBackend) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "signed", nil
}

func TestWithRetry(t *testing.T) {
	policy := retry.Policy{Timeout: time.Second, Retries: 2, InitialBackoff: time.Millisecond}
	ctx := context.Background()

	flaky := &flakyBackend{failures: 2}
	require.NoError(t, WithRetry(flaky, policy).Put(ctx, "k", nil, ""))
	assert.Equal(t, 3, flaky.puts)

	down := &flakyBackend{failures: 10}
	assert.Error(t, WithRetry(down, policy).Put(ctx, "k", nil, ""))
	assert.Equal(t, 3, down.puts)

	// invalid keys are not retried
	assert.ErrorIs(t, WithRetry(down, policy).Delete(ctx, "k"), ErrInvalidKey)
}

func TestNewAndLocal(t *testing.T) {
	b, err := New(context.Background(), config.Storage{Backend: "local", LocalDir: t.TempDir()}, "http://x", "s", retry.Default)
	require.NoError(t, err)

	local, ok := Local(b)
	require.True(t, ok)
	assert.NotNil(t, local)

	_, ok = Local(&flakyBackend{})
	assert.False(t, ok)
}

func TestS3Backend(t *testing.T) {
	type call struct {
		method, path, contentType, body string
	}
	var (
		mu    sync.Mutex
		calls []call
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, call{r.Method, r.URL.Path, r.Header.Get("Content-Type"), string(body)})
		mu.Unlock()
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewS3Backend(context.Background(), config.S3{
		Bucket:          "fleet",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "riders/1/a.pdf", []byte("%PDF"), "application/pdf"))
	require.NoError(t, b.Delete(ctx, "riders/1/a.pdf"))

	mu.Lock()
	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodPut, calls[0].method)
	assert.Equal(t, "/fleet/riders/1/a.pdf", calls[0].path)
	assert.Equal(t, "application/pdf", calls[0].contentType)
	assert.Contains(t, calls[0].body, "%PDF")
	assert.Equal(t, http.MethodDelete, calls[1].method)
	mu.Unlock()

	link, err := b.SignedURL(ctx, "riders/1/a.pdf", 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, srv.URL+"/fleet/riders/1/a.pdf?"))
	assert.Contains(t, link, "X-Amz-Signature=")
	assert.Contains(t, link, "X-Amz-Expires=900")
}
