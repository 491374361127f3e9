package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// newTestClient creates a storage client pointed at a test server.
func newTestClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client := newTestClient(t, http.NotFoundHandler())
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestPutObjectUploadsUnderPrefix(t *testing.T) {
	t.Parallel()

	data := []byte("png-bytes")
	var gotName string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// This handler simulates the GCS JSON API for multipart uploads.
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/images-bucket/o")
		gotName = r.URL.Query().Get("name")

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), string(data))
		assert.Contains(t, string(body), "image/png")

		fmt.Fprintf(w, `{"name": %q, "bucket": "images-bucket"}`, gotName)
	})

	store, err := New(newTestClient(t, handler), Config{Bucket: "images-bucket", Prefix: "/run-1/images/"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "ab/cd/ef/abcdef.png", "image/png", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "run-1/images/ab/cd/ef/abcdef.png", gotName)
	assert.Equal(t, "gs://images-bucket/run-1/images/ab/cd/ef/abcdef.png", uri)
	require.NoError(t, store.Close())
}

func TestPutObjectReportsServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"denied"}}`))
	})
	store, err := New(newTestClient(t, handler), Config{Bucket: "images-bucket"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "x.png", "image/png", strings.NewReader("x"))
	require.Error(t, err)

	_, err = store.PutObject(context.Background(), " ", "image/png", strings.NewReader("x"))
	require.Error(t, err)
}
