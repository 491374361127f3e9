package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/imagecrawler/internal/crawler"
)

func TestDownloadSuccess(t *testing.T) {
	t.Parallel()

	agents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("pixels"))
	}))
	t.Cleanup(srv.Close)

	data, err := New(DefaultConfig(), nil).Download(context.Background(), srv.URL+"/p.png")
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
	assert.Equal(t, DefaultUserAgent, <-agents)
}

func TestDownloadFailureTags(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/missing.png", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	mux.HandleFunc("/loop.png", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop.png", http.StatusFound)
	})
	mux.HandleFunc("/slow.png", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.Timeout = 100 * time.Millisecond
	d := New(cfg, nil)

	tests := []struct {
		name string
		url  string
		want string
	}{
		{"status", srv.URL + "/missing.png", "HTTP_STATUS:404"},
		{"redirect loop", srv.URL + "/loop.png", crawler.TagTooManyRedirects},
		{"timeout", srv.URL + "/slow.png", crawler.TagTimeout},
		{"refused", "http://127.0.0.1:1/p.png", crawler.TagUnknownRequestFailure},
		{"bad url", "http://[::1", crawler.TagUnknownRequestFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := d.Download(context.Background(), tc.url)
			require.Error(t, err)
			assert.Equal(t, tc.want, crawler.FailureTag(err))
		})
	}
}

func TestDownloadFollowsRedirectsWithinLimit(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final.png", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/final.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	data, err := New(Config{MaxRedirects: 1}, nil).Download(context.Background(), srv.URL+"/hop")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

func TestDownloadBodyLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{MaxBytes: 16}, nil).Download(context.Background(), srv.URL)
	require.ErrorIs(t, err, crawler.ErrRequestFailed)
}
