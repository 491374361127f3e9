// Package frontiertest holds behavioral checks shared by every frontier backend.
package frontiertest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/imagecrawler/internal/crawler"
)

// Factory returns a fresh, empty frontier for a single subtest.
type Factory func(t *testing.T) crawler.Frontier

// Run exercises the crawler.Frontier contract against the backend built by newFrontier.
func Run(t *testing.T, newFrontier Factory) {
	t.Helper()

	t.Run("EnqueueIsIdempotent", func(t *testing.T) {
		f := newFrontier(t)
		ctx := context.Background()

		require.NoError(t, f.EnqueueContent(ctx, []string{"https://x.test/", "https://x.test/"}))
		require.NoError(t, f.MarkContentVisited(ctx, "https://x.test/", crawler.TagFetchFailure))
		require.NoError(t, f.EnqueueContent(ctx, []string{"https://x.test/"}))

		_, ok, err := f.NextContent(ctx)
		require.NoError(t, err)
		assert.False(t, ok, "re-enqueue must not reset a visited record")
	})

	t.Run("NextContentSkipsVisited", func(t *testing.T) {
		f := newFrontier(t)
		ctx := context.Background()

		require.NoError(t, f.EnqueueContent(ctx, []string{"https://x.test/a", "https://x.test/b"}))
		first, ok, err := f.NextContent(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		again, ok, err := f.NextContent(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, first, again, "next must not mark the url visited")

		require.NoError(t, f.MarkContentVisited(ctx, first, ""))
		second, ok, err := f.NextContent(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.NotEqual(t, first, second)

		require.NoError(t, f.MarkContentVisited(ctx, second, ""))
		_, ok, err = f.NextContent(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("NextPicturesHonorsLimit", func(t *testing.T) {
		f := newFrontier(t)
		ctx := context.Background()

		urls := make([]string, 5)
		for i := range urls {
			urls[i] = fmt.Sprintf("https://x.test/%d.png", i)
		}
		require.NoError(t, f.EnqueuePictures(ctx, urls))

		got, err := f.NextPictures(ctx, 3)
		require.NoError(t, err)
		assert.Len(t, got, 3)
		for _, u := range got {
			require.NoError(t, f.MarkPictureVisited(ctx, u, ""))
		}

		rest, err := f.NextPictures(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, rest, 2)
		assert.NotContains(t, rest, got[0])

		none, err := f.NextPictures(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("FirstMarkWins", func(t *testing.T) {
		f := newFrontier(t)
		ctx := context.Background()

		require.NoError(t, f.EnqueuePictures(ctx, []string{"https://x.test/p.png"}))
		require.NoError(t, f.MarkPictureVisited(ctx, "https://x.test/p.png", "HTTP_STATUS:404"))
		require.NoError(t, f.MarkPictureVisited(ctx, "https://x.test/p.png", ""))

		next, err := f.NextPictures(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, next)
		if inspector, ok := f.(Inspector); ok {
			rec, found, err := inspector.Lookup(ctx, crawler.KindPicture, "https://x.test/p.png")
			require.NoError(t, err)
			require.True(t, found)
			assert.True(t, rec.Visited)
			assert.Equal(t, "HTTP_STATUS:404", rec.Error)
		}
	})

	t.Run("FrontiersAreSeparate", func(t *testing.T) {
		f := newFrontier(t)
		ctx := context.Background()

		require.NoError(t, f.EnqueuePictures(ctx, []string{"https://x.test/p.png"}))
		_, ok, err := f.NextContent(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, f.EnqueueContent(ctx, []string{"https://x.test/p.png"}))
		require.NoError(t, f.MarkContentVisited(ctx, "https://x.test/p.png", ""))
		pics, err := f.NextPictures(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://x.test/p.png"}, pics)
	})

	t.Run("StoredPictureDedupesByHash", func(t *testing.T) {
		f := newFrontier(t)
		ctx := context.Background()

		first := crawler.StoredPicture{ContentHash: "abcdef012345678", SourceURL: "https://x.test/1.png", RelativePath: "ab/cd/ef/abcdef012345678.png"}
		second := first
		second.SourceURL = "https://x.test/2.png"
		require.NoError(t, f.RecordStoredPicture(ctx, first))
		require.NoError(t, f.RecordStoredPicture(ctx, second))

		if inspector, ok := f.(Inspector); ok {
			pics, err := inspector.StoredPictureList(ctx)
			require.NoError(t, err)
			require.Len(t, pics, 1)
			assert.Equal(t, first.SourceURL, pics[0].SourceURL)
		}
	})

	t.Run("ConcurrentCallers", func(t *testing.T) {
		f := newFrontier(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := range 9 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				u := fmt.Sprintf("https://x.test/%d.png", i)
				assert.NoError(t, f.EnqueuePictures(ctx, []string{u, "https://x.test/shared.png"}))
				assert.NoError(t, f.MarkPictureVisited(ctx, u, ""))
			}()
		}
		wg.Wait()

		pics, err := f.NextPictures(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://x.test/shared.png"}, pics)
	})
}

// Inspector is implemented by backends that can read records back for assertions.
type Inspector interface {
	Lookup(ctx context.Context, kind crawler.URLKind, url string) (crawler.URLRecord, bool, error)
	StoredPictureList(ctx context.Context) ([]crawler.StoredPicture, error)
}
