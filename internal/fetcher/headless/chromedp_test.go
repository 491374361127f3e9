package headless

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	nav, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	t.Cleanup(nav.Close)
	assert.Equal(t, 2, cap(nav.limiter))
	assert.Equal(t, 500*time.Millisecond, nav.cfg.SettleDelay)
}

func TestNavigatorNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	nav := &Navigator{}
	assert.Equal(t, 45*time.Second, nav.navTimeout())
	nav.cfg.NavigationTimeout = time.Second
	assert.Equal(t, time.Second, nav.navTimeout())
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	nav := &Navigator{limiter: make(chan struct{}, 1)}
	require.NoError(t, nav.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, nav.acquire(ctx), context.Canceled)

	nav.release()
	require.NoError(t, nav.acquire(context.Background()))
	nav.release()
	nav.release()
}

func TestResponseMetaResolve(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 301, URL: "https://example.com/old"},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://example.com/rendered"},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404, URL: "https://example.com/p.png"},
	})
	meta.captureEvent(&network.EventLoadingFinished{})

	assert.Equal(t, "https://example.com/rendered", meta.resolve("https://req", ""))
	assert.Equal(t, "https://final", meta.resolve("https://req", "https://final"))
	assert.Equal(t, "https://req", newResponseMeta().resolve("https://req", ""))
}
