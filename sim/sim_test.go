package sim

import (
	"context"
	"flag"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"golang.org/x/exp/slices"

	"replaynav.com/replaysync"
)

func init() {
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
	flag.Set("v", "0")
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	endTime := time.Now().Add(10 * time.Second)
	for !condition() {
		if endTime.Before(time.Now()) {
			t.Fatal("Timeout waiting for condition.")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// the full loop over a real websocket: discovery polling against a
// slow-loading surface, timeline derivation, user navigation, and the
// surface navigating on its own
func TestSurfaceEndToEnd(t *testing.T) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collInfo := &replaysync.CollectionInfo{
		Pages: []replaysync.PageRecord{
			{Url: "https://x/", Ts: 100},
			{Url: "https://x/", Ts: 200},
			{Url: "https://y/", Ts: 300},
		},
	}

	surfaceSettings := DefaultSurfaceSettings()
	// long enough that at least one poll goes unanswered
	surfaceSettings.CollInfoDelay = 50 * time.Millisecond

	surface := NewSurface(cancelCtx, collInfo, "https://x/", 100, surfaceSettings)
	defer surface.Close()

	server := httptest.NewServer(surface)
	defer server.Close()
	surfaceUrl := "ws" + strings.TrimPrefix(server.URL, "http")

	transport, err := replaysync.NewSurfaceTransportWithDefaults(cancelCtx, surfaceUrl)
	assert.Equal(t, err, nil)
	defer transport.Close()

	syncSettings := replaysync.DefaultTimelineSyncSettings()
	syncSettings.PollerSettings.PollInterval = 10 * time.Millisecond

	sync := replaysync.NewTimelineSync(cancelCtx, transport, syncSettings)
	defer sync.Deactivate()
	transport.SetSink(sync)

	assert.Equal(t, sync.Activate(), nil)
	assert.Equal(t, sync.State(), replaysync.SyncStateAwaitingMetadata)

	// discovery completes once the surface is ready
	waitFor(t, func() bool {
		return sync.State() == replaysync.SyncStateReady
	})
	waitFor(t, func() bool {
		return !sync.PollerActive()
	})

	// the surface reported its displayed page after the metadata
	waitFor(t, func() bool {
		return slices.Equal(sync.Timeline(), replaysync.Timeline{100, 200})
	})
	assert.Equal(t, sync.TimelineIndex(), 0)
	assert.Equal(t, sync.Url(), "https://x/")

	// user steps forward; the surface switches snapshots and reports back
	sync.Next()
	assert.Equal(t, sync.TimelineIndex(), 1)
	waitFor(t, func() bool {
		_, ts := surface.Url()
		return ts == replaysync.Ts(200)
	})
	waitFor(t, func() bool {
		return sync.Ts() == replaysync.Ts(200)
	})

	// a link click inside the archived page moves the surface on its own;
	// the host timeline follows the new url
	surface.Navigate("https://y/", 300)
	waitFor(t, func() bool {
		return slices.Equal(sync.Timeline(), replaysync.Timeline{300})
	})
	assert.Equal(t, sync.TimelineIndex(), 0)
	assert.Equal(t, sync.Url(), "https://y/")

	// and back, with both captures visible again
	surface.Navigate("https://x/", 100)
	waitFor(t, func() bool {
		return slices.Equal(sync.Timeline(), replaysync.Timeline{100, 200})
	})
}

// the transport survives the surface severing the socket: discovery resumes
// on the new connection when metadata had not arrived yet, and host state
// rides through drops after it had
func TestSurfaceReconnect(t *testing.T) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collInfo := &replaysync.CollectionInfo{
		Pages: []replaysync.PageRecord{
			{Url: "https://x/", Ts: 100},
			{Url: "https://x/", Ts: 200},
		},
	}

	surfaceSettings := DefaultSurfaceSettings()
	// long enough to drop the first connection while still loading
	surfaceSettings.CollInfoDelay = 300 * time.Millisecond

	surface := NewSurface(cancelCtx, collInfo, "https://x/", 100, surfaceSettings)
	defer surface.Close()

	server := httptest.NewServer(surface)
	defer server.Close()
	surfaceUrl := "ws" + strings.TrimPrefix(server.URL, "http")

	transportSettings := replaysync.DefaultSurfaceTransportSettings()
	transportSettings.ReconnectTimeout = 50 * time.Millisecond

	transport, err := replaysync.NewSurfaceTransport(cancelCtx, surfaceUrl, transportSettings)
	assert.Equal(t, err, nil)
	defer transport.Close()

	syncSettings := replaysync.DefaultTimelineSyncSettings()
	syncSettings.PollerSettings.PollInterval = 10 * time.Millisecond

	sync := replaysync.NewTimelineSync(cancelCtx, transport, syncSettings)
	defer sync.Deactivate()
	transport.SetSink(sync)
	assert.Equal(t, sync.Activate(), nil)

	// sever the socket before any metadata was answered
	waitFor(t, func() bool {
		return 1 <= surface.ConnectionCount()
	})
	assert.Equal(t, sync.State(), replaysync.SyncStateAwaitingMetadata)
	surface.DropConnections()

	// the host dials back on its own
	waitFor(t, func() bool {
		return 1 <= surface.ConnectionCount()
	})

	// polling never stopped, so discovery completes on the new connection
	waitFor(t, func() bool {
		return sync.State() == replaysync.SyncStateReady
	})
	waitFor(t, func() bool {
		return slices.Equal(sync.Timeline(), replaysync.Timeline{100, 200})
	})
	assert.Equal(t, sync.TimelineIndex(), 0)

	sync.Next()
	assert.Equal(t, sync.TimelineIndex(), 1)
	waitFor(t, func() bool {
		_, ts := surface.Url()
		return ts == replaysync.Ts(200)
	})

	// a second drop after metadata: host state rides through
	surface.DropConnections()
	waitFor(t, func() bool {
		return 1 <= surface.ConnectionCount()
	})
	assert.Equal(t, slices.Equal(sync.Timeline(), replaysync.Timeline{100, 200}), true)
	assert.Equal(t, sync.TimelineIndex(), 1)
	assert.Equal(t, sync.State(), replaysync.SyncStateReady)

	// and the new connection is live both ways
	sync.Previous()
	assert.Equal(t, sync.TimelineIndex(), 0)
	waitFor(t, func() bool {
		_, ts := surface.Url()
		return ts == replaysync.Ts(100)
	})
}
