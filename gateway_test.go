package replaysync

import (
	"context"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestMessageGatewayFilters(t *testing.T) {
	ctx := context.Background()

	peerId := NewPeerId()
	gateway := NewMessageGatewayWithDefaults(ctx, peerId, "https://replay.example")

	navPayload, err := EncodeSurfaceMessage(&SurfaceMessage{
		View: ViewPages,
		Url:  "https://x/",
		Ts:   100,
	})
	assert.Equal(t, err, nil)

	// empty payload
	gateway.Deliver(&Envelope{
		SourceId: peerId,
		Origin:   "https://replay.example",
	})
	// foreign source, same origin
	gateway.Deliver(&Envelope{
		SourceId: NewPeerId(),
		Origin:   "https://replay.example",
		Payload:  navPayload,
	})
	// registered source, foreign origin
	gateway.Deliver(&Envelope{
		SourceId: peerId,
		Origin:   "https://evil.example",
		Payload:  navPayload,
	})
	// malformed payload
	gateway.Deliver(&Envelope{
		SourceId: peerId,
		Origin:   "https://replay.example",
		Payload:  []byte("{nope"),
	})
	// well formed but neither kind
	gateway.Deliver(&Envelope{
		SourceId: peerId,
		Origin:   "https://replay.example",
		Payload:  []byte(`{"hello":"world"}`),
	})
	// collection info with an empty page list does not count
	gateway.Deliver(&Envelope{
		SourceId: peerId,
		Origin:   "https://replay.example",
		Payload:  []byte(`{"collInfo":{"pages":[]}}`),
	})

	assert.Equal(t, len(gateway.Events()), 0)

	// the real thing passes
	gateway.Deliver(&Envelope{
		SourceId: peerId,
		Origin:   "https://replay.example",
		Payload:  navPayload,
	})
	assert.Equal(t, len(gateway.Events()), 1)

	event := <-gateway.Events()
	assert.Equal(t, event.CollInfo, nil)
	assert.Equal(t, event.Navigation, &NavigationNotice{
		Url: "https://x/",
		Ts:  100,
	})
}

func TestMessageGatewayClassifiesBothKinds(t *testing.T) {
	ctx := context.Background()

	peerId := NewPeerId()
	gateway := NewMessageGatewayWithDefaults(ctx, peerId, "https://replay.example")

	// one message carrying both kinds becomes one event
	payload, err := EncodeSurfaceMessage(&SurfaceMessage{
		View: ViewPages,
		Url:  "https://x/",
		Ts:   100,
		CollInfo: &CollectionInfo{
			Pages: []PageRecord{
				{Url: "https://x/", Ts: 100},
			},
		},
	})
	assert.Equal(t, err, nil)

	gateway.Deliver(&Envelope{
		SourceId: peerId,
		Origin:   "https://replay.example",
		Payload:  payload,
	})
	assert.Equal(t, len(gateway.Events()), 1)

	event := <-gateway.Events()
	assert.NotEqual(t, event.Navigation, nil)
	assert.NotEqual(t, event.CollInfo, nil)
	assert.Equal(t, event.CollInfo.Pages[0].Ts, Ts(100))
}
