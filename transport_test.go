package replaysync

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestResolveOrigin(t *testing.T) {
	origin, err := ResolveOrigin("wss://replay.example/sync")
	assert.Equal(t, err, nil)
	assert.Equal(t, origin, "https://replay.example")

	origin, err = ResolveOrigin("ws://127.0.0.1:8654/sync?coll=main#frag")
	assert.Equal(t, err, nil)
	assert.Equal(t, origin, "http://127.0.0.1:8654")

	_, err = ResolveOrigin("https://replay.example/sync")
	assert.NotEqual(t, err, nil)
	_, err = ResolveOrigin("ws://")
	assert.NotEqual(t, err, nil)
	_, err = ResolveOrigin("::notaurl")
	assert.NotEqual(t, err, nil)
}
