package replaysync

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestNormalizeUrl(t *testing.T) {
	assert.Equal(t, NormalizeUrl("http://a/p"), "http://a/p")
	assert.Equal(t, NormalizeUrl("http://a/p#x"), "http://a/p")
	assert.Equal(t, NormalizeUrl("http://a/p#x"), NormalizeUrl("http://a/p#y"))
	assert.Equal(t, NormalizeUrl("http://a/p?q=1#frag"), "http://a/p?q=1")
	assert.Equal(t, NormalizeUrl(""), "")
	// only the first fragment marker counts
	assert.Equal(t, NormalizeUrl("http://a/p#x#y"), "http://a/p")
}

func TestNormalizeUrlIdempotent(t *testing.T) {
	urls := []string{
		"http://a/p",
		"http://a/p#x",
		"https://replay.example/page?a=b#c",
		"#onlyfragment",
		"",
	}
	for _, url := range urls {
		assert.Equal(t, NormalizeUrl(NormalizeUrl(url)), NormalizeUrl(url))
	}
}
