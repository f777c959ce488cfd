package replaysync

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestBuildTimeline(t *testing.T) {
	collInfo := &CollectionInfo{
		Pages: []PageRecord{
			{Url: "A", Ts: 3},
			{Url: "B", Ts: 1},
			{Url: "A", Ts: 1},
		},
	}

	assert.Equal(t, BuildTimeline(collInfo, "A"), Timeline{1, 3})
	assert.Equal(t, BuildTimeline(collInfo, "B"), Timeline{1})
	assert.Equal(t, BuildTimeline(collInfo, "C"), Timeline{})
}

func TestBuildTimelineNormalizes(t *testing.T) {
	collInfo := &CollectionInfo{
		Pages: []PageRecord{
			{Url: "https://x/p#one", Ts: 100},
			{Url: "https://x/p", Ts: 200},
			{Url: "https://x/q", Ts: 300},
		},
	}

	// fragment differences on either side do not split the timeline
	assert.Equal(t, BuildTimeline(collInfo, "https://x/p#two"), Timeline{100, 200})
	assert.Equal(t, BuildTimeline(collInfo, "https://x/p"), Timeline{100, 200})
}

func TestBuildTimelineKeepsDuplicates(t *testing.T) {
	collInfo := &CollectionInfo{
		Pages: []PageRecord{
			{Url: "A", Ts: 7},
			{Url: "A", Ts: 7},
			{Url: "A", Ts: 2},
		},
	}

	assert.Equal(t, BuildTimeline(collInfo, "A"), Timeline{2, 7, 7})
}

func TestBuildTimelineEmptyMetadata(t *testing.T) {
	assert.Equal(t, BuildTimeline(nil, "A"), Timeline{})
	assert.Equal(t, BuildTimeline(&CollectionInfo{}, "A"), Timeline{})
}
