package replaysync

import (
	"golang.org/x/exp/slices"
)

// capture timestamps available for one url, ascending
type Timeline = []Ts

// BuildTimeline derives the timeline for `url` from the collection metadata:
// the timestamps of all page records whose normalized url matches, sorted
// ascending. Repeated identical timestamps are kept as repeated entries,
// matching the catalog (one entry per capture, even when captures collide on
// the same second). Missing or empty metadata yields an empty timeline.
func BuildTimeline(collInfo *CollectionInfo, url string) Timeline {
	timeline := Timeline{}
	if collInfo == nil {
		return timeline
	}
	normalizedUrl := NormalizeUrl(url)
	for _, page := range collInfo.Pages {
		if NormalizeUrl(page.Url) == normalizedUrl {
			timeline = append(timeline, page.Ts)
		}
	}
	slices.Sort(timeline)
	return timeline
}
