package replaysync

import (
	"strings"
)

// NormalizeUrl strips the fragment identifier so that url comparisons are
// stable across in-page anchor navigation. The archive catalogs pages by
// fragmentless url, so two urls that differ only in fragment share one
// timeline. Idempotent.
func NormalizeUrl(url string) string {
	if i := strings.IndexByte(url, '#'); 0 <= i {
		return url[:i]
	}
	return url
}
