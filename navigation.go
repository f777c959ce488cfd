package replaysync

import (
	"strconv"

	"github.com/golang/glog"
)

// navigationController owns the timeline index. Invalid requests are silently
// ignored rather than surfaced, to absorb rapid or stray input without
// disturbing the display. All methods are called while holding the owning
// sync machine's state lock; each returns whether an index was applied, so
// the owner can refresh presentation outside the lock.
type navigationController struct {
	sendSwitch func(ts Ts)

	timeline Timeline
	// -1 while the timeline is empty
	index int
}

func newNavigationController(sendSwitch func(ts Ts)) *navigationController {
	return &navigationController{
		sendSwitch: sendSwitch,
		timeline:   Timeline{},
		index:      -1,
	}
}

func (self *navigationController) next() bool {
	if self.index < 0 || len(self.timeline) <= self.index+1 {
		return false
	}
	return self.apply(self.index + 1)
}

func (self *navigationController) previous() bool {
	if self.index-1 < 0 {
		return false
	}
	return self.apply(self.index - 1)
}

func (self *navigationController) jumpTo(rawIndex string) bool {
	index, err := strconv.Atoi(rawIndex)
	if err != nil {
		// not a number, same as out of range
		return false
	}
	if index < 0 || len(self.timeline) <= index {
		return false
	}
	return self.apply(index)
}

// the stored index and the outbound switch message change together, so no
// caller can observe "index moved but surface not told"
func (self *navigationController) apply(index int) bool {
	self.index = index
	ts := self.timeline[index]
	self.sendSwitch(ts)
	glog.V(1).Infof("[nav]apply index=%d ts=%d\n", index, ts)
	return true
}

// replaces the timeline wholesale on rebuild. The index resets to 0 the
// first time a timeline becomes non-empty, is preserved while still in
// range, and clamps to the last element when a rebuild shrinks the timeline
// under it. Never emits a switch message - a rebuild is not user intent.
func (self *navigationController) setTimeline(timeline Timeline) {
	self.timeline = timeline
	if len(timeline) == 0 {
		self.index = -1
	} else if self.index < 0 {
		self.index = 0
	} else if len(timeline) <= self.index {
		self.index = len(timeline) - 1
	}
}
