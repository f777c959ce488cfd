package replaysync

import (
	"context"
	"time"

	"github.com/golang/glog"
)

// (payload, target origin)
type SendFunction = func(payload []byte, targetOrigin string)

type CollInfoPollerSettings struct {
	PollInterval time.Duration
}

func DefaultCollInfoPollerSettings() *CollInfoPollerSettings {
	return &CollInfoPollerSettings{
		PollInterval: 250 * time.Millisecond,
	}
}

// CollInfoPoller repeatedly asks the surface for collection metadata until it
// has been received. The wait is unbounded - the surface's own load time is
// unpredictable and discovery has no timeout. Several requests may be in
// flight at once since replies are not correlated; that is safe because
// accepting collection info is idempotent. `have` is checked before each
// send rather than tracking in-flight requests.
type CollInfoPoller struct {
	ctx    context.Context
	cancel context.CancelFunc

	send         SendFunction
	targetOrigin string
	have         func() bool

	settings *CollInfoPollerSettings
}

func NewCollInfoPollerWithDefaults(
	ctx context.Context,
	send SendFunction,
	targetOrigin string,
	have func() bool,
) *CollInfoPoller {
	return NewCollInfoPoller(ctx, send, targetOrigin, have, DefaultCollInfoPollerSettings())
}

func NewCollInfoPoller(
	ctx context.Context,
	send SendFunction,
	targetOrigin string,
	have func() bool,
	settings *CollInfoPollerSettings,
) *CollInfoPoller {
	cancelCtx, cancel := context.WithCancel(ctx)
	poller := &CollInfoPoller{
		ctx:          cancelCtx,
		cancel:       cancel,
		send:         send,
		targetOrigin: targetOrigin,
		have:         have,
		settings:     settings,
	}
	go poller.run()
	return poller
}

func (self *CollInfoPoller) run() {
	defer self.cancel()

	request, err := EncodeSurfaceMessage(&SurfaceMessage{
		GetCollInfo: true,
	})
	if err != nil {
		glog.Errorf("[poll]encode error = %s\n", err)
		return
	}

	for {
		if self.have() {
			glog.V(1).Infof("[poll]done\n")
			return
		}
		self.send(request, self.targetOrigin)
		glog.V(2).Infof("[poll]->getCollInfo\n")
		select {
		case <-self.ctx.Done():
			return
		case <-time.After(self.settings.PollInterval):
		}
	}
}

// safe to call any number of times
func (self *CollInfoPoller) Stop() {
	self.cancel()
}

func (self *CollInfoPoller) IsActive() bool {
	select {
	case <-self.ctx.Done():
		return false
	default:
		return true
	}
}
