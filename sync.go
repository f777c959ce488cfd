package replaysync

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"golang.org/x/exp/slices"
)

// coarse state machine is:
// SyncStateUninitialized
//
//	-> SyncStateAwaitingMetadata (on activation)
//	  -> SyncStateReady (on first accepted collection info)
//	-> SyncStateUninitialized (on deactivation, terminal)
type SyncState string

const (
	SyncStateUninitialized    SyncState = "Uninitialized"
	SyncStateAwaitingMetadata SyncState = "AwaitingMetadata"
	SyncStateReady            SyncState = "Ready"
)

func (self SyncState) IsActive() bool {
	switch self {
	case SyncStateAwaitingMetadata, SyncStateReady:
		return true
	default:
		return false
	}
}

type RefreshFunction = func()

// Peer is the resolved handle to the replay surface: a source identity, an
// origin, and a way to send it payloads. Outbound sends name a target origin
// that must match the peer's resolved origin. Resolved once at activation
// and immutable after.
type Peer interface {
	PeerId() PeerId
	Origin() string
	Send(payload []byte, targetOrigin string)
}

// MessageSink receives inbound envelopes from transports
type MessageSink interface {
	Deliver(envelope *Envelope)
}

type TimelineSyncSettings struct {
	PollerSettings  *CollInfoPollerSettings
	GatewaySettings *MessageGatewaySettings
}

func DefaultTimelineSyncSettings() *TimelineSyncSettings {
	return &TimelineSyncSettings{
		PollerSettings:  DefaultCollInfoPollerSettings(),
		GatewaySettings: DefaultMessageGatewaySettings(),
	}
}

// TimelineSync keeps the host-side timeline consistent with a replay surface
// that updates independently. It owns the navigation state reported by the
// surface, the collection metadata, and the derived timeline, rebuilding the
// timeline wholesale whenever the displayed url or the metadata changes.
// Foreign and malformed traffic never reaches it (see MessageGateway), so no
// transition has an error arm.
type TimelineSync struct {
	ctx    context.Context
	cancel context.CancelFunc

	peer Peer

	settings *TimelineSyncSettings

	refreshCallbacks *CallbackList[RefreshFunction]

	stateLock sync.Mutex
	state     SyncState
	// the surface's last reported page, overwritten last-write-wins
	url      string
	ts       Ts
	collInfo *CollectionInfo
	nav      *navigationController
	gateway  *MessageGateway
	poller   *CollInfoPoller
}

func NewTimelineSyncWithDefaults(ctx context.Context, peer Peer) *TimelineSync {
	return NewTimelineSync(ctx, peer, DefaultTimelineSyncSettings())
}

func NewTimelineSync(ctx context.Context, peer Peer, settings *TimelineSyncSettings) *TimelineSync {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &TimelineSync{
		ctx:              cancelCtx,
		cancel:           cancel,
		peer:             peer,
		settings:         settings,
		refreshCallbacks: NewCallbackList[RefreshFunction](),
		state:            SyncStateUninitialized,
		nav:              newNavigationController(nil),
	}
}

// Activate resolves the peer, attaches the message listener, and starts the
// discovery poller. A missing or unresolvable peer is a configuration error:
// the control cannot function without one, so this fails synchronously with
// no retry.
func (self *TimelineSync) Activate() error {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.state != SyncStateUninitialized {
		return fmt.Errorf("already activated (%s)", self.state)
	}
	select {
	case <-self.ctx.Done():
		return fmt.Errorf("deactivated")
	default:
	}
	if self.peer == nil {
		return fmt.Errorf("missing peer")
	}
	peerOrigin := self.peer.Origin()
	if peerOrigin == "" {
		return fmt.Errorf("peer origin not resolved")
	}

	self.nav = newNavigationController(func(ts Ts) {
		payload, err := EncodeSurfaceMessage(&SurfaceMessage{
			UpdateTs: ts,
		})
		if err != nil {
			glog.Errorf("[sync]encode error = %s\n", err)
			return
		}
		self.peer.Send(payload, peerOrigin)
	})
	self.gateway = NewMessageGateway(
		self.ctx,
		self.peer.PeerId(),
		peerOrigin,
		self.settings.GatewaySettings,
	)
	self.poller = NewCollInfoPoller(
		self.ctx,
		self.peer.Send,
		peerOrigin,
		self.hasCollInfo,
		self.settings.PollerSettings,
	)
	self.state = SyncStateAwaitingMetadata
	glog.V(1).Infof("[sync]activate origin=%s\n", peerOrigin)

	go self.run()
	return nil
}

// Deactivate detaches the listener and cancels the poller whether or not
// metadata ever arrived. Terminal; safe to call any number of times.
func (self *TimelineSync) Deactivate() {
	self.cancel()

	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.state = SyncStateUninitialized
}

// `MessageSink`
func (self *TimelineSync) Deliver(envelope *Envelope) {
	self.stateLock.Lock()
	gateway := self.gateway
	self.stateLock.Unlock()

	if gateway == nil {
		// not activated
		return
	}
	gateway.Deliver(envelope)
}

func (self *TimelineSync) run() {
	defer self.cancel()

	for {
		select {
		case <-self.ctx.Done():
			return
		case event := <-self.gateway.Events():
			self.handleEvent(event)
		}
	}
}

// one inbound message triggers at most one rebuild and one presentation
// refresh, even when both kinds independently request it
func (self *TimelineSync) handleEvent(event *GatewayEvent) {
	refresh := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		rebuild := false
		if nav := event.Navigation; nav != nil {
			if NormalizeUrl(nav.Url) != NormalizeUrl(self.url) {
				rebuild = true
			}
			// last write wins, even for a same-url notice
			self.url = nav.Url
			self.ts = nav.Ts
			glog.V(2).Infof("[sync]<-nav url=%s ts=%d\n", nav.Url, nav.Ts)
		}
		if collInfo := event.CollInfo; collInfo != nil {
			// replace wholesale; the metadata may have changed even when the
			// url did not
			self.collInfo = collInfo
			rebuild = true
			// stop is idempotent, signal it on every receipt
			self.poller.Stop()
			if self.state == SyncStateAwaitingMetadata {
				self.state = SyncStateReady
				glog.V(1).Infof("[sync]ready pages=%d\n", len(collInfo.Pages))
			}
		}
		if rebuild {
			self.nav.setTimeline(BuildTimeline(self.collInfo, self.url))
			refresh = true
		}
	}()
	if refresh {
		self.refreshPresentation()
	}
}

func (self *TimelineSync) refreshPresentation() {
	glog.V(2).Infof("[sync]refresh\n")
	for _, refreshCallback := range self.refreshCallbacks.Get() {
		refreshCallback()
	}
}

func (self *TimelineSync) hasCollInfo() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.collInfo != nil && 0 < len(self.collInfo.Pages)
}

// AddRefreshCallback subscribes the presentation layer to state changes.
// The returned func releases the subscription.
func (self *TimelineSync) AddRefreshCallback(refreshCallback RefreshFunction) func() {
	callbackId := self.refreshCallbacks.Add(refreshCallback)
	return func() {
		self.refreshCallbacks.Remove(callbackId)
	}
}

func (self *TimelineSync) State() SyncState {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.state
}

func (self *TimelineSync) Url() string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.url
}

func (self *TimelineSync) Ts() Ts {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.ts
}

func (self *TimelineSync) Timeline() Timeline {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return slices.Clone(self.nav.timeline)
}

// -1 while the timeline is empty
func (self *TimelineSync) TimelineIndex() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.nav.index
}

func (self *TimelineSync) PollerActive() bool {
	self.stateLock.Lock()
	poller := self.poller
	self.stateLock.Unlock()
	return poller != nil && poller.IsActive()
}

func (self *TimelineSync) Next() {
	self.userNav((*navigationController).next)
}

func (self *TimelineSync) Previous() {
	self.userNav((*navigationController).previous)
}

func (self *TimelineSync) JumpTo(rawIndex string) {
	self.userNav(func(nav *navigationController) bool {
		return nav.jumpTo(rawIndex)
	})
}

func (self *TimelineSync) userNav(op func(nav *navigationController) bool) {
	self.stateLock.Lock()
	applied := op(self.nav)
	self.stateLock.Unlock()

	if applied {
		self.refreshPresentation()
	}
}
