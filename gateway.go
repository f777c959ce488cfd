package replaysync

import (
	"context"

	"github.com/golang/glog"
)

// classified inbound traffic. Both fields may be set when a single message
// carried both kinds; consumers must treat that as one event so that derived
// state is rebuilt at most once per message.
type GatewayEvent struct {
	Navigation *NavigationNotice
	CollInfo   *CollectionInfo
}

// the surface's currently displayed page
type NavigationNotice struct {
	Url string
	Ts  Ts
}

type MessageGatewaySettings struct {
	EventBufferSize int
}

func DefaultMessageGatewaySettings() *MessageGatewaySettings {
	return &MessageGatewaySettings{
		EventBufferSize: 32,
	}
}

// MessageGateway filters and classifies inbound envelopes. Only envelopes
// from the registered peer source with the registered origin pass; everything
// else is normal filtering traffic and is dropped silently. Decodable
// envelopes that carry neither message kind are dropped the same way.
type MessageGateway struct {
	ctx context.Context

	peerId     PeerId
	peerOrigin string

	events chan *GatewayEvent
}

func NewMessageGatewayWithDefaults(ctx context.Context, peerId PeerId, peerOrigin string) *MessageGateway {
	return NewMessageGateway(ctx, peerId, peerOrigin, DefaultMessageGatewaySettings())
}

func NewMessageGateway(ctx context.Context, peerId PeerId, peerOrigin string, settings *MessageGatewaySettings) *MessageGateway {
	return &MessageGateway{
		ctx:        ctx,
		peerId:     peerId,
		peerOrigin: peerOrigin,
		events:     make(chan *GatewayEvent, settings.EventBufferSize),
	}
}

func (self *MessageGateway) Events() <-chan *GatewayEvent {
	return self.events
}

func (self *MessageGateway) Deliver(envelope *Envelope) {
	if len(envelope.Payload) == 0 {
		glog.V(2).Infof("[gw]drop empty %s\n", envelope.SourceId)
		return
	}
	if envelope.SourceId != self.peerId {
		glog.V(2).Infof("[gw]drop foreign source %s\n", envelope.SourceId)
		return
	}
	if envelope.Origin != self.peerOrigin {
		glog.V(2).Infof("[gw]drop foreign origin %s\n", envelope.Origin)
		return
	}

	message, err := DecodeSurfaceMessage(envelope.Payload)
	if err != nil {
		glog.V(2).Infof("[gw]drop malformed = %s\n", err)
		return
	}

	event := &GatewayEvent{}
	if message.IsNavigation() {
		event.Navigation = &NavigationNotice{
			Url: message.Url,
			Ts:  message.Ts,
		}
	}
	if message.HasCollInfo() {
		event.CollInfo = message.CollInfo
	}
	if event.Navigation == nil && event.CollInfo == nil {
		glog.V(2).Infof("[gw]drop unclassified\n")
		return
	}

	select {
	case <-self.ctx.Done():
	case self.events <- event:
		glog.V(2).Infof("[gw]<- nav=%t collinfo=%t\n", event.Navigation != nil, event.CollInfo != nil)
	}
}
