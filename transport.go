package replaysync

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/gorilla/websocket"
)

type SurfaceTransportSettings struct {
	WsHandshakeTimeout time.Duration
	ReconnectTimeout   time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
	SendBufferSize     int
}

func DefaultSurfaceTransportSettings() *SurfaceTransportSettings {
	return &SurfaceTransportSettings{
		WsHandshakeTimeout: 2 * time.Second,
		ReconnectTimeout:   5 * time.Second,
		PingTimeout:        1 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        15 * time.Second,
		SendBufferSize:     32,
	}
}

// ResolveOrigin maps a surface websocket url to its origin string,
// browser style: wss becomes https, ws becomes http, path and fragment are
// dropped.
func ResolveOrigin(surfaceUrl string) (string, error) {
	u, err := url.Parse(surfaceUrl)
	if err != nil {
		return "", err
	}
	var scheme string
	switch u.Scheme {
	case "wss":
		scheme = "https"
	case "ws":
		scheme = "http"
	default:
		return "", fmt.Errorf("surface url must be ws or wss: %s", surfaceUrl)
	}
	if u.Host == "" {
		return "", fmt.Errorf("surface url missing host: %s", surfaceUrl)
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host), nil
}

// SurfaceTransport is the cross-boundary channel to one replay surface:
// a websocket carrying json text frames. Inbound frames are wrapped in
// envelopes stamped with this transport's source id and resolved origin and
// handed to the sink. The connection is kept alive with pings and reconnects
// until closed; after a reconnect the surface is re-discovered naturally,
// since the poller keeps requesting metadata for as long as none arrived.
type SurfaceTransport struct {
	ctx    context.Context
	cancel context.CancelFunc

	surfaceUrl string
	origin     string
	peerId     PeerId

	stateLock sync.Mutex
	sink      MessageSink

	send chan []byte

	settings *SurfaceTransportSettings
}

func NewSurfaceTransportWithDefaults(
	ctx context.Context,
	surfaceUrl string,
) (*SurfaceTransport, error) {
	return NewSurfaceTransport(ctx, surfaceUrl, DefaultSurfaceTransportSettings())
}

func NewSurfaceTransport(
	ctx context.Context,
	surfaceUrl string,
	settings *SurfaceTransportSettings,
) (*SurfaceTransport, error) {
	origin, err := ResolveOrigin(surfaceUrl)
	if err != nil {
		return nil, err
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	transport := &SurfaceTransport{
		ctx:        cancelCtx,
		cancel:     cancel,
		surfaceUrl: surfaceUrl,
		origin:     origin,
		peerId:     NewPeerId(),
		send:       make(chan []byte, settings.SendBufferSize),
		settings:   settings,
	}
	go transport.run()
	return transport, nil
}

// SetSink attaches the inbound consumer. Frames that arrive while no sink is
// attached are dropped.
func (self *SurfaceTransport) SetSink(sink MessageSink) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.sink = sink
}

func (self *SurfaceTransport) getSink() MessageSink {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.sink
}

// `Peer`

func (self *SurfaceTransport) PeerId() PeerId {
	return self.peerId
}

func (self *SurfaceTransport) Origin() string {
	return self.origin
}

// non-blocking. Messages addressed to any other origin are dropped, and
// messages beyond the send buffer are dropped with a log - the protocol
// tolerates loss because the poller re-requests and notifications are
// idempotent.
func (self *SurfaceTransport) Send(payload []byte, targetOrigin string) {
	if targetOrigin != self.origin {
		glog.V(2).Infof("[ws]drop send to foreign origin %s\n", targetOrigin)
		return
	}
	select {
	case <-self.ctx.Done():
	case self.send <- payload:
	default:
		glog.Infof("[ws]send backpressure, drop\n")
	}
}

func (self *SurfaceTransport) run() {
	defer self.cancel()

	for {
		dialer := &websocket.Dialer{
			HandshakeTimeout: self.settings.WsHandshakeTimeout,
		}
		ws, _, err := dialer.DialContext(self.ctx, self.surfaceUrl, nil)
		if err != nil {
			glog.Infof("[ws]connect %s error = %s\n", self.surfaceUrl, err)
			select {
			case <-self.ctx.Done():
				return
			case <-time.After(self.settings.ReconnectTimeout):
				continue
			}
		}
		glog.V(1).Infof("[ws]connect %s\n", self.surfaceUrl)

		c := func() {
			defer ws.Close()

			handleCtx, handleCancel := context.WithCancel(self.ctx)
			defer handleCancel()

			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					case payload := <-self.send:
						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
							// a deadline timeout cannot be recovered
							glog.Infof("[ws]-> error = %s\n", err)
							return
						}
						glog.V(2).Infof("[ws]->\n")
					case <-time.After(self.settings.PingTimeout):
						// empty frames keep the read side of the peer alive
						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.TextMessage, make([]byte, 0)); err != nil {
							return
						}
					}
				}
			}()

			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					default:
					}

					ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
					messageType, payload, err := ws.ReadMessage()
					if err != nil {
						glog.Infof("[ws]<- error = %s\n", err)
						return
					}

					switch messageType {
					case websocket.TextMessage:
						if len(payload) == 0 {
							// ping
							glog.V(2).Infof("[ws]<-ping\n")
							continue
						}
						if sink := self.getSink(); sink != nil {
							sink.Deliver(&Envelope{
								SourceId: self.peerId,
								Origin:   self.origin,
								Payload:  payload,
							})
							glog.V(2).Infof("[ws]<-\n")
						} else {
							glog.V(2).Infof("[ws]<- no sink, drop\n")
						}
					default:
						glog.V(2).Infof("[ws]<- other=%d\n", messageType)
					}
				}
			}()

			select {
			case <-handleCtx.Done():
			}
		}
		c()

		select {
		case <-self.ctx.Done():
			return
		case <-time.After(self.settings.ReconnectTimeout):
		}
	}
}

func (self *SurfaceTransport) Close() {
	self.cancel()
}
