package sim

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/gorilla/websocket"

	"golang.org/x/exp/maps"

	"replaynav.com/replaysync"
)

type SurfaceSettings struct {
	// how long after start metadata requests are answered, to exercise the
	// host's discovery polling against a slow-loading surface
	CollInfoDelay  time.Duration
	WriteTimeout   time.Duration
	PingTimeout    time.Duration
	SendBufferSize int
}

func DefaultSurfaceSettings() *SurfaceSettings {
	return &SurfaceSettings{
		CollInfoDelay:  0,
		WriteTimeout:   5 * time.Second,
		PingTimeout:    1 * time.Second,
		SendBufferSize: 32,
	}
}

// Surface simulates the embedded replay surface: the peer side of the
// host<->surface message contract. It answers metadata requests once ready,
// applies snapshot switches by re-reporting its displayed page at the new
// timestamp, and can navigate independently the way a user clicking a link
// inside an archived page would.
type Surface struct {
	ctx    context.Context
	cancel context.CancelFunc

	collInfo *replaysync.CollectionInfo

	settings *SurfaceSettings

	startTime time.Time
	upgrader  websocket.Upgrader

	stateLock sync.Mutex
	url       string
	ts        replaysync.Ts
	conns     map[*surfaceConn]bool
}

func NewSurfaceWithDefaults(
	ctx context.Context,
	collInfo *replaysync.CollectionInfo,
	url string,
	ts replaysync.Ts,
) *Surface {
	return NewSurface(ctx, collInfo, url, ts, DefaultSurfaceSettings())
}

func NewSurface(
	ctx context.Context,
	collInfo *replaysync.CollectionInfo,
	url string,
	ts replaysync.Ts,
	settings *SurfaceSettings,
) *Surface {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &Surface{
		ctx:       cancelCtx,
		cancel:    cancel,
		collInfo:  collInfo,
		settings:  settings,
		startTime: time.Now(),
		url:       url,
		ts:        ts,
		conns:     map[*surfaceConn]bool{},
	}
}

func (self *Surface) ready() bool {
	return self.settings.CollInfoDelay <= time.Since(self.startTime)
}

// Url returns the currently displayed page
func (self *Surface) Url() (string, replaysync.Ts) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.url, self.ts
}

// Navigate simulates navigation inside the archived page. The displayed page
// changes and all connected hosts are notified.
func (self *Surface) Navigate(url string, ts replaysync.Ts) {
	self.stateLock.Lock()
	self.url = url
	self.ts = ts
	conns := maps.Keys(self.conns)
	self.stateLock.Unlock()

	glog.V(1).Infof("[sim]navigate url=%s ts=%d\n", url, ts)
	for _, conn := range conns {
		conn.sendMessage(&replaysync.SurfaceMessage{
			View: replaysync.ViewPages,
			Url:  url,
			Ts:   ts,
		})
	}
}

// DropConnections severs every open host connection, simulating a surface
// reload or a flaky embed. Hosts are expected to reconnect on their own.
func (self *Surface) DropConnections() {
	self.stateLock.Lock()
	conns := maps.Keys(self.conns)
	self.stateLock.Unlock()

	glog.V(1).Infof("[sim]drop %d connections\n", len(conns))
	for _, conn := range conns {
		conn.ws.Close()
	}
}

func (self *Surface) ConnectionCount() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return len(self.conns)
}

func (self *Surface) Close() {
	self.cancel()
}

// `http.Handler`
func (self *Surface) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := self.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Infof("[sim]upgrade error = %s\n", err)
		return
	}

	conn := newSurfaceConn(self, ws)
	self.stateLock.Lock()
	self.conns[conn] = true
	self.stateLock.Unlock()
	defer func() {
		self.stateLock.Lock()
		delete(self.conns, conn)
		self.stateLock.Unlock()
	}()

	conn.run()
}

func (self *Surface) handleMessage(conn *surfaceConn, message *replaysync.SurfaceMessage) {
	if message.GetCollInfo {
		if !self.ready() {
			// still loading, answer a later request
			glog.V(2).Infof("[sim]not ready, drop getCollInfo\n")
			return
		}
		conn.sendMessage(&replaysync.SurfaceMessage{
			CollInfo: self.collInfo,
		})
		// report the displayed page once metadata is out, the way the real
		// surface announces the rendered page
		url, ts := self.Url()
		conn.sendMessage(&replaysync.SurfaceMessage{
			View: replaysync.ViewPages,
			Url:  url,
			Ts:   ts,
		})
	}
	if message.UpdateTs != 0 {
		// a switch is acknowledged by re-reporting the displayed page, the
		// way the real surface announces every render. The broadcast
		// deliberately includes the sender - that echo is the only
		// confirmation the requesting host gets
		self.stateLock.Lock()
		self.ts = message.UpdateTs
		url := self.url
		ts := self.ts
		conns := maps.Keys(self.conns)
		self.stateLock.Unlock()

		glog.V(1).Infof("[sim]updateTs=%d\n", ts)
		for _, c := range conns {
			c.sendMessage(&replaysync.SurfaceMessage{
				View: replaysync.ViewPages,
				Url:  url,
				Ts:   ts,
			})
		}
	}
}

// one websocket to one host control
type surfaceConn struct {
	surface *Surface
	ws      *websocket.Conn

	send chan []byte
}

func newSurfaceConn(surface *Surface, ws *websocket.Conn) *surfaceConn {
	return &surfaceConn{
		surface: surface,
		ws:      ws,
		send:    make(chan []byte, surface.settings.SendBufferSize),
	}
}

func (self *surfaceConn) sendMessage(message *replaysync.SurfaceMessage) {
	payload, err := replaysync.EncodeSurfaceMessage(message)
	if err != nil {
		glog.Errorf("[sim]encode error = %s\n", err)
		return
	}
	select {
	case <-self.surface.ctx.Done():
	case self.send <- payload:
	default:
		glog.Infof("[sim]send backpressure, drop\n")
	}
}

func (self *surfaceConn) run() {
	defer self.ws.Close()

	handleCtx, handleCancel := context.WithCancel(self.surface.ctx)
	defer handleCancel()

	go func() {
		defer handleCancel()

		for {
			select {
			case <-handleCtx.Done():
				return
			case payload := <-self.send:
				self.ws.SetWriteDeadline(time.Now().Add(self.surface.settings.WriteTimeout))
				if err := self.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
					glog.V(1).Infof("[sim]-> error = %s\n", err)
					return
				}
			case <-time.After(self.surface.settings.PingTimeout):
				// empty frames keep the host read loop alive
				self.ws.SetWriteDeadline(time.Now().Add(self.surface.settings.WriteTimeout))
				if err := self.ws.WriteMessage(websocket.TextMessage, make([]byte, 0)); err != nil {
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

			messageType, payload, err := self.ws.ReadMessage()
			if err != nil {
				glog.V(1).Infof("[sim]<- error = %s\n", err)
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			if len(payload) == 0 {
				// ping
				continue
			}
			message, err := replaysync.DecodeSurfaceMessage(payload)
			if err != nil {
				glog.V(2).Infof("[sim]<- malformed = %s\n", err)
				continue
			}
			self.surface.handleMessage(self, message)
		}
	}()

	select {
	case <-handleCtx.Done():
	}
}
