package replaysync

import (
	"encoding/json"
)

// Message contract between the host control and the replay surface.
// Every message is a single json object carried as one websocket text frame.
// The protocol is correlation-free: requests carry no id, and a response is
// matched purely by its shape. This is safe because every notification is
// idempotent on the receiving side - state is replaced wholesale, never
// patched - so duplicate and out-of-order deliveries collapse to the same
// final state.

const ViewPages = "pages"

// capture timestamp of a snapshot. Zero is reserved to mean "absent": the
// contract discriminates messages by which fields they carry, and the ts
// fields omit their zero value on the wire, so a snapshot must never be
// cataloged at ts 0. Real capture timestamps (14-digit YYYYMMDDhhmmss or
// epoch-derived) are always positive.
type Ts = int64

type PageRecord struct {
	Url string `json:"url"`
	Ts  Ts     `json:"ts"`
}

type CollectionInfo struct {
	Pages []PageRecord `json:"pages"`
}

// one cross-boundary message. The kinds are independent flags on the same
// shape, so a single message may carry both a navigation notification and
// collection info. The surface sends them separately in practice.
type SurfaceMessage struct {
	// surface -> host
	View     string          `json:"view,omitempty"`
	Url      string          `json:"url,omitempty"`
	Ts       Ts              `json:"ts,omitempty"`
	CollInfo *CollectionInfo `json:"collInfo,omitempty"`

	// host -> surface
	GetCollInfo bool `json:"getCollInfo,omitempty"`
	UpdateTs    Ts   `json:"updateTs,omitempty"`
}

func (self *SurfaceMessage) IsNavigation() bool {
	return self.View == ViewPages
}

func (self *SurfaceMessage) HasCollInfo() bool {
	return self.CollInfo != nil && 0 < len(self.CollInfo.Pages)
}

func EncodeSurfaceMessage(message *SurfaceMessage) ([]byte, error) {
	return json.Marshal(message)
}

func DecodeSurfaceMessage(payload []byte) (*SurfaceMessage, error) {
	message := &SurfaceMessage{}
	if err := json.Unmarshal(payload, message); err != nil {
		return nil, err
	}
	return message, nil
}

// one inbound payload with its provenance. `SourceId` identifies the sending
// transport the way a window reference identifies a frame - trust is decided
// on the pair (source, origin), never on payload contents.
type Envelope struct {
	SourceId PeerId
	Origin   string
	Payload  []byte
}
