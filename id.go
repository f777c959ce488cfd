package replaysync

import (
	"bytes"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// comparable
type PeerId [16]byte

func NewPeerId() PeerId {
	return PeerId(ulid.Make())
}

func ParsePeerId(peerIdStr string) (PeerId, error) {
	id, err := ulid.ParseStrict(peerIdStr)
	if err != nil {
		return PeerId{}, err
	}
	return PeerId(id), nil
}

func (self PeerId) Bytes() []byte {
	return self[0:16]
}

func (self PeerId) String() string {
	return ulid.ULID(self).String()
}

func (self *PeerId) MarshalJSON() ([]byte, error) {
	var buff bytes.Buffer
	buff.WriteByte('"')
	buff.WriteString(self.String())
	buff.WriteByte('"')
	return buff.Bytes(), nil
}

func (self *PeerId) UnmarshalJSON(src []byte) error {
	if len(src) < 2 || src[0] != '"' || src[len(src)-1] != '"' {
		return fmt.Errorf("invalid peer id: %s", string(src))
	}
	id, err := ParsePeerId(string(src[1 : len(src)-1]))
	if err != nil {
		return err
	}
	*self = id
	return nil
}
