package grpc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// rawCodec passes frames through untouched. Requests are the destination
// process id (4 bytes, big endian) followed by the envelope frame; the reply
// is a single status byte.
type rawCodec struct{}

func (rawCodec) Name() string { return "clstr-fiber-raw" }

func (rawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("raw codec: cannot marshal %T", v)
	}
	return *b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("raw codec: cannot unmarshal into %T", v)
	}
	// the transport may reuse data once we return
	*b = append((*b)[:0], data...)
	return nil
}

const (
	statusOK byte = iota
	statusNoRoute
)

var errShortFrame = errors.New("frame shorter than its header")

func encodeFrame(processID int32, data []byte) []byte {
	out := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(out, uint32(processID))
	copy(out[4:], data)
	return out
}

func decodeFrame(b []byte) (int32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, errShortFrame
	}
	return int32(binary.BigEndian.Uint32(b)), b[4:], nil
}
