package memdx

import (
	"encoding/binary"
	"math"
)

// DurabilityLevel is the 1-byte durability requirement carried in a
// durability-level ext frame.
type DurabilityLevel uint8

const (
	DurabilityLevelNone DurabilityLevel = iota
	DurabilityLevelMajority
	DurabilityLevelMajorityAndPersistActive
	DurabilityLevelPersistToMajority
)

// EncodeDurabilityFrame builds the durability-level ext frame body: 1 byte
// level, optionally followed by 2 bytes big-endian milliseconds timeout
// (0 omits the timeout bytes entirely).
func EncodeDurabilityFrame(level DurabilityLevel, timeoutMs uint16) ([]byte, error) {
	if timeoutMs == 0 {
		return []byte{byte(level)}, nil
	}
	body := make([]byte, 3)
	body[0] = byte(level)
	binary.BigEndian.PutUint16(body[1:3], timeoutMs)
	return body, nil
}

// DecodeDurabilityFrame is the inverse of EncodeDurabilityFrame.
func DecodeDurabilityFrame(body []byte) (DurabilityLevel, uint16, error) {
	if len(body) == 0 {
		return 0, 0, NewProtocolTruncatedError("empty durability frame")
	}
	level := DurabilityLevel(body[0])
	if len(body) == 1 {
		return level, 0, nil
	}
	if len(body) != 3 {
		return 0, 0, NewProtocolTruncatedError("malformed durability frame")
	}
	return level, binary.BigEndian.Uint16(body[1:3]), nil
}

// DecodeServerDuration decodes the server-duration ext frame body: 16
// big-endian bits d, decoded as round(d^1.74 / 2) microseconds.
func DecodeServerDuration(body []byte) (uint32, error) {
	if len(body) != 2 {
		return 0, NewProtocolTruncatedError("malformed server duration frame")
	}
	d := binary.BigEndian.Uint16(body)
	return ServerDurationMicros(d), nil
}

// ServerDurationMicros applies the encoded-duration formula directly to a
// raw 16-bit value, exposed standalone so tests can exercise it without
// building a full ext frame.
func ServerDurationMicros(d uint16) uint32 {
	if d == 0 {
		return 0
	}
	v := math.Pow(float64(d), 1.74) / 2
	return uint32(math.Round(v))
}
