package memdx

import (
	"encoding/binary"
)

// HeaderLen is the fixed 24-byte KV header
const HeaderLen = 24

// Packet is the request/response shape of "(magic, opcode,
// datatype, vbucket_id?, cas?, extras?, key?, value?, framing_extras?,
// opaque)" plus Status for responses.
type Packet struct {
	Magic         Magic
	OpCode        OpCode
	Datatype      uint8
	VbucketID     uint16 // request-side
	Status        Status // response-side; aliases the same wire bytes as VbucketID
	Opaque        uint32
	Cas           uint64
	FramingExtras []byte
	Extras        []byte
	Key           []byte
	Value         []byte
}

// EncodeRequest writes pkt as a full wire packet: 24-byte fixed header
// followed by framing_extras, extras, key, value . The caller is
// responsible for collection-prefixing Key beforehand (EncodeCollectionKey).
func EncodeRequest(pkt Packet) ([]byte, error) {
	if len(pkt.FramingExtras) > 0 && !pkt.Magic.IsExt() {
		return nil, NewProtocolEncodingError("framing_extras set on non-ext magic")
	}
	if err := validateExtFrames(pkt.FramingExtras); err != nil {
		return nil, err
	}

	bodyLen := len(pkt.FramingExtras) + len(pkt.Extras) + len(pkt.Key) + len(pkt.Value)
	buf := make([]byte, HeaderLen+bodyLen)

	buf[0] = byte(pkt.Magic)
	buf[1] = byte(pkt.OpCode)
	if pkt.Magic.IsExt() {
		if len(pkt.FramingExtras) > 255 || len(pkt.Key) > 255 {
			return nil, NewProtocolEncodingError("ext frame framing_extras/key too long for flexible header")
		}
		buf[2] = byte(len(pkt.FramingExtras))
		buf[3] = byte(len(pkt.Key))
	} else {
		binary.BigEndian.PutUint16(buf[2:4], uint16(len(pkt.Key)))
	}
	buf[4] = byte(len(pkt.Extras))
	buf[5] = pkt.Datatype
	binary.BigEndian.PutUint16(buf[6:8], pkt.VbucketID)
	binary.BigEndian.PutUint32(buf[8:12], uint32(bodyLen))
	binary.BigEndian.PutUint32(buf[12:16], pkt.Opaque)
	binary.BigEndian.PutUint64(buf[16:24], pkt.Cas)

	off := HeaderLen
	off += copy(buf[off:], pkt.FramingExtras)
	off += copy(buf[off:], pkt.Extras)
	off += copy(buf[off:], pkt.Key)
	copy(buf[off:], pkt.Value)

	return buf, nil
}

// DecodeResponse parses a full wire packet, the inverse of EncodeRequest.
// Unknown status codes and unknown ext-frame codes are preserved verbatim
// (decode_response).
func DecodeResponse(buf []byte) (Packet, error) {
	if len(buf) < HeaderLen {
		return Packet{}, NewProtocolTruncatedError("short header")
	}
	magic := Magic(buf[0])
	var framingExtrasLen, keyLen int
	if magic.IsExt() {
		framingExtrasLen = int(buf[2])
		keyLen = int(buf[3])
	} else {
		keyLen = int(binary.BigEndian.Uint16(buf[2:4]))
	}
	extrasLen := int(buf[4])
	bodyLen := int(binary.BigEndian.Uint32(buf[8:12]))

	if len(buf) < HeaderLen+bodyLen {
		return Packet{}, NewProtocolTruncatedError("short body")
	}

	pkt := Packet{
		Magic:    magic,
		OpCode:   OpCode(buf[1]),
		Datatype: buf[5],
		Opaque:   binary.BigEndian.Uint32(buf[12:16]),
		Cas:      binary.BigEndian.Uint64(buf[16:24]),
	}
	statusOrVbucket := binary.BigEndian.Uint16(buf[6:8])
	if magic.IsResponse() {
		pkt.Status = Status(statusOrVbucket)
	} else {
		pkt.VbucketID = statusOrVbucket
	}

	if framingExtrasLen+extrasLen+keyLen > bodyLen {
		return Packet{}, NewProtocolTruncatedError("framing_extras/extras/key exceed body length")
	}

	body := buf[HeaderLen : HeaderLen+bodyLen]
	off := 0
	pkt.FramingExtras = dup(body[off : off+framingExtrasLen])
	off += framingExtrasLen
	pkt.Extras = dup(body[off : off+extrasLen])
	off += extrasLen
	pkt.Key = dup(body[off : off+keyLen])
	off += keyLen
	pkt.Value = dup(body[off:])

	return pkt, nil
}

func dup(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Equal compares two packets field by field.
func (p Packet) Equal(o Packet) bool {
	return p.Magic == o.Magic && p.OpCode == o.OpCode && p.Datatype == o.Datatype &&
		p.VbucketID == o.VbucketID && p.Status == o.Status && p.Opaque == o.Opaque &&
		p.Cas == o.Cas && bytesEqual(p.FramingExtras, o.FramingExtras) &&
		bytesEqual(p.Extras, o.Extras) && bytesEqual(p.Key, o.Key) && bytesEqual(p.Value, o.Value)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
