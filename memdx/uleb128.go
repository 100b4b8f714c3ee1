package memdx

import "github.com/pkg/errors"

// ErrULEB128Overflow is returned when a ULEB128 sequence would need more than
// the 5 bytes a 32-bit value can ever require ("max 5 bytes").
var ErrULEB128Overflow = errors.New("uleb128: value exceeds 5 bytes")

// EncodeULEB128 encodes a 32-bit collection id as ULEB128, the standard
// variable-length integer format used to prefix a key with its collection
// id. Terminates on the first byte with the high bit clear.
func EncodeULEB128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

// DecodeULEB128 decodes a ULEB128-prefixed 32-bit value from buf, returning
// the value and the number of bytes consumed.
func DecodeULEB128(buf []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < 5; i++ {
		if i >= len(buf) {
			return 0, 0, errors.New("uleb128: truncated")
		}
		b := buf[i]
		v |= uint32(b&0x7f) << (7 * uint(i))
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, ErrULEB128Overflow
}

// EncodeCollectionKey prefixes rawKey with the ULEB128-encoded collection id,
// "Collection-prefixed key". When collectionsEnabled is false,
// collectionID MUST be 0 (encode_request failure case) and the raw
// key is used unprefixed.
func EncodeCollectionKey(collectionID uint32, rawKey []byte, collectionsEnabled bool) ([]byte, error) {
	if !collectionsEnabled {
		if collectionID != 0 {
			return nil, NewProtocolEncodingError("collection id set without collections enabled")
		}
		return rawKey, nil
	}
	prefix := EncodeULEB128(collectionID)
	out := make([]byte, 0, len(prefix)+len(rawKey))
	out = append(out, prefix...)
	out = append(out, rawKey...)
	return out, nil
}

// DecodeCollectionKey splits a wire key back into (collectionID, rawKey).
func DecodeCollectionKey(wireKey []byte, collectionsEnabled bool) (uint32, []byte, error) {
	if !collectionsEnabled {
		return 0, wireKey, nil
	}
	id, n, err := DecodeULEB128(wireKey)
	if err != nil {
		return 0, nil, err
	}
	return id, wireKey[n:], nil
}
