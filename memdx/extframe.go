package memdx

// ExtFrameCode identifies the per-op metadata carried in an ext frame TLV,
// "Extended frame TLV".
type ExtFrameCode uint8

const (
	ExtFrameCodeBarrier              ExtFrameCode = 0
	ExtFrameCodeDurabilityLevel      ExtFrameCode = 1
	ExtFrameCodeDCPStreamID          ExtFrameCode = 2
	ExtFrameCodeOpenTracingContext   ExtFrameCode = 3
	ExtFrameCodeImpersonate          ExtFrameCode = 4 // on-behalf-of
	ExtFrameCodePreserveTTL          ExtFrameCode = 5

	// response-side codes
	ExtFrameCodeServerDuration  ExtFrameCode = 0
	ExtFrameCodeReadUnitsUsed   ExtFrameCode = 1
	ExtFrameCodeWriteUnitsUsed  ExtFrameCode = 2
)

// maxExtFrameCode is its "flexible-frame extended code exceeds 29"
// encoding failure boundary.
const maxExtFrameCode = 29

// ExtFrame is one decoded (or to-be-encoded) TLV entry: a code plus its body.
type ExtFrame struct {
	Code ExtFrameCode
	Body []byte
}

// EncodeExtFrames serializes a list of ext frames into the TLV byte stream:
// [hdr:u8][code-ext?:u8][len-ext?:u8][body:len], repeated.
func EncodeExtFrames(frames []ExtFrame) ([]byte, error) {
	var out []byte
	for _, f := range frames {
		if int(f.Code) > maxExtFrameCode {
			return nil, NewProtocolEncodingError("ext frame code exceeds 29")
		}
		codeField := byte(f.Code)
		codeExt := byte(0)
		hasCodeExt := false
		if f.Code >= 15 {
			codeExt = byte(int(f.Code) - 15)
			codeField = 15
			hasCodeExt = true
		}

		length := len(f.Body)
		lenField := byte(length)
		lenExt := byte(0)
		hasLenExt := false
		if length >= 15 {
			if length-15 > 255 {
				return nil, NewProtocolEncodingError("ext frame body too long")
			}
			lenExt = byte(length - 15)
			lenField = 15
			hasLenExt = true
		}

		hdr := (codeField << 4) | (lenField & 0x0f)
		out = append(out, hdr)
		if hasCodeExt {
			out = append(out, codeExt)
		}
		if hasLenExt {
			out = append(out, lenExt)
		}
		out = append(out, f.Body...)
	}
	return out, nil
}

// IterExtFrames single-pass iterates buf, invoking cb(code, body) for each
// frame. Fails on truncated frames.
func IterExtFrames(buf []byte, cb func(code ExtFrameCode, body []byte) error) error {
	off := 0
	for off < len(buf) {
		hdr := buf[off]
		off++
		code := ExtFrameCode(hdr >> 4)
		length := int(hdr & 0x0f)

		if code == 15 {
			if off >= len(buf) {
				return NewProtocolTruncatedError("truncated ext frame code-ext")
			}
			code = ExtFrameCode(15 + int(buf[off]))
			off++
		}
		if length == 15 {
			if off >= len(buf) {
				return NewProtocolTruncatedError("truncated ext frame len-ext")
			}
			length = 15 + int(buf[off])
			off++
		}
		if off+length > len(buf) {
			return NewProtocolTruncatedError("truncated ext frame body")
		}
		body := buf[off : off+length]
		off += length
		if err := cb(code, body); err != nil {
			return err
		}
	}
	return nil
}

// DecodeExtFrames collects every frame via IterExtFrames; unknown codes are
// preserved as opaque (code, body) pairs.
func DecodeExtFrames(buf []byte) ([]ExtFrame, error) {
	var frames []ExtFrame
	err := IterExtFrames(buf, func(code ExtFrameCode, body []byte) error {
		frames = append(frames, ExtFrame{Code: code, Body: dup(body)})
		return nil
	})
	return frames, err
}

// validateExtFrames rejects a framing_extras blob before it ever hits the
// wire: an ext frame code past maxExtFrameCode, or a durability-level frame
// whose timeout is out of range, aborts the encode instead of shipping a
// malformed request.
func validateExtFrames(buf []byte) error {
	return IterExtFrames(buf, func(code ExtFrameCode, body []byte) error {
		if int(code) > maxExtFrameCode {
			return NewProtocolEncodingError("ext frame code exceeds 29")
		}
		if code == ExtFrameCodeDurabilityLevel {
			_, timeoutMs, err := DecodeDurabilityFrame(body)
			if err != nil {
				return err
			}
			if len(body) == 3 && timeoutMs == 0 {
				return NewProtocolEncodingError("durability timeout must be between 1 and 65535 ms")
			}
		}
		return nil
	})
}
