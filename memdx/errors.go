package memdx

import "github.com/couchbaselabs/gocbcorex/corebase"

// NewProtocolEncodingError reports a malformed request that never made it
// to the wire: bad frame layout, an oversized field, an invalid ext code.
func NewProtocolEncodingError(msg string) error {
	return corebase.New(corebase.KindProtocolEncoding, msg, nil)
}

// NewProtocolTruncatedError reports a response buffer shorter than its own
// declared header or body length.
func NewProtocolTruncatedError(msg string) error {
	return corebase.New(corebase.KindProtocolTruncated, msg, nil)
}
