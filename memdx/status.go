package memdx

import "github.com/couchbaselabs/gocbcorex/corebase"

// Status is the 16-bit response status
type Status uint16

const (
	StatusSuccess     Status = 0x00
	StatusKeyNotFound Status = 0x01
	StatusKeyExists   Status = 0x02
	StatusTooBig      Status = 0x03
	StatusNotMyVbucket Status = 0x07
	StatusLocked      Status = 0x09

	StatusAuthError    Status = 0x20
	StatusAuthContinue Status = 0x21

	StatusCollectionsNotEnabled Status = 0x0c

	StatusDurabilityImpossible Status = 0xa1
	StatusSyncWriteInProgress Status = 0xa2
	StatusSyncWriteAmbiguous Status = 0xa3

	StatusAccessError Status = 0x24

	StatusUnknownCollection Status = 0x88

	StatusTemporaryFailure Status = 0x86
	StatusRateLimited      Status = 0x87 // vendor extension range, kept symbolic
	StatusQuotaLimited     Status = 0x8a // vendor extension range, kept symbolic
)

// IsNotMyVbucket reports whether s is StatusNotMyVbucket.
func (s Status) IsNotMyVbucket() bool { return s == StatusNotMyVbucket }

// StatusToKind maps a response status onto the shared error taxonomy.
func StatusToKind(s Status) corebase.Kind {
	switch s {
	case StatusKeyNotFound:
		return corebase.KindDocumentNotFound
	case StatusKeyExists:
		return corebase.KindDocumentExists
	case StatusTooBig:
		return corebase.KindValueTooLarge
	case StatusLocked:
		return corebase.KindLocked
	case StatusAuthError:
		return corebase.KindAuthenticationFailure
	case StatusCollectionsNotEnabled, StatusUnknownCollection:
		return corebase.KindCollectionNotFound
	case StatusDurabilityImpossible:
		return corebase.KindDurabilityImpossible
	case StatusSyncWriteInProgress:
		return corebase.KindSyncWriteInProgress
	case StatusSyncWriteAmbiguous:
		return corebase.KindDurabilityAmbiguous
	case StatusAccessError:
		return corebase.KindAccess
	case StatusTemporaryFailure:
		return corebase.KindTemporaryFailure
	case StatusRateLimited:
		return corebase.KindRateLimited
	case StatusQuotaLimited:
		return corebase.KindQuotaLimited
	case StatusNotMyVbucket:
		return corebase.KindNotMyVbucket
	default:
		return corebase.KindUnknownStatus
	}
}

// ClassifyResponse returns a classified *corebase.Error for a non-success
// response, annotated with its opaque, or nil for StatusSuccess. This is
// what agent.Dispatch uses to turn a KV
// wire-level status like NOT_MY_VBUCKET or TMPFAIL into the same error type
// a transport failure would surface as, so retry.Strategy and
// vbucketrouter's NMVB detection see one consistent shape regardless of
// where the failure came from.
func ClassifyResponse(pkt Packet) error {
	if pkt.Status == StatusSuccess {
		return nil
	}
	e := corebase.New(StatusToKind(pkt.Status), "non-success response status", nil)
	e.Opaque = pkt.Opaque
	return e
}
