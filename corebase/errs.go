// Package corebase holds the ambient stack shared by every other package in
// this module: the error taxonomy, the external-collaborator interfaces, and
// the configuration structs passed between the agent and its components.
package corebase

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the stable, cross-service error taxonomy shared by every
// component. Individual services (memdx, queryx, analyticsx, searchx,
// mgmtx) map their own server-specific codes onto this shared set wherever a
// cross-cutting concept (not found, exists, cas mismatch, auth failure, ...)
// applies, and keep a richer per-service enum for anything without a
// cross-cutting analog.
type Kind uint32

const (
	KindUnknown Kind = iota

	// Transport
	KindIo
	KindTLSHandshake
	KindConnectTimeout
	KindDispatchClosed
	KindCancelled

	// Protocol
	KindProtocolEncoding
	KindProtocolTruncated
	KindUnknownStatus

	// Auth
	KindAuthenticationFailure
	KindNoSupportedMechanism

	// Routing
	KindNoServerAssigned
	KindNotMyVbucket
	KindBucketNotReady
	KindShutdown

	// KV server errors
	KindDocumentNotFound
	KindDocumentExists
	KindCasMismatch
	KindValueTooLarge
	KindLocked
	KindNotLocked
	KindTemporaryFailure
	KindDurabilityImpossible
	KindDurabilityAmbiguous
	KindSyncWriteInProgress
	KindCollectionNotFound
	KindScopeNotFound
	KindAccess
	KindRateLimited
	KindQuotaLimited

	// Query/Analytics/Search/Mgmt
	KindParsingFailure
	KindPlanningFailure
	KindIndexFailure
	KindPreparedStatementFailure
	KindDMLFailure
	KindIndexExists
	KindIndexNotFound
	KindInvalidArgument
	KindWriteInReadOnlyMode
	KindBuildAlreadyInProgress
	KindInternal

	// Retryable synthetic
	KindTimeout
)

// CancelReason further qualifies KindCancelled.
type CancelReason string

const (
	CancelReasonClosedInFlight CancelReason = "closed-in-flight"
	CancelReasonCallerDropped CancelReason = "caller-dropped"
	CancelReasonDeadline      CancelReason = "deadline"
)

// ResourceIdent is the parsed (bucket, scope, collection, index) tuple
// extracted from a server error message.
type ResourceIdent struct {
	Bucket     string
	Scope      string
	Collection string
	Index      string
}

// Error is the user-visible error returned from every public operation.
type Error struct {
	Kind           Kind
	Message        string
	Endpoint       string
	Opaque         uint32
	Retries        int
	Ambiguous      bool
	ClientContextID string
	Statement      string
	Resource       *ResourceIdent
	// Descs holds every sub-error seen when a server response reported more
	// than one; Kind/Message reflect only the first non-retryable one.
	Descs []SubError
	cause error
}

// SubError is one entry of a multi-error server response.
type SubError struct {
	Kind    Kind
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("%s: %s (endpoint=%s, opaque=%d, retries=%d)", e.Kind, e.Message, e.Endpoint, e.Opaque, e.Retries)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Cause() error { return e.cause }

// New constructs a classified Error, wrapping cause (if any) with pkg/errors
// for stack context at the boundary where it was first classified.
func New(kind Kind, message string, cause error) *Error {
	var wrapped error
	if cause != nil {
		wrapped = errors.WithStack(cause)
	}
	return &Error{Kind: kind, Message: message, cause: wrapped}
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

var kindNames = map[Kind]string{
	KindUnknown:                  "Unknown",
	KindIo:                       "Io",
	KindTLSHandshake:             "TlsHandshake",
	KindConnectTimeout:           "ConnectTimeout",
	KindDispatchClosed:           "DispatchClosed",
	KindCancelled:                "Cancelled",
	KindProtocolEncoding:         "ProtocolEncoding",
	KindProtocolTruncated:        "ProtocolTruncated",
	KindUnknownStatus:            "UnknownStatus",
	KindAuthenticationFailure:    "AuthenticationFailure",
	KindNoSupportedMechanism:     "NoSupportedMechanism",
	KindNoServerAssigned:         "NoServerAssigned",
	KindNotMyVbucket:             "NotMyVbucket",
	KindBucketNotReady:           "BucketNotReady",
	KindShutdown:                 "Shutdown",
	KindDocumentNotFound:         "DocumentNotFound",
	KindDocumentExists:           "DocumentExists",
	KindCasMismatch:              "CasMismatch",
	KindValueTooLarge:            "ValueTooLarge",
	KindLocked:                   "Locked",
	KindNotLocked:                "NotLocked",
	KindTemporaryFailure:         "TemporaryFailure",
	KindDurabilityImpossible:     "DurabilityImpossible",
	KindDurabilityAmbiguous:      "DurabilityAmbiguous",
	KindSyncWriteInProgress:      "SyncWriteInProgress",
	KindCollectionNotFound:       "CollectionNotFound",
	KindScopeNotFound:            "ScopeNotFound",
	KindAccess:                   "Access",
	KindRateLimited:              "RateLimited",
	KindQuotaLimited:             "QuotaLimited",
	KindParsingFailure:           "ParsingFailure",
	KindPlanningFailure:          "PlanningFailure",
	KindIndexFailure:             "IndexFailure",
	KindPreparedStatementFailure: "PreparedStatementFailure",
	KindDMLFailure:               "DMLFailure",
	KindIndexExists:              "IndexExists",
	KindIndexNotFound:            "IndexNotFound",
	KindInvalidArgument:          "InvalidArgument",
	KindWriteInReadOnlyMode:      "WriteInReadOnlyMode",
	KindBuildAlreadyInProgress:   "BuildAlreadyInProgress",
	KindInternal:                 "Internal",
	KindTimeout:                  "Timeout",
}

// IsRetryable reports whether a retry strategy may safely retry this kind
// without additional idempotency reasoning; callers still must gate write
// operations on top of this.
func (k Kind) IsRetryable() bool {
	switch k {
	case KindTemporaryFailure, KindLocked, KindNoServerAssigned, KindNotMyVbucket, KindBucketNotReady,
		KindRateLimited, KindQuotaLimited, KindTimeout:
		return true
	default:
		return false
	}
}

// NewTimeout builds the retryable synthetic timeout error returned when a
// deadline expires while a retry loop was still in progress.
func NewTimeout(ambiguous bool, lastErr *Error) *Error {
	e := &Error{Kind: KindTimeout, Message: "deadline exceeded", Ambiguous: ambiguous}
	if lastErr != nil {
		e.Endpoint = lastErr.Endpoint
		e.Opaque = lastErr.Opaque
		e.Retries = lastErr.Retries
		e.cause = lastErr
	}
	return e
}
