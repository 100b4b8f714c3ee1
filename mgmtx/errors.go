// Package mgmtx speaks the cluster management HTTP surface: bucket, scope
// and collection administration.
package mgmtx

import (
	"net/http"
	"strings"

	"github.com/couchbaselabs/gocbcorex/corebase"
)

// ParseErrorKind classifies a management-service failure from its HTTP
// status code and response body text; unlike query/analytics there's no
// numeric error-code envelope, just a status line and a plaintext reason.
func ParseErrorKind(statusCode int, body string) corebase.Kind {
	lower := strings.ToLower(body)
	switch statusCode {
	case http.StatusNotFound:
		if strings.Contains(lower, "scope") {
			return corebase.KindScopeNotFound
		}
		if strings.Contains(lower, "collection") {
			return corebase.KindCollectionNotFound
		}
		return corebase.KindDocumentNotFound
	case http.StatusUnauthorized:
		return corebase.KindAuthenticationFailure
	case http.StatusForbidden:
		return corebase.KindAccess
	case http.StatusConflict:
		if strings.Contains(lower, "already exists") {
			return corebase.KindIndexExists
		}
		return corebase.KindDMLFailure
	case http.StatusBadRequest:
		if strings.Contains(lower, "read-only") || strings.Contains(lower, "read only") {
			return corebase.KindWriteInReadOnlyMode
		}
		return corebase.KindInvalidArgument
	}
	switch {
	case strings.Contains(lower, "already exists"):
		return corebase.KindIndexExists
	case strings.Contains(lower, "not found"):
		return corebase.KindDocumentNotFound
	}
	return corebase.KindInternal
}
