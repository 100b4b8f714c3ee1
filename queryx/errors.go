// Package queryx speaks the N1QL query service's HTTP surface: request
// body construction and the error-code classification its responses need.
package queryx

import (
	"strings"

	"github.com/couchbaselabs/gocbcorex/corebase"
)

// ErrorDesc is one entry of a query response's top-level "errors" array.
type ErrorDesc struct {
	Code    int                    `json:"code"`
	Message string                 `json:"msg"`
	Reason  map[string]interface{} `json:"reason,omitempty"`
}

// ParseErrorKind classifies one N1QL error code into the shared taxonomy.
// Ranges follow the query service's own code allocation (1xxx parse, 4xxx
// plan, 5xxx execute, 12xxx/13xxx index and prepared-statement specific);
// codes outside any known range fall back to a substring check on the
// message since minor server versions occasionally renumber edge cases.
func ParseErrorKind(code int, msg string) corebase.Kind {
	switch code {
	case 4040, 4050, 4060, 4070:
		return corebase.KindPreparedStatementFailure
	case 4300:
		return corebase.KindIndexExists
	case 12003:
		return corebase.KindIndexNotFound
	case 12004:
		return corebase.KindIndexExists
	case 1080:
		return corebase.KindTimeout
	}
	switch {
	case code >= 1000 && code < 2000:
		return corebase.KindParsingFailure
	case code >= 4000 && code < 5000:
		return corebase.KindPlanningFailure
	case code >= 5000 && code < 6000:
		return corebase.KindDMLFailure
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not found"):
		return corebase.KindIndexNotFound
	case strings.Contains(lower, "already exists"):
		return corebase.KindIndexExists
	case strings.Contains(lower, "timeout"):
		return corebase.KindTimeout
	}
	return corebase.KindInternal
}

// ClassifyResponse maps a query HTTP status plus its decoded error
// descriptions onto the Kind that best represents the failure, preferring
// the first non-retryable classification and falling back to the first one
// when every classification is retryable.
func ClassifyResponse(statusCode int, errs []ErrorDesc) (corebase.Kind, []corebase.SubError) {
	if statusCode < 300 && len(errs) == 0 {
		return corebase.KindUnknown, nil
	}
	subs := make([]corebase.SubError, 0, len(errs))
	var primary corebase.Kind
	found := false
	for i, e := range errs {
		kind := ParseErrorKind(e.Code, e.Message)
		subs = append(subs, corebase.SubError{Kind: kind, Code: e.Code, Message: e.Message})
		if i == 0 {
			primary = kind
		}
		if !found && !kind.IsRetryable() {
			primary = kind
			found = true
		}
	}
	if len(errs) == 0 {
		primary = corebase.KindInternal
	}
	return primary, subs
}
