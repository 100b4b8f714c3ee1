// Package analyticsx speaks the CBAS (analytics) service's HTTP surface.
package analyticsx

import (
	"strings"

	"github.com/couchbaselabs/gocbcorex/corebase"
)

// ErrorDesc is one entry of an analytics response's "errors" array.
type ErrorDesc struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

// ParseErrorKind classifies one analytics error code. The analytics service
// reuses large swaths of N1QL's planning/execution code space but assigns
// its own range (23xxx) to dataset/link-level failures.
func ParseErrorKind(code int, msg string) corebase.Kind {
	switch code {
	case 23000:
		return corebase.KindIndexNotFound // dataset not found maps to the same "missing resource" bucket
	case 24025, 24040:
		return corebase.KindIndexExists
	case 23007:
		return corebase.KindTimeout
	}
	switch {
	case code >= 20000 && code < 21000:
		return corebase.KindParsingFailure
	case code >= 21000 && code < 22000:
		return corebase.KindPlanningFailure
	case code >= 23000 && code < 24000:
		return corebase.KindDMLFailure
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not found"):
		return corebase.KindIndexNotFound
	case strings.Contains(lower, "already exists"):
		return corebase.KindIndexExists
	}
	return corebase.KindInternal
}

func ClassifyResponse(statusCode int, errs []ErrorDesc) (corebase.Kind, []corebase.SubError) {
	if statusCode < 300 && len(errs) == 0 {
		return corebase.KindUnknown, nil
	}
	subs := make([]corebase.SubError, 0, len(errs))
	var primary corebase.Kind = corebase.KindInternal
	for i, e := range errs {
		kind := ParseErrorKind(e.Code, e.Message)
		subs = append(subs, corebase.SubError{Kind: kind, Code: e.Code, Message: e.Message})
		if i == 0 {
			primary = kind
		}
	}
	return primary, subs
}
