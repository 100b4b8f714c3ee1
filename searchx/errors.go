// Package searchx speaks the full-text search (FTS) service's HTTP
// surface. Unlike query/analytics, a search response reports failure
// through a top-level "error" string or a partial-failure count inside
// "status", not a per-error numeric code.
package searchx

import (
	"strings"

	"github.com/couchbaselabs/gocbcorex/corebase"
)

// Status is the "status" object of a search response.
type Status struct {
	Total      int            `json:"total"`
	Failed     int            `json:"failed"`
	Successful int            `json:"successful"`
	Errors     map[string]string `json:"errors,omitempty"` // node -> error message
}

// ParseErrorKind classifies a search failure by its message text, since the
// service doesn't expose a stable numeric code the way query/analytics do.
func ParseErrorKind(msg string) corebase.Kind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "index not found"):
		return corebase.KindIndexNotFound
	case strings.Contains(lower, "already exists"):
		return corebase.KindIndexExists
	case strings.Contains(lower, "timeout"):
		return corebase.KindTimeout
	case strings.Contains(lower, "no planpindex") || strings.Contains(lower, "not a member"):
		return corebase.KindBucketNotReady
	default:
		return corebase.KindInternal
	}
}

// ClassifyResponse folds a top-level error string and any per-node partial
// failures from Status into the shared taxonomy; per-node failures report
// as SubErrors so a caller can tell a total failure from a degraded one.
func ClassifyResponse(topError string, status *Status) (corebase.Kind, []corebase.SubError) {
	if topError != "" {
		return ParseErrorKind(topError), nil
	}
	if status == nil || status.Failed == 0 {
		return corebase.KindUnknown, nil
	}
	subs := make([]corebase.SubError, 0, len(status.Errors))
	var primary corebase.Kind = corebase.KindInternal
	first := true
	for node, msg := range status.Errors {
		kind := ParseErrorKind(msg)
		subs = append(subs, corebase.SubError{Kind: kind, Message: node + ": " + msg})
		if first {
			primary = kind
			first = false
		}
	}
	return primary, subs
}
