package queryx

import (
	jsoniter "github.com/json-iterator/go"
)

// ScanConsistency controls how fresh the data a query observes must be.
type ScanConsistency string

const (
	ScanConsistencyNotBounded   ScanConsistency = "not_bounded"
	ScanConsistencyRequestPlus  ScanConsistency = "request_plus"
)

// Options is everything a caller can set on one N1QL query.
type Options struct {
	Statement       string                 `json:"statement"`
	Args            []interface{}          `json:"args,omitempty"`
	NamedArgs       map[string]interface{} `json:"-"`
	ClientContextID string                 `json:"client_context_id,omitempty"`
	ScanConsistency ScanConsistency        `json:"scan_consistency,omitempty"`
	Prepared        string                 `json:"prepared,omitempty"`
	ReadOnly        bool                   `json:"readonly,omitempty"`
	Metrics         bool                   `json:"metrics,omitempty"`
}

// BuildRequestBody renders opts into the JSON body the query service
// expects, folding NamedArgs in as "$name"-prefixed top-level fields since
// the wire format doesn't nest them under their own key.
func BuildRequestBody(opts Options) ([]byte, error) {
	fields := map[string]interface{}{
		"statement": opts.Statement,
	}
	if len(opts.Args) > 0 {
		fields["args"] = opts.Args
	}
	if opts.ClientContextID != "" {
		fields["client_context_id"] = opts.ClientContextID
	}
	if opts.ScanConsistency != "" {
		fields["scan_consistency"] = opts.ScanConsistency
	}
	if opts.Prepared != "" {
		fields["prepared"] = opts.Prepared
	}
	if opts.ReadOnly {
		fields["readonly"] = true
	}
	if opts.Metrics {
		fields["metrics"] = true
	}
	for name, val := range opts.NamedArgs {
		fields["$"+name] = val
	}
	return jsoniter.Marshal(fields)
}
