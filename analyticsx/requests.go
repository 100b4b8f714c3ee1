package analyticsx

import (
	jsoniter "github.com/json-iterator/go"
)

// Options is everything a caller can set on one analytics statement.
type Options struct {
	Statement       string                 `json:"statement"`
	Args            []interface{}          `json:"args,omitempty"`
	NamedArgs       map[string]interface{} `json:"-"`
	ClientContextID string                 `json:"client_context_id,omitempty"`
	Priority        bool                   `json:"-"`
	ReadOnly        bool                   `json:"readonly,omitempty"`
}

// BuildRequestBody renders opts into the analytics service's JSON body.
// Priority requests are signaled via an HTTP header by the caller, not a
// body field, so it's excluded from marshaling here.
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
	if opts.ReadOnly {
		fields["readonly"] = true
	}
	for name, val := range opts.NamedArgs {
		fields["$"+name] = val
	}
	return jsoniter.Marshal(fields)
}
