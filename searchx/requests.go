package searchx

import (
	jsoniter "github.com/json-iterator/go"
)

// Options is everything a caller can set on one search query.
type Options struct {
	IndexName string                 `json:"-"`
	Query     map[string]interface{} `json:"query"`
	Size      int                    `json:"size,omitempty"`
	From      int                    `json:"from,omitempty"`
	Explain   bool                   `json:"explain,omitempty"`
	Fields    []string               `json:"fields,omitempty"`
	Sort      []interface{}          `json:"sort,omitempty"`
}

// BuildRequestBody renders opts into the search service's JSON body.
// IndexName is carried in the HTTP path, not the body, so it's excluded.
func BuildRequestBody(opts Options) ([]byte, error) {
	return jsoniter.Marshal(opts)
}
