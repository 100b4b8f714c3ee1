package mgmtx

import (
	"net/url"
	"strconv"
)

// CreateScopeRequest builds the form-encoded body for POST
// /pools/default/buckets/{bucket}/scopes.
func CreateScopeRequest(name string) []byte {
	v := url.Values{"name": {name}}
	return []byte(v.Encode())
}

// DeleteScopeRequest targets DELETE
// /pools/default/buckets/{bucket}/scopes/{scope}; nothing to encode.
func DeleteScopeRequest() []byte { return nil }

// CreateCollectionRequest builds the form-encoded body for POST
// /pools/default/buckets/{bucket}/scopes/{scope}/collections. maxTTL of 0
// omits the field, inheriting the bucket's default.
func CreateCollectionRequest(name string, maxTTLSeconds int) []byte {
	v := url.Values{"name": {name}}
	if maxTTLSeconds > 0 {
		v.Set("maxTTL", strconv.Itoa(maxTTLSeconds))
	}
	return []byte(v.Encode())
}

// BucketSettings is the subset of bucket configuration creatable/updatable
// through the management HTTP surface.
type BucketSettings struct {
	Name           string
	RAMQuotaMB     int
	NumReplicas    int
	BucketType     string // "membase" or "memcached"
	EvictionPolicy string
}

// CreateBucketRequest builds the form-encoded body for POST
// /pools/default/buckets.
func CreateBucketRequest(s BucketSettings) []byte {
	v := url.Values{
		"name":          {s.Name},
		"ramQuotaMB":    {strconv.Itoa(s.RAMQuotaMB)},
		"replicaNumber": {strconv.Itoa(s.NumReplicas)},
		"bucketType":    {s.BucketType},
	}
	if s.EvictionPolicy != "" {
		v.Set("evictionPolicy", s.EvictionPolicy)
	}
	return []byte(v.Encode())
}
