// Package topology holds the cluster-config data model: the versioned
// snapshot of nodes, vbucket map, and bucket metadata that the agent
// ingests from multiple sources and republishes atomically.
package topology

import (
	"github.com/OneOfOne/xxhash"
)

// Node is one server in the cluster.
type Node struct {
	NodeID          string
	Hostname        string
	KVPort          int
	KVPortTLS       int
	MgmtPort        int
	MgmtPortTLS     int
	QueryPort       int
	QueryPortTLS    int
	SearchPort      int
	SearchPortTLS   int
	AnalyticsPort   int
	AnalyticsPortTLS int
	IsDataNode      bool

	idDigest uint64
}

// digestSeed is an arbitrary fixed seed; any fixed value works since digests
// are only ever compared within one process's lifetime, never persisted or
// sent over the wire.
const digestSeed = 1103515245

// Digest returns a stable hash of the node id, computed lazily and cached.
func (n *Node) Digest() uint64 {
	if n.idDigest == 0 {
		n.idDigest = xxhash.ChecksumString64S(n.NodeID, digestSeed)
	}
	return n.idDigest
}

func (n *Node) Equals(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	return n.NodeID == o.NodeID && n.Hostname == o.Hostname &&
		n.KVPort == o.KVPort && n.KVPortTLS == o.KVPortTLS &&
		n.MgmtPort == o.MgmtPort && n.MgmtPortTLS == o.MgmtPortTLS &&
		n.IsDataNode == o.IsDataNode
}

// VbucketMap is the V x (R+1) table: cell (v, i) holds a server index into
// the node list, or -1 for "no node."
type VbucketMap [][]int

// NumVbuckets returns V.
func (m VbucketMap) NumVbuckets() int { return len(m) }

// NumReplicas returns R (cell width minus the active copy).
func (m VbucketMap) NumReplicas() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0]) - 1
}

// BucketType distinguishes couchbase (vbucket-aware) from memcached
// (ketama-hashed, out of scope for routing here) buckets.
type BucketType string

const (
	BucketTypeCouchbase BucketType = "membase"
	BucketTypeMemcached BucketType = "memcached"
)

// Bucket is the optional bucket section of a cluster config.
type Bucket struct {
	Name          string
	Type          BucketType
	VbucketMap    VbucketMap
	NumReplicas   int
	ServerList    []string // node-id per index, parallel to VbucketMap cell values
}

// ClusterConfig is a versioned snapshot of the cluster's nodes and, when a
// bucket has been selected, its vbucket map.
type ClusterConfig struct {
	RevEpoch int64
	Rev      int64
	Nodes    []*Node
	Bucket   *Bucket // nil: cluster-level bootstrap config, no bucket selected
}

// NodeByID looks up a node by its stable id.
func (c *ClusterConfig) NodeByID(id string) *Node {
	for _, n := range c.Nodes {
		if n.NodeID == id {
			return n
		}
	}
	return nil
}

// compareRev returns -1, 0, or 1 comparing (RevEpoch, Rev) pairs: rev_epoch
// first, then rev.
func compareRev(aEpoch, aRev, bEpoch, bRev int64) int {
	if aEpoch != bEpoch {
		if aEpoch < bEpoch {
			return -1
		}
		return 1
	}
	if aRev != bRev {
		if aRev < bRev {
			return -1
		}
		return 1
	}
	return 0
}

// Supersedes reports whether newCfg should replace oldCfg:
//   - different bucket name: always accept (takeover)
//   - same bucket, equal or lower rev: drop
//   - same bucket, higher rev: accept
func Supersedes(oldCfg, newCfg *ClusterConfig) bool {
	if oldCfg == nil {
		return true
	}
	if newCfg == nil {
		return false
	}
	oldBucket, newBucket := "", ""
	if oldCfg.Bucket != nil {
		oldBucket = oldCfg.Bucket.Name
	}
	if newCfg.Bucket != nil {
		newBucket = newCfg.Bucket.Name
	}
	if oldBucket != newBucket {
		return true // bucket takeover always supersedes
	}
	return compareRev(oldCfg.RevEpoch, oldCfg.Rev, newCfg.RevEpoch, newCfg.Rev) < 0
}

// IsBucketTakeover reports whether newCfg names a different bucket than
// oldCfg: a config naming a different bucket always supersedes.
func IsBucketTakeover(oldCfg, newCfg *ClusterConfig) bool {
	if oldCfg == nil || oldCfg.Bucket == nil || newCfg == nil || newCfg.Bucket == nil {
		return false
	}
	return oldCfg.Bucket.Name != newCfg.Bucket.Name
}
