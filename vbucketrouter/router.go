// Package vbucketrouter maps document keys to the node currently responsible
// for their vbucket, and retries across a NOT_MY_VBUCKET response until the
// routing table catches up or the endpoint set is exhausted.
package vbucketrouter

import (
	"context"
	"hash/crc32"
	"sync/atomic"

	"github.com/couchbaselabs/gocbcorex/cbconfig"
	"github.com/couchbaselabs/gocbcorex/corebase"
	"github.com/couchbaselabs/gocbcorex/memdx"
	"github.com/couchbaselabs/gocbcorex/topology"
)

// RoutingInfo is the immutable snapshot a Router swaps in on every accepted
// config: the vbucket map plus the server list it indexes into.
type RoutingInfo struct {
	NumVbuckets int
	NumReplicas int
	VbucketMap  topology.VbucketMap
	ServerList  []string          // node id per server index, parallel to VbucketMap cells
	Hostnames   map[string]string // node id -> hostname, for $HOST substitution on an NMVB config blob
}

// ConfigSink receives a cluster config recovered from a NOT_MY_VBUCKET
// response body, so the router's own routing-table update cascades through
// the rest of the owning agent's components exactly like any other config
// update. Implemented by *agent.Agent; declared here (rather than imported)
// so vbucketrouter never depends on agent.
type ConfigSink interface {
	ApplyConfig(cfg *topology.ClusterConfig)
}

// Router holds the current vbucket routing table behind an atomic pointer,
// so VbucketByKey/NodeForVbucket never block on a config update in progress.
type Router struct {
	info atomic.Pointer[RoutingInfo]
	sink ConfigSink
}

func NewRouter() *Router {
	return &Router{}
}

// SetConfigSink wires the owner that NMVB-recovered configs get fed into.
// Call once, before Dispatch sees concurrent traffic.
func (r *Router) SetConfigSink(sink ConfigSink) {
	r.sink = sink
}

// UpdateRoutingInfo rebuilds the routing table from cfg's bucket section. A
// cfg with no bucket selected clears the table; callers will see
// corebase.KindBucketNotReady from Dispatch until a bucket config arrives.
func (r *Router) UpdateRoutingInfo(cfg *topology.ClusterConfig) {
	if cfg == nil || cfg.Bucket == nil {
		r.info.Store(nil)
		return
	}
	b := cfg.Bucket
	hostnames := make(map[string]string, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		hostnames[n.NodeID] = n.Hostname
	}
	r.info.Store(&RoutingInfo{
		NumVbuckets: b.VbucketMap.NumVbuckets(),
		NumReplicas: b.VbucketMap.NumReplicas(),
		VbucketMap:  b.VbucketMap,
		ServerList:  b.ServerList,
		Hostnames:   hostnames,
	})
}

// Snapshot returns the currently active routing table, or nil if no bucket
// has been selected yet.
func (r *Router) Snapshot() *RoutingInfo {
	return r.info.Load()
}

// VbucketByKey applies the couchbase vbucket hashing algorithm: the high 16
// bits of the key's CRC32-IEEE checksum, masked down to numVbuckets (always
// a power of two).
func VbucketByKey(key []byte, numVbuckets int) int {
	if numVbuckets <= 0 {
		return 0
	}
	sum := crc32.ChecksumIEEE(key)
	return int((sum >> 16) & uint32(numVbuckets-1))
}

// NodeForVbucket returns the node id serving vbID at replicaIdx (0 is
// active), or "" if the cell has no node assigned.
func (info *RoutingInfo) NodeForVbucket(vbID, replicaIdx int) string {
	if vbID < 0 || vbID >= len(info.VbucketMap) {
		return ""
	}
	row := info.VbucketMap[vbID]
	if replicaIdx < 0 || replicaIdx >= len(row) {
		return ""
	}
	serverIdx := row[replicaIdx]
	if serverIdx < 0 || serverIdx >= len(info.ServerList) {
		return ""
	}
	return info.ServerList[serverIdx]
}

// Dispatcher sends one KV request to nodeID and returns its response.
type Dispatcher func(ctx context.Context, nodeID string) (memdx.Packet, error)

// Dispatch routes key to its active vbucket's node and invokes fn. A
// NOT_MY_VBUCKET response carries the server's own view of the new
// topology in its value; handleNotMyVbucket parses and applies that view
// before a second attempt is made. Every node dispatched to this call is
// tracked: once the recomputed route points at one already tried, the table
// has cycled back on itself (no genuine progress, even if it oscillated
// through other nodes in between) and the original error is returned
// immediately rather than spinning. This also bounds the loop to at most
// one attempt per distinct node, never more than the current server list.
func (r *Router) Dispatch(ctx context.Context, key []byte, replicaIdx int, fn Dispatcher) (memdx.Packet, error) {
	info := r.info.Load()
	if info == nil {
		return memdx.Packet{}, corebase.New(corebase.KindBucketNotReady, "no bucket selected", nil)
	}

	vbID := VbucketByKey(key, info.NumVbuckets)

	tried := make(map[string]struct{})
	var lastErr error
	for {
		info = r.info.Load()
		if info == nil {
			return memdx.Packet{}, corebase.New(corebase.KindBucketNotReady, "no bucket selected", nil)
		}
		nodeID := info.NodeForVbucket(vbID, replicaIdx)
		if nodeID == "" {
			return memdx.Packet{}, corebase.New(corebase.KindNoServerAssigned, "no node assigned to vbucket", nil)
		}
		if _, seen := tried[nodeID]; seen {
			return memdx.Packet{}, lastErr
		}
		tried[nodeID] = struct{}{}

		pkt, err := fn(ctx, nodeID)
		if err == nil {
			return pkt, nil
		}
		if !isNotMyVbucket(err) {
			return pkt, err
		}
		lastErr = err
		r.handleNotMyVbucket(nodeID, pkt, info)

		select {
		case <-ctx.Done():
			return memdx.Packet{}, ctx.Err()
		default:
		}
	}
}

// handleNotMyVbucket parses the terse-config blob a NOT_MY_VBUCKET response
// carries in its value, substitutes $HOST with the hostname of the node
// that sent it, and feeds the resulting cluster config to the sink so the
// next loop iteration sees an updated routing table. A missing blob, parse
// failure, or unwired sink leaves the table untouched: the equality check
// in Dispatch's loop then stops the retry on the next iteration.
func (r *Router) handleNotMyVbucket(fromNodeID string, pkt memdx.Packet, info *RoutingInfo) {
	if len(pkt.Value) == 0 || r.sink == nil {
		return
	}
	sourceHostname := info.Hostnames[fromNodeID]
	terse, err := cbconfig.Parse(pkt.Value, sourceHostname)
	if err != nil {
		return
	}
	r.sink.ApplyConfig(terse.ToClusterConfig(cbconfig.NetworkDefault))
}

func isNotMyVbucket(err error) bool {
	cerr, ok := err.(*corebase.Error)
	return ok && cerr.Kind == corebase.KindNotMyVbucket
}
