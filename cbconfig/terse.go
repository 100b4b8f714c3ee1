// Package cbconfig parses the cluster's terse config JSON (as returned by
// GET_CLUSTER_CONFIG and embedded in NOT_MY_VBUCKET responses) into the
// topology package's data model, and polls for updates over an existing KV
// connection.
package cbconfig

import (
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/couchbaselabs/gocbcorex/topology"
)

// NodeServices is the per-node "services" object of a terse config,
// carrying both default-network and alternate-network (NAT/cloud) ports.
// Unknown fields are ignored by design: this struct only names the ports
// this module routes to.
type NodeServices struct {
	KV        int `json:"kv,omitempty"`
	KVSSL     int `json:"kvSSL,omitempty"`
	Mgmt      int `json:"mgmt,omitempty"`
	MgmtSSL   int `json:"mgmtSSL,omitempty"`
	N1QL      int `json:"n1ql,omitempty"`
	N1QLSSL   int `json:"n1qlSSL,omitempty"`
	FTS       int `json:"fts,omitempty"`
	FTSSSL    int `json:"ftsSSL,omitempty"`
	CBAS      int `json:"cbas,omitempty"`
	CBASSSL   int `json:"cbasSSL,omitempty"`
}

// AlternateAddress is one entry of a node's "alternateAddresses" map, keyed
// by network name (e.g. "external").
type AlternateAddress struct {
	Hostname string       `json:"hostname"`
	Ports    NodeServices `json:"ports"`
}

// TerseNode is one entry of "nodesExt". Fields this module never reads are
// dropped on decode; the struct is read-only, so nothing re-marshals it.
type TerseNode struct {
	ThisNode          bool                        `json:"thisNode,omitempty"`
	Hostname          string                      `json:"hostname,omitempty"`
	NodeUUID          string                      `json:"nodeUUID,omitempty"`
	Services          NodeServices                `json:"services"`
	AlternateAddresses map[string]AlternateAddress `json:"alternateAddresses,omitempty"`
}

// VbucketServerMap is the "vBucketServerMap" section present once a bucket
// has been selected.
type VbucketServerMap struct {
	HashAlgorithm string    `json:"hashAlgorithm"`
	NumReplicas   int       `json:"numReplicas"`
	ServerList    []string  `json:"serverList"`
	VBucketMap    [][]int   `json:"vBucketMap"`
}

// TerseConfig mirrors the cluster's terse config wire format. Unknown
// top-level fields (far more exist on the real server) are tolerated
// silently by jsoniter's default decode behavior.
type TerseConfig struct {
	RevEpoch   int64             `json:"revEpoch"`
	Rev        int64             `json:"rev"`
	Name       string            `json:"name,omitempty"` // bucket name; empty for a cluster-level config
	NodesExt   []TerseNode       `json:"nodesExt"`
	BucketType string            `json:"bucketType,omitempty"`
	VBucketServerMap *VbucketServerMap `json:"vBucketServerMap,omitempty"`
}

// Network selects which address family a parsed config should expose:
// hostnames/ports from the node's default network, or from one of its
// alternateAddresses entries.
type Network string

const (
	NetworkDefault Network = ""
)

// SubstituteHost replaces the literal "$HOST" placeholder the server emits
// in a terse config embedded in a NOT_MY_VBUCKET response (so the payload
// doesn't have to repeat the sender's own hostname) with the endpoint
// hostname the config was actually read from.
func SubstituteHost(raw []byte, sourceHostname string) []byte {
	if !strings.Contains(string(raw), "$HOST") {
		return raw
	}
	return []byte(strings.ReplaceAll(string(raw), "$HOST", sourceHostname))
}

// Parse decodes raw terse config JSON, substituting $HOST for
// sourceHostname first.
func Parse(raw []byte, sourceHostname string) (*TerseConfig, error) {
	raw = SubstituteHost(raw, sourceHostname)
	var cfg TerseConfig
	if err := jsoniter.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ToClusterConfig converts a parsed TerseConfig into the topology package's
// data model using network to choose each node's address family.
func (c *TerseConfig) ToClusterConfig(network Network) *topology.ClusterConfig {
	nodes := make([]*topology.Node, 0, len(c.NodesExt))
	for i, n := range c.NodesExt {
		nodes = append(nodes, terseNodeToNode(i, n, network))
	}

	out := &topology.ClusterConfig{
		RevEpoch: c.RevEpoch,
		Rev:      c.Rev,
		Nodes:    nodes,
	}

	if c.Name != "" && c.VBucketServerMap != nil {
		vbm := make(topology.VbucketMap, len(c.VBucketServerMap.VBucketMap))
		for i, row := range c.VBucketServerMap.VBucketMap {
			vbm[i] = append([]int(nil), row...)
		}
		// serverList names KV endpoints as "host:port"; translate each to the
		// id of the node it belongs to, keeping an entry no node matches as is.
		serverList := make([]string, len(c.VBucketServerMap.ServerList))
		for i, addr := range c.VBucketServerMap.ServerList {
			serverList[i] = addr
			for j, n := range c.NodesExt {
				if n.Hostname+":"+strconv.Itoa(n.Services.KV) == addr {
					serverList[i] = nodes[j].NodeID
					break
				}
			}
		}
		out.Bucket = &topology.Bucket{
			Name:        c.Name,
			Type:        topology.BucketType(c.BucketType),
			VbucketMap:  vbm,
			NumReplicas: c.VBucketServerMap.NumReplicas,
			ServerList:  serverList,
		}
	}
	return out
}

func terseNodeToNode(idx int, n TerseNode, network Network) *topology.Node {
	hostname := n.Hostname
	svc := n.Services
	if network != NetworkDefault {
		if alt, ok := n.AlternateAddresses[string(network)]; ok {
			hostname = alt.Hostname
			svc = alt.Ports
		}
	}

	nodeID := n.NodeUUID
	if nodeID == "" {
		nodeID = hostname
	}
	return &topology.Node{
		NodeID:           nodeID,
		Hostname:         hostname,
		KVPort:           svc.KV,
		KVPortTLS:        svc.KVSSL,
		MgmtPort:         svc.Mgmt,
		MgmtPortTLS:      svc.MgmtSSL,
		QueryPort:        svc.N1QL,
		QueryPortTLS:     svc.N1QLSSL,
		SearchPort:       svc.FTS,
		SearchPortTLS:    svc.FTSSSL,
		AnalyticsPort:    svc.CBAS,
		AnalyticsPortTLS: svc.CBASSSL,
		IsDataNode:       svc.KV != 0 || svc.KVSSL != 0,
	}
}

// PickNetwork decides whether the default or an alternate network should be
// used, looking only at the node marked thisNode: NetworkDefault when its
// default hostname equals connectedHost (or is empty), otherwise the name of
// the alternate address whose hostname equals connectedHost, otherwise
// NetworkDefault. The result is not cached.
func PickNetwork(cfg *TerseConfig, connectedHost string) Network {
	for _, n := range cfg.NodesExt {
		if !n.ThisNode {
			continue
		}
		if n.Hostname == connectedHost || n.Hostname == "" {
			return NetworkDefault
		}
		for name, alt := range n.AlternateAddresses {
			if alt.Hostname == connectedHost {
				return Network(name)
			}
		}
	}
	return NetworkDefault
}
