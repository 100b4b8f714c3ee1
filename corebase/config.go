package corebase

import (
	"strconv"
	"time"
)

// AgentConfig is the caller-supplied, immutable-for-the-agent's-lifetime
// configuration. It splits cluster-wide settings, which never change after
// construction, from the per-component configs that get recomputed on every
// applied topology update.
type AgentConfig struct {
	SeedHosts      []string
	BucketName     string // may be empty: cluster-level bootstrap
	TLSEnabled     bool
	Authenticator  Authenticator
	Compressor     Compressor
	OrphanReporter OrphanReporter
	Meter          Meter
	Tracer         Tracer

	KVConnectionsPerEndpoint int
	KVConnectTimeout         time.Duration
	KVConnectThrottle        time.Duration

	HTTPConnectTimeout time.Duration

	ConfigPollInterval time.Duration

	CompressionEnabled  bool
	CollectionsEnabled  bool
	UnorderedExecution  bool

	RequestedHelloFeatures []uint16
}

// KvClientManagerConfig is the KV side of AgentComponentConfigs: endpoint-id
// -> address, plus whatever bootstrap parameters clients reconnecting under
// this config should use.
type KvClientManagerConfig struct {
	Endpoints map[string]EndpointAddress
	// NumConnections is how many connections kvclientpool should maintain
	// per endpoint once this config is applied.
	NumConnections int
}

// EndpointAddress is a host:port pair for either a plaintext or TLS listener.
type EndpointAddress struct {
	Host   string
	Port   int
	NodeID string
}

func (e EndpointAddress) String() string {
	return e.Host + ":" + strconv.Itoa(e.Port)
}

// HTTPEndpointsConfig is the per-service HTTP endpoint set (mgmt, query,
// search, analytics), computed fresh on every apply_config.
type HTTPEndpointsConfig struct {
	Mgmt       map[string]EndpointAddress
	Query      map[string]EndpointAddress
	Search     map[string]EndpointAddress
	Analytics  map[string]EndpointAddress
}

// ConfigWatcherEndpointsConfig is the rotating set of endpoints the memd
// poller of C10 may target.
type ConfigWatcherEndpointsConfig struct {
	Endpoints []string
	Bucket    string
}

// AgentComponentConfigs bundles everything computed from one accepted
// cluster config, applied atomically across the agent's components.
type AgentComponentConfigs struct {
	KvClientManager KvClientManagerConfig
	HTTPEndpoints   HTTPEndpointsConfig
	ConfigWatcher   ConfigWatcherEndpointsConfig
}
