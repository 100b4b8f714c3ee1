// Package agent is the core's single entry point: it owns every
// per-concern component (KV connection pools, the vbucket router, one HTTP
// component per service, the config poller) and keeps them all in sync with
// the cluster's current topology.
package agent

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/couchbaselabs/gocbcorex/cbconfig"
	"github.com/couchbaselabs/gocbcorex/corebase"
	"github.com/couchbaselabs/gocbcorex/corebase/log"
	"github.com/couchbaselabs/gocbcorex/httpcomponent"
	"github.com/couchbaselabs/gocbcorex/kvclientpool"
	"github.com/couchbaselabs/gocbcorex/memdx"
	"github.com/couchbaselabs/gocbcorex/retry"
	"github.com/couchbaselabs/gocbcorex/topology"
	"github.com/couchbaselabs/gocbcorex/vbucketrouter"
)

// Agent owns every component needed to talk to one cluster/bucket
// combination. Exactly one goroutine at a time runs ApplyConfig, serialized
// by applyMu, so two overlapping config updates never interleave their
// component swaps.
type Agent struct {
	cfg corebase.AgentConfig
	log log.Logger

	kv        *kvclientpool.Manager
	router    *vbucketrouter.Router
	mgmt      *httpcomponent.Component
	query     *httpcomponent.Component
	search    *httpcomponent.Component
	analytics *httpcomponent.Component

	poller *cbconfig.Poller

	applyMu sync.Mutex
	lastCfg *topology.ClusterConfig

	closeOnce sync.Once
	closeCh   chan struct{}
}

// Connect dials the agent's seed hosts, bootstraps a KV connection, reads
// the cluster's initial config, and starts polling for updates. The
// returned Agent is ready for Dispatch/Query/Search/Analytics/Mgmt calls
// once this returns.
func Connect(ctx context.Context, cfg corebase.AgentConfig) (*Agent, error) {
	if len(cfg.SeedHosts) == 0 {
		return nil, corebase.New(corebase.KindInvalidArgument, "no seed hosts configured", nil)
	}

	a := &Agent{
		cfg:       cfg,
		log:       log.New(log.SubsystemAgent),
		router:    vbucketrouter.NewRouter(),
		mgmt:      httpcomponent.NewComponent(httpcomponent.ServiceManagement, cfg.Authenticator),
		query:     httpcomponent.NewComponent(httpcomponent.ServiceQuery, cfg.Authenticator),
		search:    httpcomponent.NewComponent(httpcomponent.ServiceSearch, cfg.Authenticator),
		analytics: httpcomponent.NewComponent(httpcomponent.ServiceAnalytics, cfg.Authenticator),
		closeCh:   make(chan struct{}),
	}
	a.kv = kvclientpool.NewManager(a.kvConfigFor)
	a.router.SetConfigSink(a)

	seedClient, seedHostname, rawCfg, err := a.bootstrapSeed(ctx)
	if err != nil {
		return nil, err
	}

	terse, err := cbconfig.Parse(rawCfg, seedHostname)
	if err != nil {
		seedClient.Close()
		return nil, err
	}
	a.ApplyConfig(terse.ToClusterConfig(cbconfig.NetworkDefault))

	interval := cfg.ConfigPollInterval
	if interval <= 0 {
		interval = 2500 * time.Millisecond
	}
	a.poller = cbconfig.NewPoller(seedClient, seedHostname, interval)
	updates, _ := a.poller.Subscribe()
	go a.watchConfig(updates)

	return a, nil
}

func (a *Agent) bootstrapSeed(ctx context.Context) (*memdx.Client, string, []byte, error) {
	var lastErr error
	for _, host := range a.cfg.SeedHosts {
		client, rawCfg, err := a.dialAndBootstrap(ctx, host)
		if err == nil {
			return client, hostOnly(host), rawCfg, nil
		}
		lastErr = err
	}
	return nil, "", nil, corebase.New(corebase.KindConnectTimeout, "could not reach any seed host", lastErr)
}

func (a *Agent) dialAndBootstrap(ctx context.Context, addr string) (*memdx.Client, []byte, error) {
	dialer := net.Dialer{Timeout: a.cfg.KVConnectTimeout}
	var conn net.Conn
	var err error
	if a.cfg.TLSEnabled {
		conn, err = tls.DialWithDialer(&dialer, "tcp", addr, &tls.Config{})
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, nil, corebase.New(corebase.KindConnectTimeout, "dial seed host failed", err)
	}

	client := memdx.NewClient(conn, a.cfg.OrphanReporter)
	opts := memdx.BootstrapOptions{
		RequestedFeatures: a.cfg.RequestedHelloFeatures,
		BucketName:        a.cfg.BucketName,
		ClientName:        "gocbcorex",
	}
	if a.cfg.Authenticator != nil {
		creds, err := a.cfg.Authenticator.Credentials(ctx, "kv", addr)
		if err == nil {
			opts.Username = creds.Username
			opts.Password = creds.Password
		}
	}
	res, err := client.Bootstrap(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	return client, res.ClusterConfig, nil
}

func (a *Agent) watchConfig(updates chan *cbconfig.TerseConfig) {
	for {
		select {
		case <-a.closeCh:
			return
		case terse, ok := <-updates:
			if !ok {
				return
			}
			a.ApplyConfig(terse.ToClusterConfig(cbconfig.NetworkDefault))
		}
	}
}

// ApplyConfig accepts newCfg if it supersedes whatever config is currently
// active, and pushes the resulting endpoint/routing updates to every
// component. Two overlapping calls never interleave: applyMu serializes
// them the same way a single mutex guards a whole-config swap elsewhere in
// this module.
func (a *Agent) ApplyConfig(newCfg *topology.ClusterConfig) {
	a.applyMu.Lock()
	defer a.applyMu.Unlock()

	if !topology.Supersedes(a.lastCfg, newCfg) {
		return
	}
	oldCfg := a.lastCfg
	a.lastCfg = newCfg

	oldKV := kvEndpoints(oldCfg)
	newKV := kvEndpoints(newCfg)

	// Phase one: add every endpoint either config might route to, so a
	// request dispatched against the about-to-be-installed routing table
	// never lands on an endpoint that hasn't been pooled yet.
	a.kv.UpdateEndpoints(unionEndpoints(oldKV, newKV), true)

	a.router.UpdateRoutingInfo(newCfg)
	a.mgmt.UpdateEndpoints(httpEndpoints(newCfg, a.cfg.TLSEnabled, func(n *topology.Node) int { return n.MgmtPort }, func(n *topology.Node) int { return n.MgmtPortTLS }))
	a.query.UpdateEndpoints(httpEndpoints(newCfg, a.cfg.TLSEnabled, func(n *topology.Node) int { return n.QueryPort }, func(n *topology.Node) int { return n.QueryPortTLS }))
	a.search.UpdateEndpoints(httpEndpoints(newCfg, a.cfg.TLSEnabled, func(n *topology.Node) int { return n.SearchPort }, func(n *topology.Node) int { return n.SearchPortTLS }))
	a.analytics.UpdateEndpoints(httpEndpoints(newCfg, a.cfg.TLSEnabled, func(n *topology.Node) int { return n.AnalyticsPort }, func(n *topology.Node) int { return n.AnalyticsPortTLS }))

	// Phase two: now that routing and every HTTP component point only at
	// newCfg, prune whatever oldCfg needed but newCfg doesn't.
	a.kv.UpdateEndpoints(newKV, false)
}

// UpdateAuth re-derives credentials for every live KV endpoint via
// kvConfigFor and pushes them to their pools, applying on each slot's next
// reconnect without disturbing already-open connections.
func (a *Agent) UpdateAuth() {
	a.kv.UpdateAuth()
}

// Reconfigure pushes a non-address, non-credential settings change (connect
// timeouts, connect throttle, TLS config) to every KV pool.
func (a *Agent) Reconfigure(s kvclientpool.Settings) {
	a.kv.Reconfigure(s)
}

func unionEndpoints(a, b map[string]corebase.EndpointAddress) map[string]corebase.EndpointAddress {
	out := make(map[string]corebase.EndpointAddress, len(a)+len(b))
	for id, addr := range a {
		out[id] = addr
	}
	for id, addr := range b {
		out[id] = addr
	}
	return out
}

// Dispatch routes a KV request to the node owning key's active vbucket,
// retrying across NOT_MY_VBUCKET the way vbucketrouter.Router.Dispatch does
// and retrying other retryable statuses (temporary failure, rate limiting)
// with backoff on top, until ctx is done.
func (a *Agent) Dispatch(ctx context.Context, key []byte, pkt memdx.Packet) (memdx.Packet, error) {
	opName := fmt.Sprintf("0x%02x", uint8(pkt.OpCode))
	start := time.Now()
	ctx, span := a.startSpan(ctx, "kv", opName)

	result, err := retry.Orchestrate(ctx, a.observedBackoff("kv", opName), "kv", pkt.OpCode.IsIdempotent(), func(ctx context.Context) (memdx.Packet, error) {
		return a.router.Dispatch(ctx, key, 0, func(ctx context.Context, nodeID string) (memdx.Packet, error) {
			client, err := a.kv.GetClient(nodeID)
			if err != nil {
				return memdx.Packet{}, err
			}
			op, err := client.Dispatch(ctx, pkt, memdx.DefaultClassifier)
			if err != nil {
				return memdx.Packet{}, err
			}
			defer op.Close()
			resp, err := op.Recv(ctx)
			if err != nil {
				return resp, err
			}
			if respErr := memdx.ClassifyResponse(resp); respErr != nil {
				return resp, respErr
			}
			return resp, nil
		})
	})

	a.recordOp("kv", opName, span, start, err)
	return result, err
}

// Query dispatches one request against the query service, retrying
// retryable failures with backoff until ctx is done.
func (a *Agent) Query(ctx context.Context, p httpcomponent.ReqParams) (*httpcomponent.Response, error) {
	return a.orchestrateHTTP(ctx, "query", a.query, p)
}

// Search dispatches one request against the search service, retrying
// retryable failures with backoff until ctx is done.
func (a *Agent) Search(ctx context.Context, p httpcomponent.ReqParams) (*httpcomponent.Response, error) {
	return a.orchestrateHTTP(ctx, "search", a.search, p)
}

// Analytics dispatches one request against the analytics service, retrying
// retryable failures with backoff until ctx is done.
func (a *Agent) Analytics(ctx context.Context, p httpcomponent.ReqParams) (*httpcomponent.Response, error) {
	return a.orchestrateHTTP(ctx, "analytics", a.analytics, p)
}

// Mgmt dispatches one request against the cluster management service,
// retrying retryable failures with backoff until ctx is done.
func (a *Agent) Mgmt(ctx context.Context, p httpcomponent.ReqParams) (*httpcomponent.Response, error) {
	return a.orchestrateHTTP(ctx, "mgmt", a.mgmt, p)
}

func (a *Agent) orchestrateHTTP(ctx context.Context, service string, comp *httpcomponent.Component, p httpcomponent.ReqParams) (*httpcomponent.Response, error) {
	opName := p.Method + " " + p.Path
	start := time.Now()
	ctx, span := a.startSpan(ctx, service, opName)

	idempotent := p.Idempotent || p.Method == "GET" || p.Method == "HEAD"
	resp, err := retry.Orchestrate(ctx, a.observedBackoff(service, opName), service, idempotent, func(ctx context.Context) (*httpcomponent.Response, error) {
		return comp.Orchestrate(ctx, p)
	})

	a.recordOp(service, opName, span, start, err)
	return resp, err
}

// startSpan opens a span via the configured Tracer, or a no-op one if the
// caller didn't supply a Tracer.
func (a *Agent) startSpan(ctx context.Context, service, opName string) (context.Context, corebase.SpanScope) {
	tracer := a.cfg.Tracer
	if tracer == nil {
		tracer = corebase.NoopTracer{}
	}
	return tracer.StartSpan(ctx, service, opName)
}

// recordOp closes span and reports the op's duration/outcome to the
// configured Meter, a no-op if the caller didn't supply one.
func (a *Agent) recordOp(service, opName string, span corebase.SpanScope, start time.Time, err error) {
	span.End(err)
	a.meterOrNoop().RecordOpDuration(service, opName, time.Since(start).Nanoseconds(), err)
}

// observedBackoff wraps retry.DefaultBackoff so every retried attempt is
// also reported to the configured Meter.
func (a *Agent) observedBackoff(service, opName string) retry.Strategy {
	return meteredBackoff{base: retry.DefaultBackoff, meter: a.meterOrNoop(), service: service, op: opName}
}

func (a *Agent) meterOrNoop() corebase.Meter {
	if a.cfg.Meter != nil {
		return a.cfg.Meter
	}
	return corebase.NoopMeter{}
}

type meteredBackoff struct {
	base    retry.ExponentialBackoff
	meter   corebase.Meter
	service string
	op      string
}

func (m meteredBackoff) ShouldRetry(info retry.Info) bool {
	shouldRetry := m.base.ShouldRetry(info)
	if shouldRetry {
		m.meter.RecordRetry(m.service, m.op)
	}
	return shouldRetry
}

func (m meteredBackoff) Backoff(info retry.Info) time.Duration {
	return m.base.Backoff(info)
}

// Close tears down every component and stops the config poller.
func (a *Agent) Close() error {
	a.closeOnce.Do(func() {
		close(a.closeCh)
		if a.poller != nil {
			a.poller.Stop()
		}
		a.kv.Close()
	})
	return nil
}

func (a *Agent) kvConfigFor(id string, addr corebase.EndpointAddress) kvclientpool.Config {
	username, password := "", ""
	if a.cfg.Authenticator != nil {
		if creds, err := a.cfg.Authenticator.Credentials(context.Background(), "kv", addr.String()); err == nil {
			username, password = creds.Username, creds.Password
		}
	}
	return kvclientpool.Config{
		Address:         addr,
		TLSEnabled:      a.cfg.TLSEnabled,
		NumConnections:  a.cfg.KVConnectionsPerEndpoint,
		ConnectTimeout:  a.cfg.KVConnectTimeout,
		ConnectThrottle: a.cfg.KVConnectThrottle,
		OrphanReporter:  a.cfg.OrphanReporter,
		BootstrapOpts: memdx.BootstrapOptions{
			RequestedFeatures: a.cfg.RequestedHelloFeatures,
			Username:          username,
			Password:          password,
			BucketName:        a.cfg.BucketName,
			ClientName:        "gocbcorex",
		},
	}
}

func kvEndpoints(cfg *topology.ClusterConfig) map[string]corebase.EndpointAddress {
	if cfg == nil {
		return nil
	}
	out := make(map[string]corebase.EndpointAddress, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		if !n.IsDataNode {
			continue
		}
		out[n.NodeID] = corebase.EndpointAddress{Host: n.Hostname, Port: n.KVPort, NodeID: n.NodeID}
	}
	return out
}

func httpEndpoints(cfg *topology.ClusterConfig, tlsEnabled bool, port, portTLS func(*topology.Node) int) map[string]string {
	out := make(map[string]string)
	for _, n := range cfg.Nodes {
		p := port(n)
		scheme := "http"
		if tlsEnabled {
			p = portTLS(n)
			scheme = "https"
		}
		if p == 0 {
			continue
		}
		out[n.NodeID] = fmt.Sprintf("%s://%s:%d", scheme, n.Hostname, p)
	}
	return out
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
