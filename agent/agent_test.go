package agent

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/couchbaselabs/gocbcorex/corebase"
	"github.com/couchbaselabs/gocbcorex/httpcomponent"
	"github.com/couchbaselabs/gocbcorex/kvclientpool"
	"github.com/couchbaselabs/gocbcorex/memdx"
	"github.com/couchbaselabs/gocbcorex/topology"
	"github.com/couchbaselabs/gocbcorex/vbucketrouter"
)

func TestAgent(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Agent Suite")
}

// newTestAgent builds an Agent the way Connect does, minus the seed dial:
// tests drive ApplyConfig/Dispatch/Query directly against a config they
// construct in-process.
func newTestAgent() *Agent {
	cfg := corebase.AgentConfig{
		SeedHosts:                []string{"127.0.0.1:1"},
		KVConnectionsPerEndpoint: 1,
	}
	a := &Agent{
		cfg:       cfg,
		router:    vbucketrouter.NewRouter(),
		mgmt:      httpcomponent.NewComponent(httpcomponent.ServiceManagement, cfg.Authenticator),
		query:     httpcomponent.NewComponent(httpcomponent.ServiceQuery, cfg.Authenticator),
		search:    httpcomponent.NewComponent(httpcomponent.ServiceSearch, cfg.Authenticator),
		analytics: httpcomponent.NewComponent(httpcomponent.ServiceAnalytics, cfg.Authenticator),
		closeCh:   make(chan struct{}),
	}
	a.kv = kvclientpool.NewManager(a.kvConfigFor)
	a.router.SetConfigSink(a)
	return a
}

func oneNodeConfig(revEpoch, rev int64, bucket string) *topology.ClusterConfig {
	node := &topology.Node{
		NodeID:     "node-a",
		Hostname:   "127.0.0.1",
		KVPort:     11210,
		MgmtPort:   8091,
		QueryPort:  8093,
		IsDataNode: true,
	}
	cfg := &topology.ClusterConfig{RevEpoch: revEpoch, Rev: rev, Nodes: []*topology.Node{node}}
	if bucket != "" {
		cfg.Bucket = &topology.Bucket{
			Name:        bucket,
			Type:        topology.BucketTypeCouchbase,
			VbucketMap:  topology.VbucketMap{{0}, {0}},
			NumReplicas: 0,
			ServerList:  []string{"node-a"},
		}
	}
	return cfg
}

var _ = Describe("Agent.ApplyConfig", func() {
	It("wires kv and http endpoints from the first accepted config", func() {
		a := newTestAgent()
		defer a.Close()

		a.ApplyConfig(oneNodeConfig(1, 1, "default"))

		Expect(a.kv.GetPool("node-a")).NotTo(BeNil())
		Expect(a.router.Snapshot()).NotTo(BeNil())
		Expect(a.router.Snapshot().NodeForVbucket(0, 0)).To(Equal("node-a"))
	})

	It("drops a config with an equal or lower revision", func() {
		a := newTestAgent()
		defer a.Close()

		a.ApplyConfig(oneNodeConfig(1, 2, "default"))
		a.ApplyConfig(oneNodeConfig(1, 1, "default"))

		Expect(a.lastCfg.Rev).To(Equal(int64(2)))
	})

	It("accepts a bucket takeover regardless of revision", func() {
		a := newTestAgent()
		defer a.Close()

		a.ApplyConfig(oneNodeConfig(5, 5, "bucket-a"))
		a.ApplyConfig(oneNodeConfig(0, 0, "bucket-b"))

		Expect(a.lastCfg.Bucket.Name).To(Equal("bucket-b"))
	})

	It("prunes an endpoint once it drops out of the config", func() {
		a := newTestAgent()
		defer a.Close()

		a.ApplyConfig(oneNodeConfig(1, 1, "default"))
		Expect(a.kv.GetPool("node-a")).NotTo(BeNil())

		empty := &topology.ClusterConfig{RevEpoch: 1, Rev: 2}
		a.ApplyConfig(empty)
		Expect(a.kv.GetPool("node-a")).To(BeNil())
	})
})

var _ = Describe("Agent.Dispatch", func() {
	It("surfaces a timeout when no bucket has ever been selected", func() {
		a := newTestAgent()
		defer a.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := a.Dispatch(ctx, []byte("doc-1"), memdx.Packet{Magic: memdx.MagicReq, OpCode: memdx.OpCodeGet})
		Expect(err).To(HaveOccurred())
	})
})
