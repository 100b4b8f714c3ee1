package vbucketrouter

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/couchbaselabs/gocbcorex/corebase"
	"github.com/couchbaselabs/gocbcorex/memdx"
	"github.com/couchbaselabs/gocbcorex/topology"
)

func TestVbucketRouter(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "VbucketRouter Suite")
}

func fourVbucketConfig() *topology.ClusterConfig {
	return &topology.ClusterConfig{
		RevEpoch: 1,
		Rev:      1,
		Bucket: &topology.Bucket{
			Name: "default",
			Type: topology.BucketTypeCouchbase,
			VbucketMap: topology.VbucketMap{
				{0, 1},
				{1, 0},
				{0, 1},
				{1, 0},
			},
			NumReplicas: 1,
			ServerList:  []string{"node-a", "node-b"},
		},
	}
}

var _ = Describe("Router", func() {
	It("reports bucket not ready before any config is applied", func() {
		r := NewRouter()
		Expect(r.Snapshot()).To(BeNil())

		_, err := r.Dispatch(context.Background(), []byte("k"), 0, func(context.Context, string) (memdx.Packet, error) {
			return memdx.Packet{}, nil
		})
		Expect(err).To(HaveOccurred())
	})

	It("is deterministic for the same key", func() {
		a := VbucketByKey([]byte("document-1"), 1024)
		b := VbucketByKey([]byte("document-1"), 1024)
		Expect(a).To(Equal(b))
		Expect(a).To(BeNumerically(">=", 0))
		Expect(a).To(BeNumerically("<", 1024))
	})

	It("routes to the node named by the vbucket map", func() {
		r := NewRouter()
		r.UpdateRoutingInfo(fourVbucketConfig())

		info := r.Snapshot()
		Expect(info).NotTo(BeNil())
		vbID := VbucketByKey([]byte("my-doc"), info.NumVbuckets)
		want := info.NodeForVbucket(vbID, 0)
		Expect(want).To(BeElementOf("node-a", "node-b"))

		var got string
		_, err := r.Dispatch(context.Background(), []byte("my-doc"), 0, func(_ context.Context, nodeID string) (memdx.Packet, error) {
			got = nodeID
			return memdx.Packet{}, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(want))
	})

	It("retries against the table recovered from the NOT_MY_VBUCKET body", func() {
		r := NewRouter()
		r.UpdateRoutingInfo(fourVbucketConfig())
		r.SetConfigSink(fakeSink{r})

		info := r.Snapshot()
		vbID := VbucketByKey([]byte("my-doc"), info.NumVbuckets)
		before := info.NodeForVbucket(vbID, 0)

		// Every row of the recovered map swaps active and replica, so
		// whichever node owned my-doc's vbucket, the other one does now.
		blob := []byte(`{
			"rev": 2, "revEpoch": 1, "name": "default", "bucketType": "membase",
			"nodesExt": [
				{"hostname": "node-a", "services": {"kv": 11210}},
				{"hostname": "node-b", "services": {"kv": 11210}}
			],
			"vBucketServerMap": {
				"hashAlgorithm": "CRC", "numReplicas": 1,
				"serverList": ["node-a", "node-b"],
				"vBucketMap": [[1,0],[0,1],[1,0],[0,1]]
			}
		}`)

		var seen []string
		_, err := r.Dispatch(context.Background(), []byte("my-doc"), 0, func(_ context.Context, nodeID string) (memdx.Packet, error) {
			seen = append(seen, nodeID)
			if len(seen) == 1 {
				return memdx.Packet{Value: blob}, corebase.New(corebase.KindNotMyVbucket, "not my vbucket", nil)
			}
			return memdx.Packet{}, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(HaveLen(2))
		Expect(seen[0]).To(Equal(before))
		Expect(seen[1]).NotTo(Equal(before))
	})

	It("gives up on the first NOT_MY_VBUCKET when the table never moves", func() {
		r := NewRouter()
		r.UpdateRoutingInfo(fourVbucketConfig())

		calls := 0
		_, err := r.Dispatch(context.Background(), []byte("my-doc"), 0, func(_ context.Context, _ string) (memdx.Packet, error) {
			calls++
			return memdx.Packet{}, corebase.New(corebase.KindNotMyVbucket, "not my vbucket", nil)
		})
		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(1))
	})
})

// fakeSink feeds a recovered config straight back into the same router,
// standing in for *agent.Agent in tests that only exercise vbucketrouter.
type fakeSink struct {
	r *Router
}

func (f fakeSink) ApplyConfig(cfg *topology.ClusterConfig) {
	f.r.UpdateRoutingInfo(cfg)
}
