package cbconfig

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestCbconfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cbconfig Suite")
}

const sampleConfig = `{
	"rev": 5,
	"revEpoch": 1,
	"name": "travel-sample",
	"bucketType": "membase",
	"nodesExt": [
		{"thisNode": true, "hostname": "$HOST", "services": {"kv": 11210, "mgmt": 8091, "n1ql": 8093}},
		{"hostname": "node2.example.com", "services": {"kv": 11210, "mgmt": 8091, "n1ql": 8093}}
	],
	"vBucketServerMap": {
		"hashAlgorithm": "CRC",
		"numReplicas": 1,
		"serverList": ["$HOST:11210", "node2.example.com:11210"],
		"vBucketMap": [[0,1],[1,0]]
	}
}`

var _ = Describe("Parse", func() {
	It("substitutes $HOST with the source hostname before decoding", func() {
		cfg, err := Parse([]byte(sampleConfig), "node1.example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.NodesExt[0].Hostname).To(Equal("node1.example.com"))
		Expect(cfg.VBucketServerMap.ServerList[0]).To(Equal("node1.example.com:11210"))
	})

	It("converts into a topology.ClusterConfig with bucket metadata", func() {
		cfg, err := Parse([]byte(sampleConfig), "node1.example.com")
		Expect(err).NotTo(HaveOccurred())

		cc := cfg.ToClusterConfig(NetworkDefault)
		Expect(cc.RevEpoch).To(Equal(int64(1)))
		Expect(cc.Rev).To(Equal(int64(5)))
		Expect(cc.Nodes).To(HaveLen(2))
		Expect(cc.Bucket).NotTo(BeNil())
		Expect(cc.Bucket.Name).To(Equal("travel-sample"))
		Expect(cc.Bucket.ServerList).To(HaveLen(2))
		Expect(cc.Nodes[0].KVPort).To(Equal(11210))
	})

	It("has no bucket section for a cluster-level bootstrap config", func() {
		cfg, err := Parse([]byte(`{"rev":1,"revEpoch":0,"nodesExt":[{"hostname":"n1","services":{"kv":11210}}]}`), "n1")
		Expect(err).NotTo(HaveOccurred())
		cc := cfg.ToClusterConfig(NetworkDefault)
		Expect(cc.Bucket).To(BeNil())
	})
})
