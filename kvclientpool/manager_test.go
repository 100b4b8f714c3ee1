package kvclientpool

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/couchbaselabs/gocbcorex/corebase"
	"github.com/couchbaselabs/gocbcorex/memdx"
)

var _ = Describe("Manager", func() {
	configFor := func(id string, addr corebase.EndpointAddress) Config {
		return Config{
			Address:        addr,
			NumConnections: 1,
			ConnectThrottle: 0,
		}
	}

	It("adds a pool for a newly seen endpoint and prunes it once removed", func() {
		m := NewManager(configFor)
		defer m.Close()

		Expect(m.GetPool("node-a")).To(BeNil())

		m.UpdateEndpoints(map[string]corebase.EndpointAddress{
			"node-a": {Host: "127.0.0.1", Port: 1},
		}, false)
		Expect(m.GetPool("node-a")).NotTo(BeNil())

		m.UpdateEndpoints(map[string]corebase.EndpointAddress{}, false)
		Expect(m.GetPool("node-a")).To(BeNil())
	})

	It("leaves an unchanged endpoint's pool untouched across an update", func() {
		m := NewManager(configFor)
		defer m.Close()

		m.UpdateEndpoints(map[string]corebase.EndpointAddress{
			"node-a": {Host: "127.0.0.1", Port: 1},
		}, false)
		first := m.GetPool("node-a")

		m.UpdateEndpoints(map[string]corebase.EndpointAddress{
			"node-a": {Host: "127.0.0.1", Port: 1},
			"node-b": {Host: "127.0.0.1", Port: 2},
		}, false)
		Expect(m.GetPool("node-a")).To(BeIdenticalTo(first))
		Expect(m.GetPool("node-b")).NotTo(BeNil())
	})

	It("does not prune a stale endpoint when addOnly is true", func() {
		m := NewManager(configFor)
		defer m.Close()

		m.UpdateEndpoints(map[string]corebase.EndpointAddress{
			"node-a": {Host: "127.0.0.1", Port: 1},
		}, false)

		m.UpdateEndpoints(map[string]corebase.EndpointAddress{
			"node-b": {Host: "127.0.0.1", Port: 2},
		}, true)
		Expect(m.GetPool("node-a")).NotTo(BeNil())
		Expect(m.GetPool("node-b")).NotTo(BeNil())

		m.UpdateEndpoints(map[string]corebase.EndpointAddress{
			"node-b": {Host: "127.0.0.1", Port: 2},
		}, false)
		Expect(m.GetPool("node-a")).To(BeNil())
		Expect(m.GetPool("node-b")).NotTo(BeNil())
	})

	It("returns an error from GetClient for an unknown endpoint", func() {
		m := NewManager(configFor)
		defer m.Close()

		_, err := m.GetClient("missing")
		Expect(err).To(HaveOccurred())
	})

	It("reports a per-endpoint result vector from PingAllClients without one failure affecting another", func() {
		m := NewManager(configFor)
		defer m.Close()

		m.UpdateEndpoints(map[string]corebase.EndpointAddress{
			"node-a": {Host: "127.0.0.1", Port: 1},
			"node-b": {Host: "127.0.0.1", Port: 2},
		}, false)

		results := m.PingAllClients(context.Background())
		Expect(results).To(HaveLen(2))
		for _, r := range results {
			Expect(r.Err).To(HaveOccurred()) // no real server listening
		}
	})

	It("cascades UpdateAuth to every pool's bootstrap options", func() {
		username := "initial"
		cf := func(id string, addr corebase.EndpointAddress) Config {
			return Config{
				Address:        addr,
				NumConnections: 1,
				BootstrapOpts:  memdx.BootstrapOptions{Username: username},
			}
		}
		m := NewManager(cf)
		defer m.Close()

		m.UpdateEndpoints(map[string]corebase.EndpointAddress{
			"node-a": {Host: "127.0.0.1", Port: 1},
		}, false)

		username = "rotated"
		m.UpdateAuth()
		Expect(m.GetPool("node-a").currentConfig().BootstrapOpts.Username).To(Equal("rotated"))
	})
})
