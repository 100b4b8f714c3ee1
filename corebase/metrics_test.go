package corebase

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestCorebaseMetrics(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Corebase Metrics Suite")
}

var _ = Describe("PrometheusMeter", func() {
	It("counts a retry against the labeled series", func() {
		reg := prometheus.NewRegistry()
		m := NewPrometheusMeter(reg)

		m.RecordRetry("kv", "get")
		m.RecordRetry("kv", "get")

		Expect(testutil.ToFloat64(m.retries.WithLabelValues("kv", "get"))).To(Equal(2.0))
	})

	It("counts an op error against the labeled series", func() {
		reg := prometheus.NewRegistry()
		m := NewPrometheusMeter(reg)

		m.RecordOpDuration("query", "select", int64(1000000), New(KindInternal, "boom", nil))

		Expect(testutil.ToFloat64(m.opErrors.WithLabelValues("query", "select"))).To(Equal(1.0))
	})
})
