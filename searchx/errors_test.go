package searchx

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/couchbaselabs/gocbcorex/corebase"
)

func TestSearchx(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Searchx Suite")
}

var _ = Describe("ClassifyResponse", func() {
	It("classifies a top-level error string", func() {
		kind, subs := ClassifyResponse("index not found: beer-search", nil)
		Expect(kind).To(Equal(corebase.KindIndexNotFound))
		Expect(subs).To(BeEmpty())
	})

	It("reports success when nothing failed", func() {
		kind, _ := ClassifyResponse("", &Status{Total: 1, Successful: 1})
		Expect(kind).To(Equal(corebase.KindUnknown))
	})

	It("surfaces per-node partial failures as sub errors", func() {
		kind, subs := ClassifyResponse("", &Status{
			Total: 2, Failed: 1, Successful: 1,
			Errors: map[string]string{"node1": "request timeout"},
		})
		Expect(kind).To(Equal(corebase.KindTimeout))
		Expect(subs).To(HaveLen(1))
	})
})
