package compressor

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestCompressor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Compressor Suite")
}

var _ = Describe("LZ4Compressor", func() {
	It("round trips a document value", func() {
		c := LZ4Compressor{}
		original := []byte(`{"id":1,"name":"round trip me, round trip me, round trip me"}`)

		compressed, err := c.Compress(original)
		Expect(err).NotTo(HaveOccurred())

		decompressed, err := c.Decompress(compressed)
		Expect(err).NotTo(HaveOccurred())
		Expect(decompressed).To(Equal(original))
	})

	It("reports its codec name", func() {
		Expect(LZ4Compressor{}.Name()).To(Equal("lz4"))
	})
})
