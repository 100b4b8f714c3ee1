package queryx

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/couchbaselabs/gocbcorex/corebase"
)

func TestQueryx(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Queryx Suite")
}

var _ = Describe("ParseErrorKind", func() {
	It("classifies index-not-found by code", func() {
		Expect(ParseErrorKind(12003, "")).To(Equal(corebase.KindIndexNotFound))
	})

	It("classifies the index-exists code 4300 ahead of the planning range", func() {
		Expect(ParseErrorKind(4300, "")).To(Equal(corebase.KindIndexExists))
	})

	It("falls back to the message for an unrecognized code", func() {
		Expect(ParseErrorKind(99999, "Index already exists")).To(Equal(corebase.KindIndexExists))
	})
})

var _ = Describe("BuildRequestBody", func() {
	It("folds named args into $-prefixed top-level fields", func() {
		body, err := BuildRequestBody(Options{
			Statement: "SELECT 1",
			NamedArgs: map[string]interface{}{"name": "bob"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring(`"$name":"bob"`))
		Expect(string(body)).To(ContainSubstring(`"statement":"SELECT 1"`))
	})
})
