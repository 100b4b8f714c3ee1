package analyticsx

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/couchbaselabs/gocbcorex/corebase"
)

func TestAnalyticsx(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Analyticsx Suite")
}

var _ = Describe("ParseErrorKind", func() {
	It("classifies a dataset-not-found code", func() {
		Expect(ParseErrorKind(23000, "")).To(Equal(corebase.KindIndexNotFound))
	})

	It("classifies a planning-range code", func() {
		Expect(ParseErrorKind(21500, "")).To(Equal(corebase.KindPlanningFailure))
	})
})

var _ = Describe("BuildRequestBody", func() {
	It("omits readonly when unset", func() {
		body, err := BuildRequestBody(Options{Statement: "SELECT 1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).NotTo(ContainSubstring("readonly"))
	})
})
