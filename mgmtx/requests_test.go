package mgmtx

import (
	"net/http"
	"net/url"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/couchbaselabs/gocbcorex/corebase"
)

func TestMgmtx(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Mgmtx Suite")
}

var _ = Describe("ParseErrorKind", func() {
	It("classifies a 404 mentioning a scope", func() {
		Expect(ParseErrorKind(http.StatusNotFound, "Scope not found")).To(Equal(corebase.KindScopeNotFound))
	})

	It("classifies a 401 as an auth failure", func() {
		Expect(ParseErrorKind(http.StatusUnauthorized, "")).To(Equal(corebase.KindAuthenticationFailure))
	})

	It("classifies a 409 mentioning already-exists", func() {
		Expect(ParseErrorKind(http.StatusConflict, "Bucket with given name already exists")).To(Equal(corebase.KindIndexExists))
	})
})

var _ = Describe("CreateBucketRequest", func() {
	It("form-encodes the bucket settings", func() {
		body := CreateBucketRequest(BucketSettings{
			Name: "travel-sample", RAMQuotaMB: 256, NumReplicas: 1, BucketType: "membase",
		})
		v, err := url.ParseQuery(string(body))
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Get("name")).To(Equal("travel-sample"))
		Expect(v.Get("ramQuotaMB")).To(Equal("256"))
		Expect(v.Get("bucketType")).To(Equal("membase"))
	})
})
