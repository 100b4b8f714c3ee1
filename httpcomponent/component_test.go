package httpcomponent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/couchbaselabs/gocbcorex/corebase"
)

func TestHTTPComponent(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "HTTPComponent Suite")
}

type staticAuthn struct {
	user, pass string
}

func (a staticAuthn) Credentials(context.Context, string, string) (corebase.UserPassPair, error) {
	return corebase.UserPassPair{Username: a.user, Password: a.pass}, nil
}
func (staticAuthn) Certificate(context.Context, string) (*corebase.ClientCertificate, error) {
	return nil, nil
}
func (staticAuthn) SupportsTLS() bool { return false }

var _ = Describe("Component", func() {
	It("returns an error when no endpoints are registered", func() {
		c := NewComponent(ServiceQuery, staticAuthn{"u", "p"})
		_, err := c.Orchestrate(context.Background(), ReqParams{Method: "GET", Path: "/"})
		Expect(err).To(HaveOccurred())
	})

	It("dispatches to a registered endpoint and attaches basic auth", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Header.Get("Authorization")).NotTo(BeEmpty())
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		}))
		defer srv.Close()

		c := NewComponent(ServiceQuery, staticAuthn{"u", "p"})
		c.UpdateEndpoints(map[string]string{"n1": srv.URL})

		resp, err := c.Orchestrate(context.Background(), ReqParams{Method: "GET", Path: "/"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(resp.Body)).To(Equal("ok"))
		Expect(resp.Endpoint).To(Equal("n1"))
	})

	It("honors an endpoint hint over round robin", func() {
		srv1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("one"))
		}))
		defer srv1.Close()
		srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("two"))
		}))
		defer srv2.Close()

		c := NewComponent(ServiceQuery, nil)
		c.UpdateEndpoints(map[string]string{"n1": srv1.URL, "n2": srv2.URL})

		resp, err := c.Orchestrate(context.Background(), ReqParams{Method: "GET", Path: "/", Endpoint: "n2"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Endpoint).To(Equal("n2"))
		Expect(string(resp.Body)).To(Equal("two"))
	})

	It("sends an OBO impersonation header for an external-domain identity", func() {
		var gotHeader string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotHeader = r.Header.Get("cb-on-behalf-of")
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		c := NewComponent(ServiceQuery, staticAuthn{"u", "p"})
		c.UpdateEndpoints(map[string]string{"n1": srv.URL})

		_, err := c.Orchestrate(context.Background(), ReqParams{
			Method:     "GET",
			Path:       "/",
			OnBehalfOf: &corebase.OnBehalfOf{Username: "alice", Domain: "external"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(gotHeader).To(Equal("alice:external"))
	})
})
