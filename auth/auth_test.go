package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth Suite")
}

func signToken(exp time.Time) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	})
	signed, _ := token.SignedString([]byte("test-secret"))
	return signed
}

var _ = Describe("StaticAuthenticator", func() {
	It("returns the configured credentials for any service/endpoint", func() {
		a := StaticAuthenticator{Username: "u", Password: "p"}
		creds, err := a.Credentials(context.Background(), "kv", "node1")
		Expect(err).NotTo(HaveOccurred())
		Expect(creds.Username).To(Equal("u"))
		Expect(a.SupportsTLS()).To(BeFalse())
	})
})

var _ = Describe("JWTAuthenticator", func() {
	It("mints a token once and reuses it while still fresh", func() {
		calls := 0
		a := &JWTAuthenticator{Source: func(context.Context) (string, error) {
			calls++
			return signToken(time.Now().Add(time.Hour)), nil
		}}

		_, err := a.Credentials(context.Background(), "query", "node1")
		Expect(err).NotTo(HaveOccurred())
		_, err = a.Credentials(context.Background(), "query", "node1")
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(1))
	})

	It("re-mints once the cached token is near expiry", func() {
		calls := 0
		a := &JWTAuthenticator{
			RefreshBefore: time.Hour,
			Source: func(context.Context) (string, error) {
				calls++
				return signToken(time.Now().Add(time.Minute)), nil
			},
		}

		_, err := a.Credentials(context.Background(), "query", "node1")
		Expect(err).NotTo(HaveOccurred())
		_, err = a.Credentials(context.Background(), "query", "node1")
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(2))
	})
})
