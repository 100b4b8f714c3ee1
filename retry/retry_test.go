package retry

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/couchbaselabs/gocbcorex/corebase"
)

func TestRetry(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Retry Suite")
}

var _ = Describe("Orchestrate", func() {
	It("returns the result immediately on first-attempt success", func() {
		calls := 0
		result, err := Orchestrate(context.Background(), DefaultBackoff, "get", true, func(ctx context.Context) (int, error) {
			calls++
			return 42, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(42))
		Expect(calls).To(Equal(1))
	})

	It("retries a retryable error until it succeeds", func() {
		calls := 0
		strategy := ExponentialBackoff{Base: time.Millisecond, Max: 5 * time.Millisecond}
		result, err := Orchestrate(context.Background(), strategy, "get", true, func(ctx context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, corebase.New(corebase.KindTemporaryFailure, "busy", nil)
			}
			return 7, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(7))
		Expect(calls).To(Equal(3))
	})

	It("gives up immediately on a non-retryable error", func() {
		calls := 0
		_, err := Orchestrate(context.Background(), DefaultBackoff, "get", true, func(ctx context.Context) (int, error) {
			calls++
			return 0, corebase.New(corebase.KindDocumentNotFound, "missing", nil)
		})
		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(1))
	})

	It("surfaces a timeout once the context deadline passes", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()

		strategy := ExponentialBackoff{Base: time.Millisecond, Max: time.Millisecond}
		_, err := Orchestrate(ctx, strategy, "get", true, func(ctx context.Context) (int, error) {
			return 0, corebase.New(corebase.KindTemporaryFailure, "busy", nil)
		})
		Expect(err).To(HaveOccurred())
		cerr, ok := err.(*corebase.Error)
		Expect(ok).To(BeTrue())
		Expect(cerr.Kind).To(Equal(corebase.KindTimeout))
	})

	It("does not retry an ambiguous error for a non-idempotent operation", func() {
		calls := 0
		ambiguous := corebase.New(corebase.KindTemporaryFailure, "ambiguous", nil)
		ambiguous.Ambiguous = true
		_, err := Orchestrate(context.Background(), DefaultBackoff, "increment", false, func(ctx context.Context) (int, error) {
			calls++
			return 0, ambiguous
		})
		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(1))
	})

	It("retries an ambiguous error when the operation is idempotent", func() {
		calls := 0
		strategy := ExponentialBackoff{Base: time.Millisecond, Max: 5 * time.Millisecond}
		ambiguous := corebase.New(corebase.KindTemporaryFailure, "ambiguous", nil)
		ambiguous.Ambiguous = true
		_, err := Orchestrate(context.Background(), strategy, "get", true, func(ctx context.Context) (int, error) {
			calls++
			if calls < 2 {
				return 0, ambiguous
			}
			return 0, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(2))
	})
})
