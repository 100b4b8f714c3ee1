package kvclientpool

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/couchbaselabs/gocbcorex/memdx"
)

func TestKvClientPool(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "KvClientPool Suite")
}

// newTestPool builds a ClientPool with no background connect loop, so slot
// state can be driven directly from the test.
func newTestPool(n int) *ClientPool {
	p := &ClientPool{slots: make([]*slot, n)}
	for i := range p.slots {
		p.slots[i] = &slot{}
	}
	empty := make([]*memdx.Client, 0)
	p.fast.Store(&empty)
	return p
}

var _ = Describe("ClientPool", func() {
	It("reports no client available when every slot is empty", func() {
		p := newTestPool(2)
		_, err := p.GetClient()
		Expect(err).To(HaveOccurred())
		Expect(p.NumConnected()).To(Equal(0))
	})

	It("round robins over connected slots only", func() {
		p := newTestPool(3)
		a := &memdx.Client{}
		b := &memdx.Client{}
		p.slots[0].client = a
		p.slots[2].client = b
		p.refreshFast()

		Expect(p.NumConnected()).To(Equal(2))

		seen := map[*memdx.Client]bool{}
		for i := 0; i < 10; i++ {
			c, err := p.GetClient()
			Expect(err).NotTo(HaveOccurred())
			seen[c] = true
		}
		Expect(seen).To(HaveLen(2))
	})

	It("drops a slot from the fast snapshot once it is cleared", func() {
		p := newTestPool(2)
		p.slots[0].client = &memdx.Client{}
		p.refreshFast()
		Expect(p.NumConnected()).To(Equal(1))

		p.slots[0].client = nil
		p.refreshFast()
		Expect(p.NumConnected()).To(Equal(0))
	})
})
