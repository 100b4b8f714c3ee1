package rowstream

import (
	"strings"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestRowStream(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "RowStream Suite")
}

func collectRows(s *Scanner) ([]string, error) {
	var rows []string
	for {
		row, err := s.NextRow()
		if err == ErrNoMoreRows {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, string(row))
	}
}

var _ = Describe("Scanner", func() {
	It("streams two query rows and reconstructs the surrounding metadata", func() {
		body := `{
			"requestID": "5be66457-d623-45e9-a4ae-9da888ee53bb",
			"signature": {"*":"*"},
			"results": [
				{"id":10,"name":"40-Mile Air"},
				{"id":10123,"name":"Texas Wings"}
			],
			"status": "success",
			"metrics": {"resultCount": 2}
		}`

		s := NewScanner(strings.NewReader(body), "results")
		rows, err := collectRows(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(Equal([]string{
			`{"id":10,"name":"40-Mile Air"}`,
			`{"id":10123,"name":"Texas Wings"}`,
		}))

		meta, err := s.Metadata()
		Expect(err).NotTo(HaveOccurred())
		Expect(meta["requestID"]).To(Equal("5be66457-d623-45e9-a4ae-9da888ee53bb"))
		Expect(meta["status"]).To(Equal("success"))
	})

	It("handles an empty rows array", func() {
		body := `{"requestID":"e245a21e","results":[],"status":"success"}`

		s := NewScanner(strings.NewReader(body), "results")
		rows, err := collectRows(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(BeEmpty())

		meta, err := s.Metadata()
		Expect(err).NotTo(HaveOccurred())
		Expect(meta["status"]).To(Equal("success"))
	})

	It("reconstructs metadata for a fatal response with no result rows", func() {
		body := `{
			"requestID": "848c8bc3",
			"errors": [{"code":1050,"msg":"No statement or prepared value"}],
			"status": "fatal"
		}`

		s := NewScanner(strings.NewReader(body), "results")
		rows, err := collectRows(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(BeEmpty())

		meta, err := s.Metadata()
		Expect(err).NotTo(HaveOccurred())
		Expect(meta["status"]).To(Equal("fatal"))
		errs, ok := meta["errors"].([]interface{})
		Expect(ok).To(BeTrue())
		Expect(errs).To(HaveLen(1))
	})

	It("streams FTS hits under a differently-named rows field", func() {
		body := `{"status":{"total":1},"hits":[{"id":"doc-1","score":0.5}],"total_hits":1}`

		s := NewScanner(strings.NewReader(body), "hits")
		rows, err := collectRows(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(Equal([]string{`{"id":"doc-1","score":0.5}`}))

		meta, err := s.Metadata()
		Expect(err).NotTo(HaveOccurred())
		Expect(meta["total_hits"]).To(BeNumerically("==", 1))
	})
})
