package mlog_test

import (
	"strings"

	. "github.com/dogmatiq/tandem/internal/mlog"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type IconWithLabel", func() {
	Describe("func WriteTo()", func() {
		It("writes the icon and the label separated by a space", func() {
			var w strings.Builder

			n, err := TagIcon.WithLabel("20").WriteTo(&w)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(w.String()).To(Equal("§ 20"))
			Expect(n).To(BeNumerically("==", len("§ 20")))
		})

		It("renders an empty label as a hyphen", func() {
			var w strings.Builder

			_, err := ProcessIcon.WithLabel("").WriteTo(&w)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(w.String()).To(Equal("# -"))
		})
	})
})
