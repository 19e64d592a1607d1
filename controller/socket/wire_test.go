package socket

import (
	"bytes"
	"encoding/binary"

	"github.com/dogmatiq/tandem/controller"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("func readFrame()", func() {
	It("reads a frame written by writeFrame()", func() {
		var buf bytes.Buffer

		err := writeFrame(&buf, binary.BigEndian, controller.Tag(-7), []byte("<data>"))
		Expect(err).ShouldNot(HaveOccurred())

		tag, data, err := readFrame(&buf, binary.BigEndian)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(tag).To(Equal(controller.Tag(-7)))
		Expect(data).To(Equal([]byte("<data>")))
	})

	It("returns an error if the payload length exceeds the limit", func() {
		var header [frameHeaderSize]byte
		binary.LittleEndian.PutUint32(header[0:], 10)
		binary.LittleEndian.PutUint32(header[4:], maxPayloadSize+1)

		_, _, err := readFrame(bytes.NewReader(header[:]), binary.LittleEndian)
		Expect(err).To(MatchError(ContainSubstring("the limit is")))
	})

	It("returns an error if the payload is truncated", func() {
		var header [frameHeaderSize]byte
		binary.LittleEndian.PutUint32(header[0:], 10)
		binary.LittleEndian.PutUint32(header[4:], 100)

		_, _, err := readFrame(bytes.NewReader(header[:]), binary.LittleEndian)
		Expect(err).To(HaveOccurred())
	})
})
