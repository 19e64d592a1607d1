package grpcx_test

import (
	"context"
	"errors"
	"net"
	"time"

	. "github.com/dogmatiq/tandem/internal/x/grpcx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ = Describe("func Errorf()", func() {
	It("returns a status error with the given code and message", func() {
		err := Errorf(codes.InvalidArgument, "process %d is unknown", 7)

		s, ok := status.FromError(err)
		Expect(ok).To(BeTrue())
		Expect(s.Code()).To(Equal(codes.InvalidArgument))
		Expect(s.Message()).To(Equal("process 7 is unknown"))
	})
})

var _ = Describe("func IsShutdown()", func() {
	DescribeTable(
		"it classifies errors",
		func(err error, expect bool) {
			Expect(IsShutdown(err)).To(Equal(expect))
		},
		Entry("canceled", status.Error(codes.Canceled, "<canceled>"), true),
		Entry("unavailable", status.Error(codes.Unavailable, "<unavailable>"), true),
		Entry("other code", status.Error(codes.Internal, "<internal>"), false),
		Entry("non-status error", errors.New("<error>"), false),
		Entry("nil", nil, false),
	)
})

var _ = Describe("func Serve()", func() {
	It("stops the server when the context is canceled", func() {
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).ShouldNot(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err = Serve(ctx, lis, grpc.NewServer())
		Expect(err).To(Equal(context.DeadlineExceeded))
	})
})
