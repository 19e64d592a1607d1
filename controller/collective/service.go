package collective

import (
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// exchangeServer is the server side of the Exchange service.
type exchangeServer interface {
	// Deliver receives the frames sent by one peer.
	//
	// The first frame is a hello that carries the rank of the sending
	// process.
	Deliver(deliverServer) error
}

// deliverServer is the server side of a Deliver stream.
type deliverServer interface {
	Recv() (*wrapperspb.BytesValue, error)
	SendAndClose(*emptypb.Empty) error
	grpc.ServerStream
}

type deliverServerStream struct {
	grpc.ServerStream
}

func (s *deliverServerStream) Recv() (*wrapperspb.BytesValue, error) {
	m := &wrapperspb.BytesValue{}
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *deliverServerStream) SendAndClose(m *emptypb.Empty) error {
	return s.ServerStream.SendMsg(m)
}

const deliverMethod = "/tandem.collective.v1.Exchange/Deliver"

var exchangeServiceDesc = grpc.ServiceDesc{
	ServiceName: "tandem.collective.v1.Exchange",
	HandlerType: (*exchangeServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName: "Deliver",
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				return srv.(exchangeServer).Deliver(&deliverServerStream{stream})
			},
			ClientStreams: true,
		},
	},
	Metadata: "tandem/collective/v1/exchange.proto",
}
