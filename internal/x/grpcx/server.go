// Package grpcx contains helpers for running gRPC servers and reporting gRPC
// errors.
package grpcx

import (
	"context"
	"net"

	"google.golang.org/grpc"
)

// Serve serves s on lis until ctx is canceled.
//
// s is stopped when ctx is canceled, the caller must not stop it. A nil error
// is never returned; if s stops cleanly the result is ctx.Err().
func Serve(
	ctx context.Context,
	lis net.Listener,
	s *grpc.Server,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, s.Stop)
	defer stop()

	if err := s.Serve(lis); err != nil {
		return err
	}

	<-ctx.Done()
	return ctx.Err()
}
