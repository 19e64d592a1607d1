package grpcx

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Errorf returns a gRPC status error with the given code.
func Errorf(code codes.Code, f string, v ...interface{}) error {
	return status.Errorf(code, f, v...)
}

// IsShutdown returns true if err is a status error caused by either end of
// the call shutting down.
func IsShutdown(err error) bool {
	switch status.Code(err) {
	case codes.Canceled, codes.Unavailable:
		return true
	default:
		return false
	}
}
