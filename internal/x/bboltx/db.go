// Package bboltx contains helpers for BoltDB transactions that report errors
// by panicking with a PanicSentinel, which is recovered at the API boundary.
package bboltx

import (
	"context"
	"os"

	"github.com/dogmatiq/linger"
	"go.etcd.io/bbolt"
)

// Open opens the database at path, creating it if it does not exist.
//
// If mode is zero, 0600 is used. Opening waits for the file lock until the
// deadline of ctx, or opts.Timeout if that is sooner.
func Open(
	ctx context.Context,
	path string,
	mode os.FileMode,
	opts *bbolt.Options,
) (*bbolt.DB, error) {
	if mode == 0 {
		mode = 0600
	}

	// A non-positive timeout in the options means "wait forever", so an
	// expired context must be detected here.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if timeout, ok := linger.FromContextDeadline(ctx); ok {
		clone := bbolt.Options{}
		if opts != nil {
			clone = *opts
		} else {
			clone = *bbolt.DefaultOptions
		}

		if clone.Timeout == 0 || clone.Timeout > timeout {
			clone.Timeout = timeout
		}

		opts = &clone
	}

	db, err := bbolt.Open(path, mode, opts)
	if err == bbolt.ErrTimeout {
		return nil, context.DeadlineExceeded
	}

	return db, err
}
