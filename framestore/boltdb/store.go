// Package boltdb provides a framestore.Store backed by a BoltDB database.
package boltdb

import (
	"context"
	"encoding/binary"
	"errors"
	"reflect"
	"sort"
	"time"

	"github.com/dogmatiq/marshalkit"
	"github.com/dogmatiq/marshalkit/codec"
	"github.com/dogmatiq/marshalkit/codec/json"
	"github.com/dogmatiq/tandem/framestore"
	"github.com/dogmatiq/tandem/internal/x/bboltx"
	"go.etcd.io/bbolt"
)

var (
	topBucket       = []byte("frames")
	mediaTypeKey    = []byte("media-type")
	dataKey         = []byte("data")
	capturedAtKey   = []byte("captured-at")
	errUnknownFrame = errors.New("stored value is not a frame")
)

// DefaultMarshaler is the default marshaler used to encode frames.
//
// It is overridden by the WithMarshaler() option.
var DefaultMarshaler marshalkit.ValueMarshaler

func init() {
	m, err := codec.NewMarshaler(
		[]reflect.Type{
			reflect.TypeOf(framestore.Frame{}),
		},
		[]codec.Codec{
			&json.Codec{},
		},
	)
	if err != nil {
		panic(err)
	}

	DefaultMarshaler = m
}

// Option configures the behavior of a store.
type Option func(*Store)

// WithMarshaler returns an option that sets the marshaler used to encode
// frames.
func WithMarshaler(m marshalkit.ValueMarshaler) Option {
	return func(s *Store) {
		s.marshaler = m
	}
}

// Store is a framestore.Store that keeps each frame in its own bucket.
type Store struct {
	db        *bbolt.DB
	marshaler marshalkit.ValueMarshaler
}

var _ framestore.Store = (*Store)(nil)

// New returns a store that uses db.
func New(db *bbolt.DB, opts ...Option) *Store {
	s := &Store{
		db:        db,
		marshaler: DefaultMarshaler,
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// Save adds f to the store, replacing any frame with the same ID.
func (s *Store) Save(ctx context.Context, f framestore.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := s.marshaler.Marshal(f)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) (err error) {
		defer bboltx.Recover(&err)

		top := bboltx.CreateBucketIfNotExists(tx, topBucket)
		bboltx.DeleteBucket(top, []byte(f.ID))

		b := bboltx.CreateBucketIfNotExists(top, []byte(f.ID))
		bboltx.Put(b, mediaTypeKey, []byte(p.MediaType))
		bboltx.Put(b, dataKey, p.Data)
		bboltx.Put(b, capturedAtKey, marshalTime(f.CapturedAt))

		return nil
	})
}

// Load returns the frame with the given ID.
func (s *Store) Load(ctx context.Context, id string) (framestore.Frame, bool, error) {
	if err := ctx.Err(); err != nil {
		return framestore.Frame{}, false, err
	}

	var p marshalkit.Packet

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := bboltx.Bucket(tx, topBucket, []byte(id))
		if b == nil {
			return nil
		}

		// Values are only valid for the life of the transaction.
		p.MediaType = string(b.Get(mediaTypeKey))
		p.Data = append([]byte(nil), b.Get(dataKey)...)

		return nil
	})
	if err != nil || p.MediaType == "" {
		return framestore.Frame{}, false, err
	}

	v, err := s.marshaler.Unmarshal(p)
	if err != nil {
		return framestore.Frame{}, false, err
	}

	f, ok := v.(framestore.Frame)
	if !ok {
		return framestore.Frame{}, false, errUnknownFrame
	}

	return f, true, nil
}

// List returns the IDs of the frames in the store, in the order they were
// captured.
//
// Frames captured at the same time are ordered by ID.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type entry struct {
		id         string
		capturedAt int64
	}

	var entries []entry

	err := s.db.View(func(tx *bbolt.Tx) error {
		top := bboltx.Bucket(tx, topBucket)
		if top == nil {
			return nil
		}

		return top.ForEach(func(k, _ []byte) error {
			if b := top.Bucket(k); b != nil {
				entries = append(entries, entry{
					string(k),
					unmarshalTime(b.Get(capturedAtKey)),
				})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// ForEach() visits the IDs in key order, which the stable sort retains
	// for equal capture times.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].capturedAt < entries[j].capturedAt
	})

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}

	return ids, nil
}

// Delete removes the frame with the given ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) (err error) {
		defer bboltx.Recover(&err)

		if top := bboltx.Bucket(tx, topBucket); top != nil {
			bboltx.DeleteBucket(top, []byte(id))
		}

		return nil
	})
}

// marshalTime returns the binary representation of t, as a big-endian count
// of nanoseconds since the Unix epoch.
func marshalTime(t time.Time) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t.UnixNano()))
	return buf[:]
}

// unmarshalTime parses data produced by marshalTime(). It returns zero if
// data is not a valid time.
func unmarshalTime(data []byte) int64 {
	if len(data) != 8 {
		return 0
	}

	return int64(binary.BigEndian.Uint64(data))
}
