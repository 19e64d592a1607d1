package boltdb_test

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/dogmatiq/marshalkit"
	"github.com/dogmatiq/tandem/framestore"
	. "github.com/dogmatiq/tandem/framestore/boltdb"
	"github.com/dogmatiq/tandem/internal/x/bboltx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.etcd.io/bbolt"
)

// undecodable is a marshaler that can not unmarshal any value.
type undecodable struct {
	marshalkit.ValueMarshaler
}

func (undecodable) Unmarshal(marshalkit.Packet) (any, error) {
	return nil, errors.New("<undecodable>")
}

var _ = Describe("type Store", func() {
	var (
		ctx   context.Context
		db    *bbolt.DB
		store *Store
		frame framestore.Frame
	)

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		DeferCleanup(cancel)

		var err error
		db, err = bboltx.Open(
			ctx,
			filepath.Join(GinkgoT().TempDir(), "frames.boltdb"),
			0,
			nil,
		)
		Expect(err).ShouldNot(HaveOccurred())
		DeferCleanup(db.Close)

		store = New(db)

		frame = framestore.Frame{
			ID:         "<frame>",
			CapturedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Width:      2,
			Height:     1,
			FloatColor: []float32{1, 0, 0, 1, 0, 1, 0, 1},
			Depth:      []float32{0.5, 0.25},
		}
	})

	Describe("func Save()", func() {
		It("stores the frame", func() {
			Expect(store.Save(ctx, frame)).To(Succeed())

			f, ok, err := store.Load(ctx, "<frame>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(f).To(Equal(frame))
		})

		It("replaces an existing frame with the same ID", func() {
			Expect(store.Save(ctx, frame)).To(Succeed())

			frame.FloatColor = nil
			frame.ByteColor = []byte{255, 0, 0, 255, 0, 255, 0, 255}
			Expect(store.Save(ctx, frame)).To(Succeed())

			f, _, err := store.Load(ctx, "<frame>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(f).To(Equal(frame))
		})
	})

	Describe("func Load()", func() {
		It("returns false if the frame does not exist", func() {
			_, ok, err := store.Load(ctx, "<unknown>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("func List()", func() {
		It("returns an empty list when the store is empty", func() {
			ids, err := store.List(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ids).To(BeEmpty())
		})

		It("returns the IDs in the order the frames were captured", func() {
			later := frame
			later.ID = "<a-later>"
			later.CapturedAt = frame.CapturedAt.Add(time.Second)

			Expect(store.Save(ctx, later)).To(Succeed())
			Expect(store.Save(ctx, frame)).To(Succeed())

			ids, err := store.List(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ids).To(Equal([]string{"<frame>", "<a-later>"}))
		})

		It("orders frames captured at the same time by ID", func() {
			other := frame
			other.ID = "<a-frame>"

			Expect(store.Save(ctx, frame)).To(Succeed())
			Expect(store.Save(ctx, other)).To(Succeed())

			ids, err := store.List(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ids).To(Equal([]string{"<a-frame>", "<frame>"}))
		})

		It("does not decode the frames", func() {
			store = New(
				db,
				WithMarshaler(undecodable{DefaultMarshaler}),
			)

			later := frame
			later.ID = "<a-later>"
			later.CapturedAt = frame.CapturedAt.Add(time.Second)

			Expect(store.Save(ctx, later)).To(Succeed())
			Expect(store.Save(ctx, frame)).To(Succeed())

			_, _, err := store.Load(ctx, "<frame>")
			Expect(err).To(MatchError("<undecodable>"))

			ids, err := store.List(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ids).To(Equal([]string{"<frame>", "<a-later>"}))
		})
	})

	Describe("func Delete()", func() {
		It("removes the frame", func() {
			Expect(store.Save(ctx, frame)).To(Succeed())
			Expect(store.Delete(ctx, "<frame>")).To(Succeed())

			_, ok, err := store.Load(ctx, "<frame>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("does not return an error if the frame does not exist", func() {
			Expect(store.Delete(ctx, "<unknown>")).To(Succeed())
		})
	})
})

var _ = Describe("func Open()", func() {
	It("returns an error if the context has already ended", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := bboltx.Open(ctx, filepath.Join(GinkgoT().TempDir(), "x.boltdb"), 0, nil)
		Expect(err).To(Equal(context.Canceled))
	})
})
