package bboltx

import "go.etcd.io/bbolt"

// BucketParent is a transaction or bucket that contains child buckets.
type BucketParent interface {
	CreateBucketIfNotExists([]byte) (*bbolt.Bucket, error)
	Bucket([]byte) *bbolt.Bucket
	DeleteBucket([]byte) error
}

var (
	_ BucketParent = (*bbolt.Tx)(nil)
	_ BucketParent = (*bbolt.Bucket)(nil)
)

// CreateBucketIfNotExists returns the bucket at the given path, creating it
// and any missing parent buckets.
func CreateBucketIfNotExists(p BucketParent, path ...[]byte) *bbolt.Bucket {
	if len(path) == 0 {
		panic("at least one path element must be provided")
	}

	var b *bbolt.Bucket

	for _, n := range path {
		var err error
		b, err = p.CreateBucketIfNotExists(n)
		Must(err)

		p = b
	}

	return b
}

// Bucket returns the bucket at the given path.
//
// It returns nil if any of the buckets in the path does not exist.
func Bucket(p BucketParent, path ...[]byte) *bbolt.Bucket {
	if len(path) == 0 {
		panic("at least one path element must be provided")
	}

	var b *bbolt.Bucket

	for _, n := range path {
		b = p.Bucket(n)
		if b == nil {
			return nil
		}

		p = b
	}

	return b
}

// Put writes a value to a bucket.
func Put(b *bbolt.Bucket, k, v []byte) {
	Must(b.Put(k, v))
}

// DeleteBucket removes the child bucket of p with the given name.
//
// It returns false if there is no such bucket.
func DeleteBucket(p BucketParent, name []byte) bool {
	err := p.DeleteBucket(name)
	if err == bbolt.ErrBucketNotFound {
		return false
	}

	Must(err)
	return true
}
