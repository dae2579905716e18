package blockhook

import (
	"bytes"
	"encoding/binary"
	"time"

	bbolt "go.etcd.io/bbolt"
)

var (
	bucketExact  = []byte("exact")
	bucketSuffix = []byte("suffix")
	bucketMeta   = []byte("meta")
)

// store is the persistent rule index backed by bbolt. Exact rules are
// keyed by canonical name; suffix rules are keyed by the reversed name so
// a cursor prefix scan finds anchors from most-specific to least.
type store struct {
	db *bbolt.DB
}

// openStore opens (or creates) a Bolt database at path and ensures
// buckets exist.
func openStore(path string) (*store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketExact); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketSuffix); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &store{db: db}, nil
}

func (s *store) Close() error { return s.db.Close() }

// replaceAll rewrites both rule buckets from the given rule set in one
// transaction, so readers never observe a half-loaded index.
func (s *store) replaceAll(rules []Rule, updatedUnix int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketExact, bucketSuffix} {
			if err := tx.DeleteBucket(bucket); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		exact := tx.Bucket(bucketExact)
		suffix := tx.Bucket(bucketSuffix)
		for _, rule := range rules {
			if rule.Suffix {
				if err := suffix.Put([]byte(reverseString(rule.Name)), []byte{1}); err != nil {
					return err
				}
			} else {
				if err := exact.Put([]byte(rule.Name), []byte{1}); err != nil {
					return err
				}
			}
		}
		meta := tx.Bucket(bucketMeta)
		ubuf := make([]byte, 8)
		binary.BigEndian.PutUint64(ubuf, uint64(updatedUnix))
		return meta.Put([]byte("updated"), ubuf)
	})
}

// existsExact reports whether name has an exact rule.
func (s *store) existsExact(name string) (bool, error) {
	var present bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketExact)
		if b == nil {
			return nil
		}
		present = b.Get([]byte(name)) != nil
		return nil
	})
	return present, err
}

// matchSuffix returns the most-specific suffix rule covering name, if
// any. Anchors are probed by trimming the reversed name at dot
// boundaries, so "ads.example.com" checks "ads.example.com",
// "example.com", then "com".
func (s *store) matchSuffix(name string) (string, bool, error) {
	var matched string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSuffix)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		rp := []byte(reverseString(name))
		for len(rp) > 0 {
			k, _ := c.Seek(rp)
			if k != nil && bytes.Equal(k, rp) {
				matched = reverseString(string(k))
				return nil
			}
			idx := bytes.LastIndexByte(rp, '.')
			if idx < 0 {
				return nil
			}
			rp = rp[:idx]
		}
		return nil
	})
	return matched, matched != "", err
}

// counts returns the number of exact and suffix rules stored.
func (s *store) counts() (exact, suffix uint64) {
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketExact); b != nil {
			exact = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketSuffix); b != nil {
			suffix = uint64(b.Stats().KeyN)
		}
		return nil
	})
	return exact, suffix
}

// reverseString reverses the string bytes. The store keys suffix anchors
// by reversed name, so Bloom keys and Bolt keys must use the same
// reversal.
func reverseString(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
