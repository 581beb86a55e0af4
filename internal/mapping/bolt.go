package mapping

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"placeholder-anonymizer/internal/logger"
)

// Bucket layout:
//
//	entity_types/              first-seen order of the types
//	  <uint32 position> = <entity type>
//	entity_mapping/            root
//	  <uint32 position>/       one nested bucket per type
//	    <uint32 index> = <uvarint len(value)><value><placeholder>
//
// Keys are big-endian integers, so bbolt's byte-order iteration is
// insertion order. Values and type names are never used as keys: bbolt
// rejects empty keys and keys over bolt.MaxKeySize.
const (
	boltRootBucket  = DocumentKey
	boltOrderBucket = "entity_types"
	boltOpenTimeout = 2 * time.Second
)

// boltFile stores the mapping in an embedded bbolt database.
type boltFile struct {
	path string
	log  *logger.Logger
}

func (f *boltFile) Path() string { return f.path }

func (f *boltFile) Load() (*Store, error) {
	// bolt.Open creates missing files; a missing mapping is an error here.
	if _, err := os.Stat(f.path); err != nil {
		return nil, fmt.Errorf("read mapping database: %w", err)
	}
	db, err := bolt.Open(f.path, 0o600, &bolt.Options{ReadOnly: true, Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("open mapping database %q: %w", f.path, err)
	}
	defer db.Close() //nolint:errcheck // read-only handle

	s := NewStore()
	err = db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(boltRootBucket))
		order := tx.Bucket([]byte(boltOrderBucket))
		if root == nil || order == nil {
			return ErrMissingEntityMapping
		}
		return order.ForEach(func(pos, name []byte) error {
			entityType := string(name)
			s.ensureType(entityType)
			b := root.Bucket(pos)
			if b == nil {
				return nil
			}
			return b.ForEach(func(_, v []byte) error {
				value, token, err := decodeBoltEntry(v)
				if err != nil {
					return fmt.Errorf("entity type %q: %w", entityType, err)
				}
				s.put(entityType, value, token)
				return nil
			})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", f.path, err)
	}
	f.log.Debugf("mapping_load", "loaded %d entries (%d types) from %s", s.Len(), len(s.Types()), f.path)
	return s, nil
}

// Save replaces the stored mapping with s in a single transaction.
func (f *boltFile) Save(s *Store) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create mapping directory: %w", err)
	}
	db, err := bolt.Open(f.path, 0o600, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return fmt.Errorf("open mapping database %q: %w", f.path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{boltRootBucket, boltOrderBucket} {
			if tx.Bucket([]byte(name)) != nil {
				if err := tx.DeleteBucket([]byte(name)); err != nil {
					return err
				}
			}
		}
		root, err := tx.CreateBucket([]byte(boltRootBucket))
		if err != nil {
			return err
		}
		order, err := tx.CreateBucket([]byte(boltOrderBucket))
		if err != nil {
			return err
		}
		for i, t := range s.Types() {
			pos := boltKey(i)
			if err := order.Put(pos, []byte(t)); err != nil {
				return fmt.Errorf("entity type %q: %w", t, err)
			}
			b, err := root.CreateBucket(pos)
			if err != nil {
				return fmt.Errorf("entity type %q: %w", t, err)
			}
			for j, e := range s.Entries(t) {
				if err := b.Put(boltKey(j), encodeBoltEntry(e)); err != nil {
					return fmt.Errorf("entity type %q: %w", t, err)
				}
			}
		}
		return nil
	})
	if cerr := db.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("save %s: %w", f.path, err)
	}
	f.log.Debugf("mapping_save", "wrote %d entries (%d types) to %s", s.Len(), len(s.Types()), f.path)
	return nil
}

func boltKey(i int) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], uint32(i))
	return k[:]
}

func encodeBoltEntry(e Entry) []byte {
	buf := make([]byte, binary.MaxVarintLen64, binary.MaxVarintLen64+len(e.Value)+len(e.Placeholder))
	n := binary.PutUvarint(buf, uint64(len(e.Value)))
	buf = append(buf[:n], e.Value...)
	return append(buf, e.Placeholder...)
}

func decodeBoltEntry(v []byte) (value, token string, err error) {
	n, size := binary.Uvarint(v)
	if size <= 0 || n > uint64(len(v)-size) {
		return "", "", fmt.Errorf("%w: corrupt bbolt entry", ErrMalformedMapping)
	}
	rest := v[size:]
	return string(rest[:n]), string(rest[n:]), nil
}
