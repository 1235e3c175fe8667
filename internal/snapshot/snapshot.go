// Package snapshot supplies the store.Loader implementations consumed
// once at startup to seed an empty Store, and the raw bytes a master
// passes through verbatim during PSYNC. spec.md's "an empty default
// snapshot is the fixed byte sequence... master always replies with
// this default snapshot unless a real one has been loaded" describes
// two distinct representations of the same dump file: the decoded
// key/value pairs a master loads into its own keyspace at startup
// (FixedLoader / BboltLoader, mirroring original_source/app
// /storage.py's flat key→value dict with no real on-disk format), and
// the opaque bytes forwarded to replicas untouched (RawBytes).
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	kverrors "github.com/alxayo/go-kv/internal/errors"
)

// kvBucket is the single bucket BboltLoader reads string keys/values
// from.
var kvBucket = []byte("kv")

// FixedLoader is the zero-configuration default: an empty keyspace,
// matching the fixed "REDIS0011" header-only snapshot spec.md mandates
// when no real dump has been configured.
type FixedLoader struct{}

func (FixedLoader) Load() (map[string][]byte, error) {
	return map[string][]byte{}, nil
}

// BboltLoader reads an embedded bbolt database as a real snapshot
// source for dev/test seeding: dir/dbfilename resolved to a single
// file containing one bucket of string keys to string values.
type BboltLoader struct {
	Dir        string
	DBFilename string
}

// Path joins Dir and DBFilename, the same pair the CONFIG GET dir/
// dbfilename commands report.
func (l BboltLoader) Path() string {
	return filepath.Join(l.Dir, l.DBFilename)
}

func (l BboltLoader) Load() (map[string][]byte, error) {
	path := l.Path()
	if path == "" {
		return map[string][]byte{}, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[string][]byte{}, nil
	}

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, kverrors.NewReplicationError(fmt.Sprintf("open snapshot %s", path), err)
	}
	defer db.Close()

	out := make(map[string][]byte)
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(kvBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			out[string(k)] = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, kverrors.NewReplicationError(fmt.Sprintf("read snapshot %s", path), err)
	}
	return out, nil
}

// Save writes the given keyspace into a fresh bbolt database at
// dir/dbfilename, overwriting any existing file. Used by tests and by
// SAVE-style tooling; the live server never calls this on its own.
func Save(dir, dbfilename string, data map[string][]byte) error {
	path := filepath.Join(dir, dbfilename)
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return kverrors.NewReplicationError(fmt.Sprintf("create snapshot %s", path), err)
	}
	defer db.Close()

	return db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(kvBucket)
		if err != nil {
			return err
		}
		for k, v := range data {
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// RawBytes returns the literal bytes at dir/dbfilename for pass-through
// use as a PSYNC payload, or the fixed empty-snapshot header if the
// path is unset or does not exist.
func RawBytes(dir, dbfilename string) []byte {
	if dir == "" && dbfilename == "" {
		return defaultBytes
	}
	path := filepath.Join(dir, dbfilename)
	b, err := os.ReadFile(path)
	if err != nil {
		return defaultBytes
	}
	return b
}

// defaultBytes mirrors replication.defaultSnapshot so callers that only
// import this package (not internal/replication) can render the same
// fixed payload.
var defaultBytes = append([]byte("REDIS0011"), 0xFF, 0, 0, 0, 0, 0, 0, 0, 0)
