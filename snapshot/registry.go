package snapshot

import (
	"encoding/binary"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/database/prefixdb"
	"github.com/ava-labs/avalanchego/database/versiondb"
)

var registryPrefix = []byte("snapshot-registry")

// Registry tracks which epochs currently have a valid, loadable
// snapshot on disk and the metadata digest written for each, the same
// prefixdb-over-versiondb KV composition the teacher uses for block and
// singleton state. It does not hold the snapshot bytes themselves —
// those are the bit-exact files spec §6 describes — only the small
// bookkeeping of which epochs are currently valid.
type Registry struct {
	baseDB *versiondb.Database
	db     database.Database
}

// NewRegistry wraps db (an on-disk or in-memory avalanchego database)
// with the snapshot registry's key prefix.
func NewRegistry(db database.Database) *Registry {
	baseDB := versiondb.New(db)
	return &Registry{
		baseDB: baseDB,
		db:     prefixdb.New(registryPrefix, baseDB),
	}
}

// NewMemoryRegistry returns a Registry backed by an in-memory database,
// for tests and for nodes that don't persist the registry across
// restarts.
func NewMemoryRegistry() *Registry {
	return NewRegistry(memdb.New())
}

func epochKey(epoch uint32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, epoch)
	return key
}

// MarkValid records epoch as having a successfully written snapshot,
// along with the metadata digest (the hash of the written
// snapshotMetadata.EEE bytes) so a caller can detect a stale or
// corrupted on-disk blob without re-reading it.
func (r *Registry) MarkValid(epoch uint32, metadataDigest [32]byte) error {
	if err := r.db.Put(epochKey(epoch), metadataDigest[:]); err != nil {
		return err
	}
	return r.baseDB.Commit()
}

// Invalidate removes epoch from the registry, mirroring spec §6's
// "writing an all-zero metadata blob marks the snapshot as unusable".
func (r *Registry) Invalidate(epoch uint32) error {
	if err := r.db.Delete(epochKey(epoch)); err != nil {
		return err
	}
	return r.baseDB.Commit()
}

// IsValid reports whether epoch has a registered snapshot and returns
// its recorded metadata digest.
func (r *Registry) IsValid(epoch uint32) (digest [32]byte, ok bool, err error) {
	has, err := r.db.Has(epochKey(epoch))
	if err != nil || !has {
		return digest, false, err
	}
	val, err := r.db.Get(epochKey(epoch))
	if err != nil {
		return digest, false, err
	}
	copy(digest[:], val)
	return digest, true, nil
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.baseDB.Close()
}
