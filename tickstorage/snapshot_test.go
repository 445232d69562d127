package tickstorage

import (
	"os"
	"sync"
	"testing"

	"github.com/nodecore/ledgercore/hostapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFileStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFileStore() *memFileStore {
	return &memFileStore{files: make(map[string][]byte)}
}

func (m *memFileStore) Save(dir, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.files[dir+"/"+name] = cp
	return nil
}

func (m *memFileStore) Load(dir, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[dir+"/"+name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

// TestSnapshotRoundTrip is spec §8's round-trip property: save at tick
// T, reload into a fresh TickStorage, and every finalized transaction
// comes back byte-identical.
func TestSnapshotRoundTrip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	s := New()
	s.BeginEpoch(1, 1000)

	hasher := hostapi.DefaultHasher()
	digests := make([]hostapi.Digest, 0, 3)
	for i := 0; i < 3; i++ {
		tx := makeTx(1005, int64(i))
		encoded := make([]byte, tx.TotalSize())
		_, err := tx.Encode(encoded)
		require.NoError(err)
		digest := hasher.Hash(encoded)
		digests = append(digests, digest)

		_, err = s.FinalizeTransaction(tx, digest)
		require.NoError(err)
	}

	fs := newMemFileStore()
	_, err := s.Save(fs, "snap", 1006)
	require.NoError(err)

	reloaded := New()
	reloaded.BeginEpoch(1, 1000)
	require.NoError(reloaded.TryLoadFromFile(fs, hasher, "snap"))

	assert.Equal(3, reloaded.Arena().TxCountForTick(1005))
	for i, digest := range digests {
		tx, ok := reloaded.FindTransactionByDigest(digest)
		require.True(ok, "digest %d not found after reload", i)
		assert.Equal(int64(i), tx.Amount)
	}
	assert.NoError(reloaded.CheckInvariants())
}
