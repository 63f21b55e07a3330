package blobstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*BlobStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.gol")
	guid := [16]byte{1, 2, 3, 4}
	bs, err := Create(path, guid, WithPageSize(256))
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })
	return bs, path
}

func TestCreateAndReopen(t *testing.T) {
	bs, path := newTestStore(t)
	require.EqualValues(t, 256, bs.PageSize())

	tx, err := bs.BeginTransaction()
	require.NoError(t, err)
	tx.SetStringTableRef(7)
	require.NoError(t, tx.Commit())
	require.EqualValues(t, 7, bs.Header().StringTableBlobRef)
	require.EqualValues(t, 1, bs.Header().Revision)

	require.NoError(t, bs.Close())

	reopened, err := Open(path, ReadWrite)
	require.NoError(t, err)
	defer reopened.Close()
	require.EqualValues(t, 7, reopened.Header().StringTableBlobRef)
	require.EqualValues(t, 1, reopened.Header().Revision)
}

func TestAllocWriteReadBlob(t *testing.T) {
	bs, _ := newTestStore(t)
	bs.freeList.Free(1, 100) // seed free pages past the header page

	payload := []byte("hello, geodesk")
	page, err := bs.AllocBlob(uint32(len(payload)), uint32(KindTile))
	require.NoError(t, err)
	require.NoError(t, bs.WriteBlobPayload(page, payload))
	require.NoError(t, bs.remap())

	got, flags, err := bs.ReadBlob(page)
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.EqualValues(t, KindTile, flags)
}

func TestAllocGrowsFileWhenFreeListEmpty(t *testing.T) {
	bs, _ := newTestStore(t)
	page, err := bs.AllocBlob(10, 0)
	require.NoError(t, err)
	require.Equal(t, PageNum(1), page) // page 0 is the header page

	page2, err := bs.AllocBlob(10, 0)
	require.NoError(t, err)
	require.Equal(t, PageNum(2), page2)
}

func TestFreeBlobReturnsPagesToFreeList(t *testing.T) {
	bs, _ := newTestStore(t)
	page, err := bs.AllocBlob(10, 0)
	require.NoError(t, err)
	require.NoError(t, bs.FreeBlob(page))
	require.EqualValues(t, 1, bs.freeList.TotalFreePages())
}

// TestRecoveryUndoesUnappliedCommit simulates a crash after Seal but
// before Apply: a sealed journal exists, but the header on disk is still
// the pre-transaction version. Recovery must leave the pre-transaction
// header in place (spec §8 scenario S5, "commit-then-crash-before-apply").
func TestRecoveryUndoesUnappliedCommit(t *testing.T) {
	bs, path := newTestStore(t)
	preImage := bs.header.Serialize()
	require.NoError(t, bs.Close())

	bs2, err := Open(path, ReadWrite)
	require.NoError(t, err)
	j, err := openJournal(path, 1)
	require.NoError(t, err)
	require.NoError(t, j.AddBlock(preImage))
	require.NoError(t, j.Seal())
	require.NoError(t, j.Close())
	require.NoError(t, bs2.Close())

	bs3, err := Open(path, ReadWrite)
	require.NoError(t, err)
	defer bs3.Close()
	require.Equal(t, preImage, bs3.header.Serialize())
}

func TestOpenReadOnlyDoesNotLock(t *testing.T) {
	_, path := newTestStore(t)
	ro, err := Open(path, ReadOnly)
	require.NoError(t, err)
	defer ro.Close()
	require.EqualValues(t, 256, ro.PageSize())
}
