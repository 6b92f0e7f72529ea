package outbox

import (
	"testing"

	"github.com/stretchr/testify/require"

	"matchbook/domain/tradelog"
)

func openTest(t *testing.T) *Outbox {
	t.Helper()
	ob, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ob.Close() })
	return ob
}

func trade(aggressor string) tradelog.Trade {
	return tradelog.Trade{AggressorID: aggressor, RestingID: "1", Price: 100, Qty: 5}
}

func TestPutAndGet(t *testing.T) {
	ob := openTest(t)
	require.NoError(t, ob.Put(1, trade("2")))

	rec, ok, err := ob.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), rec.Seq)
	require.Equal(t, StateNew, rec.State)
	require.Zero(t, rec.Retries)
	require.Equal(t, trade("2"), rec.Trade)
}

func TestGetMissing(t *testing.T) {
	ob := openTest(t)
	_, ok, err := ob.Get(42)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTransitions(t *testing.T) {
	ob := openTest(t)
	require.NoError(t, ob.Put(1, trade("2")))

	require.NoError(t, ob.MarkSent(1))
	rec, _, err := ob.Get(1)
	require.NoError(t, err)
	require.Equal(t, StateSent, rec.State)
	require.NotZero(t, rec.LastAttempt)

	require.NoError(t, ob.MarkFailed(1))
	rec, _, err = ob.Get(1)
	require.NoError(t, err)
	require.Equal(t, StateFailed, rec.State)
	require.Equal(t, uint32(1), rec.Retries)

	require.NoError(t, ob.MarkAcked(1))
	rec, _, err = ob.Get(1)
	require.NoError(t, err)
	require.Equal(t, StateAcked, rec.State)
	require.Equal(t, uint32(1), rec.Retries, "ack does not touch the retry count")
}

func TestTransitionMissingRecord(t *testing.T) {
	ob := openTest(t)
	require.Error(t, ob.MarkSent(7))
}

func TestScanPendingVisitsNewAndFailedInOrder(t *testing.T) {
	ob := openTest(t)
	require.NoError(t, ob.Put(3, trade("c")))
	require.NoError(t, ob.Put(1, trade("a")))
	require.NoError(t, ob.Put(2, trade("b")))
	require.NoError(t, ob.MarkAcked(2))
	require.NoError(t, ob.MarkFailed(3))

	var seqs []uint64
	require.NoError(t, ob.ScanPending(func(r Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	}))
	require.Equal(t, []uint64{1, 3}, seqs)
}

func TestTruncateAckedUpTo(t *testing.T) {
	ob := openTest(t)
	for seq := uint64(1); seq <= 4; seq++ {
		require.NoError(t, ob.Put(seq, trade("2")))
	}
	require.NoError(t, ob.MarkAcked(1))
	require.NoError(t, ob.MarkAcked(2))
	require.NoError(t, ob.MarkAcked(4))

	require.NoError(t, ob.TruncateAckedUpTo(2))

	for seq, want := range map[uint64]bool{1: false, 2: false, 3: true, 4: true} {
		_, ok, err := ob.Get(seq)
		require.NoError(t, err)
		require.Equal(t, want, ok, "seq %d", seq)
	}
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ob, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, ob.Put(1, trade("2")))
	require.NoError(t, ob.Close())

	ob, err = Open(dir)
	require.NoError(t, err)
	defer ob.Close()

	rec, ok, err := ob.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, trade("2"), rec.Trade)
}
