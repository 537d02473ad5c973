package store

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowfork/flexible-eth/beacon"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSyncProgressRoundTrip(t *testing.T) {
	st := newTestStore(t)

	_, err := st.SyncProgress()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.SetSyncProgress(1234))
	progress, err := st.SyncProgress()
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), progress)
}

func TestSlotAndEpochMarkers(t *testing.T) {
	st := newTestStore(t)

	synched, err := st.IsSlotSynched(7)
	require.NoError(t, err)
	assert.False(t, synched)

	require.NoError(t, st.MarkSlotSynched(7))
	synched, err = st.IsSlotSynched(7)
	require.NoError(t, err)
	assert.True(t, synched)

	synched, err = st.IsEpochStateSynched(3)
	require.NoError(t, err)
	assert.False(t, synched)

	require.NoError(t, st.MarkEpochStateSynched(3))
	synched, err = st.IsEpochStateSynched(3)
	require.NoError(t, err)
	assert.True(t, synched)
}

func TestRootRoundTrips(t *testing.T) {
	st := newTestStore(t)
	root := common.HexToHash("0xaabb")

	require.NoError(t, st.PutBlockRootBySlot(96, root))
	got, err := st.BlockRootBySlot(96)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	_, err = st.BlockRootBySlot(97)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.PutEBBRoot(3, root))
	got, err = st.EBBRoot(3)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestBlockRoundTrip(t *testing.T) {
	st := newTestStore(t)
	root := common.HexToHash("0x01")

	blk := &beacon.Block{
		Slot:          33,
		ProposerIndex: 42,
		ParentRoot:    common.HexToHash("0x02"),
		StateRoot:     common.HexToHash("0x03"),
		Body: beacon.BlockBody{
			Attestations: []beacon.Attestation{
				{
					AggregationBits: beacon.AggregationBits{0x1b},
					Data: beacon.AttestationData{
						Slot:            32,
						Index:           0,
						BeaconBlockRoot: common.HexToHash("0x02"),
						Source:          beacon.Checkpoint{Epoch: 0, Root: common.HexToHash("0x04")},
						Target:          beacon.Checkpoint{Epoch: 1, Root: common.HexToHash("0x05")},
					},
				},
			},
		},
	}

	require.NoError(t, st.PutBlock(root, blk))
	got, err := st.BlockByRoot(root)
	require.NoError(t, err)
	assert.Equal(t, blk, got)

	_, err = st.BlockByRoot(common.HexToHash("0x99"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCommitteesRoundTrip(t *testing.T) {
	st := newTestStore(t)
	stateRoot := common.HexToHash("0x03")

	committees := []beacon.CommitteeAssignment{
		{Index: 0, Slot: 32, Validators: []uint64{1, 2, 3}},
		{Index: 1, Slot: 33, Validators: []uint64{4, 5}},
	}
	require.NoError(t, st.PutCommittees(stateRoot, committees))

	got, err := st.Committees(stateRoot)
	require.NoError(t, err)
	assert.Equal(t, committees, got)
}

func TestFinalityCheckpointsRoundTrip(t *testing.T) {
	st := newTestStore(t)
	stateRoot := common.HexToHash("0x03")

	checkpoints := beacon.FinalityCheckpoints{
		PreviousJustified: beacon.Checkpoint{Epoch: 1, Root: common.HexToHash("0x01")},
		CurrentJustified:  beacon.Checkpoint{Epoch: 2, Root: common.HexToHash("0x02")},
		Finalized:         beacon.Checkpoint{Epoch: 1, Root: common.HexToHash("0x01")},
	}
	require.NoError(t, st.PutFinalityCheckpoints(stateRoot, checkpoints))

	got, err := st.FinalityCheckpoints(stateRoot)
	require.NoError(t, err)
	assert.Equal(t, checkpoints, got)
}

func TestChainRoundTrip(t *testing.T) {
	st := newTestStore(t)
	root := common.HexToHash("0x02")

	chain := []beacon.Root{common.HexToHash("0x01"), root}
	require.NoError(t, st.PutChain(root, chain))

	got, err := st.Chain(root)
	require.NoError(t, err)
	assert.Equal(t, chain, got)
}

func TestOpenReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	rw, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, rw.MarkSlotSynched(5))
	require.NoError(t, rw.Close())

	ro, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer ro.Close()

	synched, err := ro.IsSlotSynched(5)
	require.NoError(t, err)
	assert.True(t, synched)
}
