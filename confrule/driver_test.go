package confrule

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowfork/flexible-eth/beacon"
	"github.com/snowfork/flexible-eth/store"
)

// buildCache writes a two-epoch chain into a fresh store:
//
//	slot 0  — genesis-ish block
//	slot 16 — the block later finalized
//	slot 32 — first block of epoch 1, carrying the epoch state
//	slot 33 — block attesting for the epoch-1 boundary target
//
// The epoch-1 committee has seven validators; the attestation sets three
// of them plus the sentinel bit, so quorum 0.5 confirms and 0.9 does not.
func buildCache(t *testing.T, path string) {
	t.Helper()

	st, err := store.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, st.Close()) }()

	root0 := common.HexToHash("0x0100")
	root16 := common.HexToHash("0x0116")
	root32 := common.HexToHash("0x0132")
	root33 := common.HexToHash("0x0133")
	state32 := common.HexToHash("0x0232")

	require.NoError(t, st.PutBlockRootBySlot(0, root0))
	require.NoError(t, st.PutBlock(root0, &beacon.Block{Slot: 0}))
	require.NoError(t, st.PutEBBRoot(0, root0))

	require.NoError(t, st.PutBlockRootBySlot(16, root16))
	require.NoError(t, st.PutBlock(root16, &beacon.Block{Slot: 16, ParentRoot: root0}))

	require.NoError(t, st.PutBlockRootBySlot(32, root32))
	require.NoError(t, st.PutBlock(root32, &beacon.Block{Slot: 32, ParentRoot: root16, StateRoot: state32}))
	require.NoError(t, st.PutEBBRoot(1, root32))

	require.NoError(t, st.PutCommittees(state32, []beacon.CommitteeAssignment{
		{Index: 0, Slot: 32, Validators: []uint64{1, 2, 3, 4, 5, 6, 7}},
	}))
	require.NoError(t, st.PutFinalityCheckpoints(state32, beacon.FinalityCheckpoints{
		Finalized: beacon.Checkpoint{Epoch: 0, Root: root16},
	}))

	att := attestation(32, 0, root32, "0x93")
	require.NoError(t, st.PutBlockRootBySlot(33, root33))
	require.NoError(t, st.PutBlock(root33, &beacon.Block{
		Slot:       33,
		ParentRoot: root32,
		Body:       beacon.BlockBody{Attestations: []beacon.Attestation{att}},
	}))

	for slot := uint64(0); slot < 64; slot++ {
		require.NoError(t, st.MarkSlotSynched(slot))
	}
}

func newTestDriver(t *testing.T, path string, quorums []float64, out *bytes.Buffer) *Driver {
	t.Helper()
	st, err := store.OpenReadOnly(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	d := NewDriver(st, quorums, out)
	d.now = func() time.Time { return time.Unix(100000*beacon.SecondsPerSlot, 0) }
	return d
}

func TestDriverEmitsLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	buildCache(t, path)

	var out bytes.Buffer
	d := newTestDriver(t, path, []float64{0.5, 0.9}, &out)

	require.NoError(t, d.Run(0, 64))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal(t, []string{
		"LEDGER t=0 tip=0, quorum=0.5",
		"LEDGER t=0 tip=0, quorum=0.9",
		"LEDGER t=33 tip=16, quorum=0.5",
	}, lines)
}

func TestDriverTipSequenceIsMonotone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	buildCache(t, path)

	var out bytes.Buffer
	d := newTestDriver(t, path, []float64{0.5}, &out)
	require.NoError(t, d.Run(0, 64))

	lastTip := int64(-1)
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var slot, tip int64
		var quorum float64
		_, err := fmt.Sscanf(line, "LEDGER t=%d tip=%d, quorum=%g", &slot, &tip, &quorum)
		require.NoError(t, err, line)
		assert.GreaterOrEqual(t, tip, lastTip)
		lastTip = tip
	}
}

func TestDriverRequiresCompleteSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	st, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, st.MarkSlotSynched(0))
	require.NoError(t, st.Close())

	var out bytes.Buffer
	d := newTestDriver(t, path, []float64{0.5}, &out)

	err = d.Run(0, 64)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not synched")
}

func TestDriverRangeCoercedToNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	buildCache(t, path)

	var out bytes.Buffer
	d := newTestDriver(t, path, []float64{0.5}, &out)
	d.now = func() time.Time { return time.Unix(0, 0) }

	require.NoError(t, d.Run(64, 128))
	assert.Empty(t, out.String())
}
