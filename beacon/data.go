// Package beacon holds the consensus-layer data model shared by the
// ingestion pipeline and the confirmation rule: blocks, attestations,
// checkpoints, committee assignments and slot arithmetic.
package beacon

import (
	"github.com/ethereum/go-ethereum/common"
)

// Root identifies a block or state by its 32-byte content address.
type Root = common.Hash

// GenesisRoot is the mainnet genesis block root. The all-zero root is a
// sentinel for "no checkpoint" and is rewritten to GenesisRoot before any
// lookup.
var GenesisRoot = common.HexToHash("0x4d611d5b93fdab69013a7f0a2f961caca0c853f87cfe9595fe50038163079360")

// ZeroRoot is the all-zero sentinel root.
var ZeroRoot = common.Hash{}

// Block is the subset of a beacon block consumed by the confirmation rule.
// Blocks are immutable once fetched.
type Block struct {
	Slot          uint64
	ProposerIndex uint64
	ParentRoot    Root `ssz-size:"32"`
	StateRoot     Root `ssz-size:"32"`
	Body          BlockBody
}

type BlockBody struct {
	Attestations []Attestation `ssz-max:"128"`
}

// Attestation carries an aggregate committee vote. AggregationBits is the
// raw bitlist, sentinel bit included.
type Attestation struct {
	AggregationBits AggregationBits `ssz-max:"2049"`
	Data            AttestationData
}

type AttestationData struct {
	Slot            uint64
	Index           uint64
	BeaconBlockRoot Root `ssz-size:"32"`
	Source          Checkpoint
	Target          Checkpoint
}

// Checkpoint is an (epoch, root) pair.
type Checkpoint struct {
	Epoch uint64
	Root  Root `ssz-size:"32"`
}

// FinalityCheckpoints is the checkpoint triple attached to a beacon state.
type FinalityCheckpoints struct {
	PreviousJustified Checkpoint
	CurrentJustified  Checkpoint
	Finalized         Checkpoint
}

// CommitteeAssignment lists the validators attesting at (Slot, Index).
// For the state at an epoch's first block, every assignment slot lies in
// that epoch and (Slot, Index) pairs are unique across assignments.
type CommitteeAssignment struct {
	Index      uint64
	Slot       uint64
	Validators []uint64 `ssz-max:"2048"`
}
