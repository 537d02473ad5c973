// Package confrule evaluates the flexible confirmation rule: per quorum, it
// tracks one confirmation target per recent epoch, counts distinct
// attestations for each target across blocks, and advances a monotone
// confirmed-tip watermark when a target crosses its quorum.
package confrule

import (
	"math"

	"github.com/pkg/errors"

	"github.com/snowfork/flexible-eth/beacon"
)

// ErrInvariant is wrapped around any violated engine precondition: it
// indicates cache corruption or provider divergence and aborts the run.
var ErrInvariant = errors.New("confirmation invariant violated")

type committeeKey struct {
	slot  uint64
	index uint64
}

// targetState accumulates votes for one (epoch, quorum) confirmation
// target. It is created when the engine observes the first block of a new
// epoch and retired once it falls two epochs behind.
type targetState struct {
	epoch         uint64
	voteTarget    beacon.Root
	finalizedRoot beacon.Root
	finalizedSlot uint64
	quorumAbs     int
	committees    map[committeeKey]struct{}
	aggregators   map[committeeKey]beacon.AggregationBits
	numVotes      int
	confirmed     bool
}

func newTargetState(
	epoch uint64,
	voteTarget beacon.Root,
	finalizedRoot beacon.Root,
	finalizedSlot uint64,
	committees []beacon.CommitteeAssignment,
	quorum float64,
) (*targetState, error) {
	epochStart := beacon.EpochToSlot(epoch)
	epochEnd := beacon.EpochToSlot(epoch + 1)

	committeeKeys := make(map[committeeKey]struct{}, len(committees))
	validators := make(map[uint64]struct{})
	numValidators := 0
	for _, committee := range committees {
		if committee.Slot < epochStart || committee.Slot >= epochEnd {
			return nil, errors.Wrapf(ErrInvariant, "committee slot %d outside epoch %d", committee.Slot, epoch)
		}
		key := committeeKey{slot: committee.Slot, index: committee.Index}
		if _, dup := committeeKeys[key]; dup {
			return nil, errors.Wrapf(ErrInvariant, "duplicate committee (%d, %d) in epoch %d", committee.Slot, committee.Index, epoch)
		}
		committeeKeys[key] = struct{}{}
		for _, validator := range committee.Validators {
			if _, dup := validators[validator]; dup {
				return nil, errors.Wrapf(ErrInvariant, "duplicate validator %d in epoch %d", validator, epoch)
			}
			validators[validator] = struct{}{}
			numValidators++
		}
	}

	return &targetState{
		epoch:         epoch,
		voteTarget:    voteTarget,
		finalizedRoot: finalizedRoot,
		finalizedSlot: finalizedSlot,
		quorumAbs:     int(math.Ceil(float64(numValidators) * quorum)),
		committees:    committeeKeys,
		aggregators:   make(map[committeeKey]beacon.AggregationBits),
	}, nil
}

// processBlock counts the block's attestations for this target and reports
// whether the call transitioned the target to confirmed. Votes are
// de-duplicated per committee through bitset deltas, so the same validator
// is counted once no matter how many aggregates it appears in.
func (t *targetState) processBlock(blk *beacon.Block) (bool, error) {
	if t.confirmed {
		return false, nil
	}

	epochStart := beacon.EpochToSlot(t.epoch)
	epochEnd := beacon.EpochToSlot(t.epoch + 1)

	for i := range blk.Body.Attestations {
		att := &blk.Body.Attestations[i]
		if att.Data.Slot < epochStart || att.Data.Slot >= epochEnd {
			continue
		}
		if att.Data.Target.Root != t.voteTarget {
			continue
		}

		key := committeeKey{slot: att.Data.Slot, index: att.Data.Index}
		if _, ok := t.committees[key]; !ok {
			return false, errors.Wrapf(ErrInvariant, "attestation for unknown committee (%d, %d)", att.Data.Slot, att.Data.Index)
		}

		aggregator, ok := t.aggregators[key]
		if !ok {
			aggregator = att.AggregationBits.Zeroed()
			t.aggregators[key] = aggregator
		}
		delta, err := aggregator.IncorporateDelta(att.AggregationBits)
		if err != nil {
			return false, errors.Wrapf(ErrInvariant, "committee (%d, %d): %v", att.Data.Slot, att.Data.Index, err)
		}
		t.numVotes += delta.Count()
	}

	if t.numVotes >= t.quorumAbs {
		t.confirmed = true
		return true, nil
	}
	return false, nil
}
