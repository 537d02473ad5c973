package confrule

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowfork/flexible-eth/beacon"
)

// ConfirmationState is the per-quorum coordinator: it owns the live
// confirmation targets, dispatches blocks to them, and maintains the
// confirmed-tip watermark. The tip slot never decreases; the last
// processed slot strictly increases.
type ConfirmationState struct {
	quorum            float64
	lastProcessedSlot uint64
	processedAny      bool
	confirmedTipSlot  uint64
	confirmedTipRoot  beacon.Root
	targets           []*targetState
}

func NewConfirmationState(quorum float64) *ConfirmationState {
	return &ConfirmationState{
		quorum:           quorum,
		confirmedTipRoot: beacon.GenesisRoot,
	}
}

func (c *ConfirmationState) Quorum() float64 {
	return c.quorum
}

// Tip returns the current confirmed tip.
func (c *ConfirmationState) Tip() (beacon.Root, uint64) {
	return c.confirmedTipRoot, c.confirmedTipSlot
}

// RegisterFirstBlockOfEpoch retires targets that have fallen two epochs
// behind and opens a new target voting for the epoch's boundary block. An
// all-zero boundary root is rewritten to the genesis root.
func (c *ConfirmationState) RegisterFirstBlockOfEpoch(
	epoch uint64,
	ebbRoot beacon.Root,
	finalizedRoot beacon.Root,
	finalizedSlot uint64,
	committees []beacon.CommitteeAssignment,
) error {
	// Older targets can no longer accrue valid votes: attestations are only
	// included within two epochs of their vote epoch.
	live := c.targets[:0]
	for _, t := range c.targets {
		if t.epoch+2 > epoch {
			live = append(live, t)
		} else {
			log.WithFields(log.Fields{
				"epoch":     t.epoch,
				"quorum":    c.quorum,
				"confirmed": t.confirmed,
			}).Debug("retiring confirmation target")
		}
	}
	c.targets = live

	if ebbRoot == beacon.ZeroRoot {
		ebbRoot = beacon.GenesisRoot
	}

	target, err := newTargetState(epoch, ebbRoot, finalizedRoot, finalizedSlot, committees, c.quorum)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"epoch":          epoch,
		"vote_target":    ebbRoot.Hex(),
		"finalized_slot": finalizedSlot,
		"quorum":         c.quorum,
		"quorum_abs":     target.quorumAbs,
	}).Info("registered confirmation target")

	c.targets = append(c.targets, target)
	return nil
}

// ProcessBlock feeds blk to every live target. It returns the tip slot and
// true iff some target crossed quorum with a finalized slot ahead of the
// current tip. Block slots must strictly increase across calls.
func (c *ConfirmationState) ProcessBlock(blk *beacon.Block) (uint64, bool, error) {
	if c.processedAny && blk.Slot <= c.lastProcessedSlot {
		return 0, false, errors.Wrapf(ErrInvariant, "block slot %d not above last processed slot %d", blk.Slot, c.lastProcessedSlot)
	}

	acting := false
	for _, t := range c.targets {
		justConfirmed, err := t.processBlock(blk)
		if err != nil {
			return 0, false, err
		}
		if !justConfirmed {
			continue
		}
		log.WithFields(log.Fields{
			"epoch":          t.epoch,
			"quorum":         c.quorum,
			"votes":          t.numVotes,
			"quorum_abs":     t.quorumAbs,
			"finalized_slot": t.finalizedSlot,
		}).Info("confirmation target crossed quorum")
		if t.finalizedSlot > c.confirmedTipSlot {
			c.confirmedTipSlot = t.finalizedSlot
			c.confirmedTipRoot = t.finalizedRoot
			acting = true
		}
	}

	c.lastProcessedSlot = blk.Slot
	c.processedAny = true
	return c.confirmedTipSlot, acting, nil
}
