package confrule

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowfork/flexible-eth/beacon"
	"github.com/snowfork/flexible-eth/store"
)

// Driver replays the cached chain over a slot range and runs one
// confirmation engine per configured quorum, emitting a LEDGER line to out
// for every tip advance.
type Driver struct {
	store       *store.Store
	quorums     []float64
	out         io.Writer
	checkChains bool
	now         func() time.Time
}

func NewDriver(st *store.Store, quorums []float64, out io.Writer) *Driver {
	return &Driver{
		store:   st,
		quorums: quorums,
		out:     out,
		now:     time.Now,
	}
}

// WithChainCheck enables the ancestor-chain consistency check between
// successive tips. Off by default: it assumes chains were recorded during
// sync and that the provider has not served a majority-attack fork.
func (d *Driver) WithChainCheck() *Driver {
	d.checkChains = true
	return d
}

// Run sweeps [minSlot, maxSlot] in slot order. Both bounds are rounded down
// to epoch boundaries and maxSlot is clamped away from the chain tip. Every
// slot in [minSlot, maxSlot) must have been ingested.
func (d *Driver) Run(minSlot, maxSlot uint64) error {
	minSlot = beacon.EpochBoundarySlot(minSlot)
	maxSlot = beacon.EpochBoundarySlot(maxSlot)

	stableSlot := beacon.StableSlotCeiling(d.now())
	if maxSlot > stableSlot {
		newMaxSlot := beacon.EpochBoundarySlot(stableSlot)
		log.WithFields(log.Fields{
			"max_slot": maxSlot,
			"clamped":  newMaxSlot,
		}).Warn("maximum slot is too recent, clamping to avoid undetected reorgs of the canonical chain")
		maxSlot = newMaxSlot
	}

	if maxSlot < minSlot {
		log.WithFields(log.Fields{
			"min_slot": minSlot,
			"max_slot": maxSlot,
		}).Error("maximum slot cannot be smaller than the minimum slot")
		return nil
	}

	for slot := minSlot; slot < maxSlot; slot++ {
		synched, err := d.store.IsSlotSynched(slot)
		if err != nil {
			return err
		}
		if !synched {
			return errors.Errorf("slot %d not synched, sync is not complete", slot)
		}
	}

	engines := make([]*ConfirmationState, 0, len(d.quorums))
	for _, quorum := range d.quorums {
		engines = append(engines, NewConfirmationState(quorum))
		fmt.Fprintf(d.out, "LEDGER t=0 tip=0, quorum=%v\n", quorum)
	}

	lastRegisteredEpoch := beacon.SlotToEpoch(minSlot)
	for slot := minSlot; slot <= maxSlot; slot++ {
		root, err := d.store.BlockRootBySlot(slot)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		blk, err := d.store.BlockByRoot(root)
		if err != nil {
			return errors.Wrapf(err, "block %s missing for slot %d", root.Hex(), slot)
		}

		epoch := beacon.SlotToEpoch(slot)
		if epoch > lastRegisteredEpoch {
			if err := d.registerEpoch(epoch, blk, engines); err != nil {
				return err
			}
			lastRegisteredEpoch = epoch
		}

		for _, engine := range engines {
			prevTipRoot, _ := engine.Tip()
			tipSlot, acting, err := engine.ProcessBlock(blk)
			if err != nil {
				return err
			}
			if !acting {
				continue
			}
			fmt.Fprintf(d.out, "LEDGER t=%d tip=%d, quorum=%v\n", slot, tipSlot, engine.Quorum())
			if d.checkChains {
				d.verifyTipChains(prevTipRoot, engine)
			}
		}
	}

	return nil
}

// registerEpoch loads the first-block-of-epoch context from the store and
// registers the epoch's confirmation target with every engine.
func (d *Driver) registerEpoch(epoch uint64, blk *beacon.Block, engines []*ConfirmationState) error {
	committees, err := d.store.Committees(blk.StateRoot)
	if err != nil {
		return errors.Wrapf(err, "committees missing for state %s (epoch %d)", blk.StateRoot.Hex(), epoch)
	}
	checkpoints, err := d.store.FinalityCheckpoints(blk.StateRoot)
	if err != nil {
		return errors.Wrapf(err, "finality checkpoints missing for state %s (epoch %d)", blk.StateRoot.Hex(), epoch)
	}

	finalizedRoot := checkpoints.Finalized.Root
	if finalizedRoot == beacon.ZeroRoot {
		finalizedRoot = beacon.GenesisRoot
	}
	finalizedBlk, err := d.store.BlockByRoot(finalizedRoot)
	if err != nil {
		return errors.Wrapf(err, "finalized block %s missing (epoch %d)", finalizedRoot.Hex(), epoch)
	}

	ebbRoot, err := d.store.EBBRoot(epoch)
	if err != nil {
		return errors.Wrapf(err, "boundary block root missing for epoch %d", epoch)
	}

	log.WithFields(log.Fields{
		"epoch":          epoch,
		"ebb_root":       ebbRoot.Hex(),
		"finalized_root": finalizedRoot.Hex(),
		"finalized_slot": finalizedBlk.Slot,
	}).Info("registering confirmation target")

	for _, engine := range engines {
		if err := engine.RegisterFirstBlockOfEpoch(epoch, ebbRoot, finalizedRoot, finalizedBlk.Slot, committees); err != nil {
			return err
		}
	}
	return nil
}

// verifyTipChains warns when the recorded ancestor chains of two successive
// tips are not prefix-consistent. Diagnostics only.
func (d *Driver) verifyTipChains(prevTipRoot beacon.Root, engine *ConfirmationState) {
	tipRoot, _ := engine.Tip()
	prevChain, err := d.store.Chain(prevTipRoot)
	if err != nil {
		log.WithField("root", prevTipRoot.Hex()).Debug("no recorded chain for previous tip")
		return
	}
	tipChain, err := d.store.Chain(tipRoot)
	if err != nil {
		log.WithField("root", tipRoot.Hex()).Debug("no recorded chain for tip")
		return
	}
	if !beacon.IsConsistentWith(prevChain, tipChain) {
		log.WithFields(log.Fields{
			"previous_tip": prevTipRoot.Hex(),
			"tip":          tipRoot.Hex(),
		}).Error("tip chains are not prefix-consistent")
	}
}
