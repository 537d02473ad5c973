// Package syncer pulls canonical block roots, blocks, committees and
// finality checkpoints from a beacon RPC endpoint into the local cache
// store, slot by slot. Every slot commits its completion marker last, so an
// interrupted run resumes without re-fetching anything already covered.
package syncer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowfork/flexible-eth/api"
	"github.com/snowfork/flexible-eth/beacon"
	"github.com/snowfork/flexible-eth/store"
)

// ErrStateRootMismatch signals that the state root reported for a slot
// diverged from the state root carried by the block at that slot. This
// indicates provider divergence and aborts the run.
var ErrStateRootMismatch = errors.New("state root at slot does not match block state root")

// Pipeline ingests a slot range into the cache store.
type Pipeline struct {
	store      *store.Store
	client     api.Client
	gate       *RateGate
	withChains bool
	now        func() time.Time
}

func New(st *store.Store, client api.Client, gate *RateGate, withChains bool) *Pipeline {
	return &Pipeline{
		store:      st,
		client:     client,
		gate:       gate,
		withChains: withChains,
		now:        time.Now,
	}
}

// Run ingests [minSlot, maxSlot]. Both bounds are rounded down to epoch
// boundaries; maxSlot is clamped away from the chain tip and then extended
// by one slot so the final epoch-boundary block is included.
func (p *Pipeline) Run(ctx context.Context, minSlot, maxSlot uint64) error {
	minSlot = beacon.EpochBoundarySlot(minSlot)
	maxSlot = beacon.EpochBoundarySlot(maxSlot)

	stableSlot := beacon.StableSlotCeiling(p.now())
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

	// include the final epoch-boundary block
	endSlot := maxSlot + 1

	if progress, err := p.store.SyncProgress(); err == nil {
		log.WithField("slot", progress).Info("resuming from previous sync progress")
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	log.WithFields(log.Fields{
		"min_slot": minSlot,
		"max_slot": maxSlot,
	}).Info("starting to sync consensus metadata")

	// Root of the most recent proposed block seen during the sweep. Used to
	// promote the previous root as an epoch's boundary root when the
	// boundary slot itself was skipped.
	var lastRoot beacon.Root

	for slot := minSlot; slot < endSlot; slot++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		synched, err := p.store.IsSlotSynched(slot)
		if err != nil {
			return err
		}
		if synched {
			root, err := p.store.BlockRootBySlot(slot)
			switch {
			case err == nil:
				lastRoot = root
			case errors.Is(err, store.ErrNotFound):
				// slot was skipped upstream
			default:
				return err
			}
			continue
		}

		if err := p.syncSlot(ctx, slot, &lastRoot); err != nil {
			return err
		}
	}

	log.WithField("max_slot", maxSlot).Info("sync complete")
	return nil
}

func (p *Pipeline) syncSlot(ctx context.Context, slot uint64, lastRoot *beacon.Root) error {
	epoch := beacon.SlotToEpoch(slot)

	if err := p.gate.Wait(ctx); err != nil {
		return err
	}
	root, err := p.client.BlockRootAtSlot(ctx, slot)
	if errors.Is(err, api.ErrNotFound) {
		log.WithField("slot", slot).Debug("slot was skipped")
		if beacon.IsEpochBoundarySlot(slot) && *lastRoot != beacon.ZeroRoot {
			if err := p.store.PutEBBRoot(epoch, *lastRoot); err != nil {
				return err
			}
		}
		return p.finishSlot(slot)
	}
	if err != nil {
		return errors.Wrapf(err, "could not fetch block root at slot %d", slot)
	}

	if err := p.store.PutBlockRootBySlot(slot, root); err != nil {
		return err
	}
	if beacon.IsEpochBoundarySlot(slot) {
		if err := p.store.PutEBBRoot(epoch, root); err != nil {
			return err
		}
	}

	if err := p.gate.Wait(ctx); err != nil {
		return err
	}
	blk, err := p.client.BlockByRoot(ctx, root)
	if err != nil {
		return errors.Wrapf(err, "could not fetch block %s", root.Hex())
	}
	if err := p.store.PutBlock(root, blk); err != nil {
		return err
	}

	if p.withChains {
		if err := p.recordChain(root, blk); err != nil {
			return err
		}
	}

	*lastRoot = root

	stateSynched, err := p.store.IsEpochStateSynched(epoch)
	if err != nil {
		return err
	}
	if !stateSynched {
		if err := p.syncEpochState(ctx, slot, blk); err != nil {
			var respErr *api.ResponseError
			if errors.As(err, &respErr) {
				// Provider rejected the state query; leave the slot and the
				// epoch unmarked so a later run retries.
				log.WithFields(log.Fields{
					"slot":  slot,
					"epoch": epoch,
				}).WithError(err).Warn("state query rejected, slot left unsynched for retry")
				return nil
			}
			return err
		}
		if err := p.store.MarkEpochStateSynched(epoch); err != nil {
			return err
		}
	}

	return p.finishSlot(slot)
}

// syncEpochState materialises the per-epoch state side-effects: committee
// assignments and finality checkpoints, keyed by the block's state root.
// The state root reported for the slot is checked against the block both
// before and after the section, guarding against the state moving under a
// slot-indexed query.
func (p *Pipeline) syncEpochState(ctx context.Context, slot uint64, blk *beacon.Block) error {
	if err := p.verifyStateRoot(ctx, slot, blk); err != nil {
		return err
	}

	if err := p.gate.Wait(ctx); err != nil {
		return err
	}
	committees, err := p.client.CommitteesAtSlot(ctx, slot)
	if err != nil {
		return errors.Wrapf(err, "could not fetch committees at slot %d", slot)
	}

	if err := p.gate.Wait(ctx); err != nil {
		return err
	}
	checkpoints, err := p.client.FinalityCheckpointsAtSlot(ctx, slot)
	if err != nil {
		return errors.Wrapf(err, "could not fetch finality checkpoints at slot %d", slot)
	}

	if err := p.store.PutCommittees(blk.StateRoot, committees); err != nil {
		return err
	}
	if err := p.store.PutFinalityCheckpoints(blk.StateRoot, checkpoints); err != nil {
		return err
	}

	return p.verifyStateRoot(ctx, slot, blk)
}

func (p *Pipeline) verifyStateRoot(ctx context.Context, slot uint64, blk *beacon.Block) error {
	if err := p.gate.Wait(ctx); err != nil {
		return err
	}
	stateRoot, err := p.client.StateRootAtSlot(ctx, slot)
	if err != nil {
		return errors.Wrapf(err, "could not fetch state root at slot %d", slot)
	}
	if stateRoot != blk.StateRoot {
		return errors.Wrapf(ErrStateRootMismatch, "slot %d: %s != %s", slot, stateRoot.Hex(), blk.StateRoot.Hex())
	}
	return nil
}

// recordChain extends the parent's ancestor chain with this block's root.
// Kept behind a flag; the consistency check over these chains assumes no
// majority attack and stays disabled by default.
func (p *Pipeline) recordChain(root beacon.Root, blk *beacon.Block) error {
	chain, err := p.store.Chain(blk.ParentRoot)
	if errors.Is(err, store.ErrNotFound) {
		chain = nil
	} else if err != nil {
		return err
	}
	return p.store.PutChain(root, append(chain, root))
}

// finishSlot commits the slot marker, then the progress watermark. Callers
// write all of the slot's keys before calling it, so readers never observe
// a marked slot without its underlying keys.
func (p *Pipeline) finishSlot(slot uint64) error {
	if err := p.store.MarkSlotSynched(slot); err != nil {
		return err
	}
	return p.store.SetSyncProgress(slot)
}
