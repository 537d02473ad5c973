package store

import (
	"fmt"

	"github.com/snowfork/flexible-eth/beacon"
)

// Keys are ASCII with fixed prefixes and decimal or 0x-hex payloads, so the
// store stays human-readable and simple prefix scans work when debugging.
//
//	sync_progress                          last fully processed slot
//	slot_<s>_synched                       per-slot completion marker
//	epoch_<e>_state_synched                per-epoch state completion marker
//	block_<slot>                           canonical block root at slot
//	block_<root>                           full block by root
//	ebb_<epoch>_root                       epoch-boundary block root
//	state_<root>_committees                committee assignments by state root
//	state_<root>_finality_checkpoints      checkpoint triple by state root
//	chain_<root>                           ancestor root chain (optional)

var syncProgressKey = []byte("sync_progress")

func slotSynchedKey(slot uint64) []byte {
	return []byte(fmt.Sprintf("slot_%d_synched", slot))
}

func epochStateSynchedKey(epoch uint64) []byte {
	return []byte(fmt.Sprintf("epoch_%d_state_synched", epoch))
}

func blockRootBySlotKey(slot uint64) []byte {
	return []byte(fmt.Sprintf("block_%d", slot))
}

func blockByRootKey(root beacon.Root) []byte {
	return []byte(fmt.Sprintf("block_%s", root.Hex()))
}

func ebbRootKey(epoch uint64) []byte {
	return []byte(fmt.Sprintf("ebb_%d_root", epoch))
}

func committeesKey(stateRoot beacon.Root) []byte {
	return []byte(fmt.Sprintf("state_%s_committees", stateRoot.Hex()))
}

func finalityCheckpointsKey(stateRoot beacon.Root) []byte {
	return []byte(fmt.Sprintf("state_%s_finality_checkpoints", stateRoot.Hex()))
}

func chainKey(root beacon.Root) []byte {
	return []byte(fmt.Sprintf("chain_%s", root.Hex()))
}
