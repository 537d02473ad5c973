package beacon

import "time"

const (
	SlotsPerEpoch  = 32
	SecondsPerSlot = 12

	// StabilityGap is the distance kept between the chain tip and the
	// highest slot we are willing to treat as canonical, so that an
	// undetected reorg near the tip cannot poison the cache.
	StabilityGap = 5 * SlotsPerEpoch
)

// SlotToEpoch returns the epoch containing slot.
func SlotToEpoch(slot uint64) uint64 {
	return slot / SlotsPerEpoch
}

// EpochToSlot returns the first slot of epoch.
func EpochToSlot(epoch uint64) uint64 {
	return epoch * SlotsPerEpoch
}

// EpochBoundarySlot rounds slot down to the nearest epoch-boundary slot.
func EpochBoundarySlot(slot uint64) uint64 {
	return slot - (slot % SlotsPerEpoch)
}

// IsEpochBoundarySlot reports whether slot is the first slot of its epoch.
func IsEpochBoundarySlot(slot uint64) bool {
	return slot%SlotsPerEpoch == 0
}

// UnixTimeToSlot converts a unix timestamp to a slot number.
func UnixTimeToSlot(unixtime uint64) uint64 {
	return unixtime / SecondsPerSlot
}

// CurrentSlot returns the slot at the given wall-clock time.
func CurrentSlot(now time.Time) uint64 {
	return UnixTimeToSlot(uint64(now.Unix()))
}

// StableSlotCeiling returns the highest slot that can be treated as
// canonical at time now: StabilityGap slots behind the clock.
func StableSlotCeiling(now time.Time) uint64 {
	nowSlot := CurrentSlot(now)
	if nowSlot <= StabilityGap {
		return 0
	}
	return nowSlot - StabilityGap
}

// IsPrefixOf reports whether prefix is a prefix of chain.
func IsPrefixOf(prefix, chain []Root) bool {
	if len(prefix) > len(chain) {
		return false
	}
	for i := range prefix {
		if prefix[i] != chain[i] {
			return false
		}
	}
	return true
}

// IsConsistentWith reports whether one chain is a prefix of the other.
func IsConsistentWith(a, b []Root) bool {
	return IsPrefixOf(a, b) || IsPrefixOf(b, a)
}
