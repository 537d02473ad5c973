package store

import (
	dynssz "github.com/pk910/dynamic-ssz"
	"github.com/pkg/errors"

	"github.com/snowfork/flexible-eth/beacon"
)

// All values round-trip through a single SSZ codec: little-endian,
// offset-prefixed, lossless. Scalar and root values are wrapped in small
// containers so every key decodes through the same path.
var sszCodec = dynssz.NewDynSsz(map[string]any{})

type storedUint64 struct {
	Value uint64
}

type storedBool struct {
	Value bool
}

type storedRoot struct {
	Root beacon.Root `ssz-size:"32"`
}

type storedRootChain struct {
	Roots []beacon.Root `ssz-size:"?,32" ssz-max:"1048576"`
}

type storedCommittees struct {
	Committees []beacon.CommitteeAssignment `ssz-max:"4096"`
}

func encodeValue(v any) ([]byte, error) {
	data, err := sszCodec.MarshalSSZ(v)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode value")
	}
	return data, nil
}

func decodeValue(v any, data []byte) error {
	if err := sszCodec.UnmarshalSSZ(v, data); err != nil {
		return errors.Wrap(err, "could not decode value")
	}
	return nil
}
