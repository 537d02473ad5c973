// Package api is a typed client for the subset of the beacon REST surface
// the ingestion pipeline consumes. Responses are JSON with numeric fields
// that may be strings or numbers; error bodies carry an HTTP-like code and
// a message. A 404 is reported as the ErrNotFound sentinel, not as a
// ResponseError.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/snowfork/flexible-eth/beacon"
)

const (
	ConstructRequestErrorMessage = "construct request"
	DoHTTPRequestErrorMessage    = "do http request"
	ReadResponseBodyErrorMessage = "read response body"
	UnmarshalBodyErrorMessage    = "unmarshal body"
)

// ErrNotFound signals a missing resource: a skipped slot for block-root
// queries, or an unknown root for block queries.
var ErrNotFound = errors.New("not found")

// Client is the beacon RPC surface used by the ingestion pipeline.
type Client interface {
	BlockRootAtSlot(ctx context.Context, slot uint64) (beacon.Root, error)
	BlockByRoot(ctx context.Context, root beacon.Root) (*beacon.Block, error)
	StateRootAtSlot(ctx context.Context, slot uint64) (beacon.Root, error)
	FinalityCheckpointsAtSlot(ctx context.Context, slot uint64) (beacon.FinalityCheckpoints, error)
	CommitteesAtSlot(ctx context.Context, slot uint64) ([]beacon.CommitteeAssignment, error)
}

// BeaconClient implements Client against a beacon node REST endpoint.
type BeaconClient struct {
	httpClient http.Client
	endpoint   string
}

var _ Client = (*BeaconClient)(nil)

func NewBeaconClient(endpoint string) *BeaconClient {
	return &BeaconClient{
		httpClient: http.Client{},
		endpoint:   endpoint,
	}
}

// get fetches url and returns the response body. Any status other than 200
// is an error: a 404 status, or an error body carrying code 404, maps to
// ErrNotFound; any other error body is returned as a ResponseError, and a
// body that does not decode yields a plain error with the status code.
func (b *BeaconClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ConstructRequestErrorMessage, err)
	}
	req.Header.Set("accept", "application/json")

	res, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", DoHTTPRequestErrorMessage, err)
	}
	defer res.Body.Close()

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ReadResponseBodyErrorMessage, err)
	}

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		var respErr ResponseError
		if err := json.Unmarshal(bodyBytes, &respErr); err != nil {
			return nil, fmt.Errorf("%s: %d", DoHTTPRequestErrorMessage, res.StatusCode)
		}
		if respErr.Code == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, &respErr
	}

	return bodyBytes, nil
}

func (b *BeaconClient) BlockRootAtSlot(ctx context.Context, slot uint64) (beacon.Root, error) {
	bodyBytes, err := b.get(ctx, fmt.Sprintf("%s/eth/v1/beacon/blocks/%d/root", b.endpoint, slot))
	if err != nil {
		return beacon.Root{}, err
	}

	var response BlockRootResponse
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return beacon.Root{}, fmt.Errorf("%s: %w", UnmarshalBodyErrorMessage, err)
	}

	return common.HexToHash(response.Data.Root), nil
}

func (b *BeaconClient) BlockByRoot(ctx context.Context, root beacon.Root) (*beacon.Block, error) {
	bodyBytes, err := b.get(ctx, fmt.Sprintf("%s/eth/v2/beacon/blocks/%s", b.endpoint, root.Hex()))
	if err != nil {
		return nil, err
	}

	var response BlockResponse
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return nil, fmt.Errorf("%s: %w", UnmarshalBodyErrorMessage, err)
	}

	return blockFromResponse(&response)
}

func (b *BeaconClient) StateRootAtSlot(ctx context.Context, slot uint64) (beacon.Root, error) {
	bodyBytes, err := b.get(ctx, fmt.Sprintf("%s/eth/v1/beacon/states/%d/root", b.endpoint, slot))
	if err != nil {
		return beacon.Root{}, err
	}

	var response StateRootResponse
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return beacon.Root{}, fmt.Errorf("%s: %w", UnmarshalBodyErrorMessage, err)
	}

	return common.HexToHash(response.Data.Root), nil
}

func (b *BeaconClient) FinalityCheckpointsAtSlot(ctx context.Context, slot uint64) (beacon.FinalityCheckpoints, error) {
	bodyBytes, err := b.get(ctx, fmt.Sprintf("%s/eth/v1/beacon/states/%d/finality_checkpoints", b.endpoint, slot))
	if err != nil {
		return beacon.FinalityCheckpoints{}, err
	}

	var response FinalityCheckpointsResponse
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return beacon.FinalityCheckpoints{}, fmt.Errorf("%s: %w", UnmarshalBodyErrorMessage, err)
	}

	return beacon.FinalityCheckpoints{
		PreviousJustified: checkpointFromResponse(response.Data.PreviousJustified),
		CurrentJustified:  checkpointFromResponse(response.Data.CurrentJustified),
		Finalized:         checkpointFromResponse(response.Data.Finalized),
	}, nil
}

func (b *BeaconClient) CommitteesAtSlot(ctx context.Context, slot uint64) ([]beacon.CommitteeAssignment, error) {
	bodyBytes, err := b.get(ctx, fmt.Sprintf("%s/eth/v1/beacon/states/%d/committees", b.endpoint, slot))
	if err != nil {
		return nil, err
	}

	var response CommitteesResponse
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return nil, fmt.Errorf("%s: %w", UnmarshalBodyErrorMessage, err)
	}

	committees := make([]beacon.CommitteeAssignment, 0, len(response.Data))
	for _, committee := range response.Data {
		validators := make([]uint64, 0, len(committee.Validators))
		for _, v := range committee.Validators {
			validators = append(validators, uint64(v))
		}
		committees = append(committees, beacon.CommitteeAssignment{
			Index:      uint64(committee.Index),
			Slot:       uint64(committee.Slot),
			Validators: validators,
		})
	}

	return committees, nil
}

func blockFromResponse(response *BlockResponse) (*beacon.Block, error) {
	message := &response.Data.Message

	attestations := make([]beacon.Attestation, 0, len(message.Body.Attestations))
	for _, att := range message.Body.Attestations {
		bits, err := beacon.AggregationBitsFromHex(att.AggregationBits)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", UnmarshalBodyErrorMessage, err)
		}
		attestations = append(attestations, beacon.Attestation{
			AggregationBits: bits,
			Data: beacon.AttestationData{
				Slot:            uint64(att.Data.Slot),
				Index:           uint64(att.Data.Index),
				BeaconBlockRoot: common.HexToHash(att.Data.BeaconBlockRoot),
				Source:          checkpointFromResponse(att.Data.Source),
				Target:          checkpointFromResponse(att.Data.Target),
			},
		})
	}

	return &beacon.Block{
		Slot:          uint64(message.Slot),
		ProposerIndex: uint64(message.ProposerIndex),
		ParentRoot:    common.HexToHash(message.ParentRoot),
		StateRoot:     common.HexToHash(message.StateRoot),
		Body:          beacon.BlockBody{Attestations: attestations},
	}, nil
}

func checkpointFromResponse(cp CheckpointResponse) beacon.Checkpoint {
	return beacon.Checkpoint{
		Epoch: uint64(cp.Epoch),
		Root:  common.HexToHash(cp.Root),
	}
}
