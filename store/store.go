// Package store is a bolt-db cache of beacon-chain metadata keyed by a
// small, stable ASCII schema. The ingestion pipeline holds the writer; the
// confirmation driver opens the same file read-only.
package store

import (
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/snowfork/flexible-eth/beacon"
)

var chainCacheBucket = []byte("chain-cache")

// ErrNotFound is returned when a key is absent. Confirmation mode treats it
// as a completeness error; ingestion mode treats it per context.
var ErrNotFound = errors.New("key not found in cache store")

// Store wraps a bolt database holding the ingested chain metadata.
type Store struct {
	db       *bolt.DB
	readOnly bool
}

// Open opens (or creates) the cache database read-write.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(chainCacheBucket)
		return err
	}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing cache database read-only.
func OpenReadOnly(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, readOnly: true}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// get copies the value at key out of the transaction before decoding, so
// decoded byte slices never alias bolt's mmap.
func (s *Store) get(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(chainCacheBucket).Get(key)
		if v == nil {
			return errors.Wrapf(ErrNotFound, "key %s", key)
		}
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})
	return value, err
}

func (s *Store) put(key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(chainCacheBucket).Put(key, value)
	})
}

func (s *Store) has(key []byte) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(chainCacheBucket).Get(key) != nil
		return nil
	})
	return found, err
}

func (s *Store) putValue(key []byte, v any) error {
	data, err := encodeValue(v)
	if err != nil {
		return err
	}
	return s.put(key, data)
}

func (s *Store) getValue(key []byte, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	return decodeValue(v, data)
}

// SyncProgress returns the last fully processed slot.
func (s *Store) SyncProgress() (uint64, error) {
	var v storedUint64
	if err := s.getValue(syncProgressKey, &v); err != nil {
		return 0, err
	}
	return v.Value, nil
}

func (s *Store) SetSyncProgress(slot uint64) error {
	return s.putValue(syncProgressKey, &storedUint64{Value: slot})
}

// IsSlotSynched reports whether every key for slot has been committed. The
// marker is written last, so a positive answer guarantees the underlying
// keys are present.
func (s *Store) IsSlotSynched(slot uint64) (bool, error) {
	return s.has(slotSynchedKey(slot))
}

func (s *Store) MarkSlotSynched(slot uint64) error {
	return s.putValue(slotSynchedKey(slot), &storedBool{Value: true})
}

// IsEpochStateSynched reports whether the per-epoch state side-effects
// (committees and finality checkpoints) have been committed.
func (s *Store) IsEpochStateSynched(epoch uint64) (bool, error) {
	return s.has(epochStateSynchedKey(epoch))
}

func (s *Store) MarkEpochStateSynched(epoch uint64) error {
	return s.putValue(epochStateSynchedKey(epoch), &storedBool{Value: true})
}

// BlockRootBySlot returns the canonical block root at slot.
func (s *Store) BlockRootBySlot(slot uint64) (beacon.Root, error) {
	var v storedRoot
	if err := s.getValue(blockRootBySlotKey(slot), &v); err != nil {
		return beacon.Root{}, err
	}
	return v.Root, nil
}

func (s *Store) PutBlockRootBySlot(slot uint64, root beacon.Root) error {
	return s.putValue(blockRootBySlotKey(slot), &storedRoot{Root: root})
}

// BlockByRoot returns the full block stored under root.
func (s *Store) BlockByRoot(root beacon.Root) (*beacon.Block, error) {
	var blk beacon.Block
	if err := s.getValue(blockByRootKey(root), &blk); err != nil {
		return nil, err
	}
	return &blk, nil
}

func (s *Store) PutBlock(root beacon.Root, blk *beacon.Block) error {
	return s.putValue(blockByRootKey(root), blk)
}

// EBBRoot returns the epoch-boundary block root recorded for epoch.
func (s *Store) EBBRoot(epoch uint64) (beacon.Root, error) {
	var v storedRoot
	if err := s.getValue(ebbRootKey(epoch), &v); err != nil {
		return beacon.Root{}, err
	}
	return v.Root, nil
}

func (s *Store) PutEBBRoot(epoch uint64, root beacon.Root) error {
	return s.putValue(ebbRootKey(epoch), &storedRoot{Root: root})
}

// Committees returns the committee assignments stored under stateRoot.
func (s *Store) Committees(stateRoot beacon.Root) ([]beacon.CommitteeAssignment, error) {
	var v storedCommittees
	if err := s.getValue(committeesKey(stateRoot), &v); err != nil {
		return nil, err
	}
	return v.Committees, nil
}

func (s *Store) PutCommittees(stateRoot beacon.Root, committees []beacon.CommitteeAssignment) error {
	return s.putValue(committeesKey(stateRoot), &storedCommittees{Committees: committees})
}

// FinalityCheckpoints returns the checkpoint triple stored under stateRoot.
func (s *Store) FinalityCheckpoints(stateRoot beacon.Root) (beacon.FinalityCheckpoints, error) {
	var v beacon.FinalityCheckpoints
	if err := s.getValue(finalityCheckpointsKey(stateRoot), &v); err != nil {
		return beacon.FinalityCheckpoints{}, err
	}
	return v, nil
}

func (s *Store) PutFinalityCheckpoints(stateRoot beacon.Root, checkpoints beacon.FinalityCheckpoints) error {
	return s.putValue(finalityCheckpointsKey(stateRoot), &checkpoints)
}

// Chain returns the ordered ancestor-chain of roots recorded for root.
func (s *Store) Chain(root beacon.Root) ([]beacon.Root, error) {
	var v storedRootChain
	if err := s.getValue(chainKey(root), &v); err != nil {
		return nil, err
	}
	return v.Roots, nil
}

func (s *Store) PutChain(root beacon.Root, roots []beacon.Root) error {
	return s.putValue(chainKey(root), &storedRootChain{Roots: roots})
}
