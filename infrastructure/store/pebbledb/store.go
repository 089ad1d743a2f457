package pebbledb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"path/filepath"
)

var ErrNotFound = errors.New("store resource not found")

const electedSignersPerEpochKey = 0x00

// Store keeps elected signer sets per epoch. Epoch numbers are only meaningful for one chain and
// one epoch numbering, so every key is prefixed with the hash of the store scope.
type Store struct {
	db     *pebble.DB
	prefix []byte
}

func NewElectionStore(storeDir string, scope string) (*Store, error) {
	if scope == "" {
		return nil, errors.New("empty store scope")
	}
	db, err := pebble.Open(filepath.Join(storeDir, "heartbeat-store"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble db: %v", err)
	}

	prefix := append([]byte{electedSignersPerEpochKey}, crypto.Keccak256([]byte(scope))...)
	return &Store{db: db, prefix: prefix}, nil
}

func (ps *Store) electedSignersKey(epoch uint64) []byte {
	key := append([]byte{}, ps.prefix...)
	return binary.BigEndian.AppendUint64(key, epoch)
}

func (ps *Store) SetElectedSigners(epoch uint64, signers []common.Address) error {
	value := make([]byte, 0, len(signers)*common.AddressLength)
	for _, signer := range signers {
		value = append(value, signer.Bytes()...)
	}

	err := ps.db.Set(ps.electedSignersKey(epoch), value, pebble.Sync)
	if err != nil {
		return fmt.Errorf("setting elected signers for epoch %d: %v", epoch, err)
	}

	return nil
}

func (ps *Store) GetElectedSigners(epoch uint64) ([]common.Address, error) {
	value, closer, err := ps.db.Get(ps.electedSignersKey(epoch))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting elected signers for epoch %d: %v", epoch, err)
	}
	defer closer.Close()

	if len(value)%common.AddressLength != 0 {
		return nil, fmt.Errorf("corrupted elected signers for epoch %d: length %d", epoch, len(value))
	}

	signers := make([]common.Address, 0, len(value)/common.AddressLength)
	for i := 0; i < len(value); i += common.AddressLength {
		// BytesToAddress copies, value is only valid until the closer is closed
		signers = append(signers, common.BytesToAddress(value[i:i+common.AddressLength]))
	}

	return signers, nil
}

// GetStoredEpochs lists the epochs of this scope with a stored elected signer set, in ascending
// order.
func (ps *Store) GetStoredEpochs() ([]uint64, error) {
	iter, err := ps.db.NewIter(&pebble.IterOptions{
		LowerBound: ps.prefix,
		UpperBound: upperBound(ps.prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("creating iterator: %v", err)
	}
	defer iter.Close()

	var epochs []uint64
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) != len(ps.prefix)+8 {
			continue
		}
		epochs = append(epochs, binary.BigEndian.Uint64(key[len(ps.prefix):]))
	}

	return epochs, nil
}

func (ps *Store) Close() error {
	return ps.db.Close()
}

// upperBound returns the smallest key greater than every key starting with prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // all 0xff, no upper bound
}
