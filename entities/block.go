package entities

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type Block struct {
	Number               uint64
	Hash                 common.Hash
	ParentHash           common.Hash
	Timestamp            uint64
	AggregatedSeal       Seal
	ParentAggregatedSeal Seal
}

// Seal is the aggregated committee signature of a block. Bit i of the bitmap is set if the i-th
// elected signer of the block's epoch contributed to the signature.
type Seal struct {
	Bitmap *big.Int
	Round  uint64
}

func (s Seal) HasSigner(index int) bool {
	if s.Bitmap == nil || index < 0 {
		return false
	}
	return s.Bitmap.Bit(index) == 1
}

// ElectedSet is the ordered list of validator signers elected for one epoch.
type ElectedSet struct {
	Epoch   uint64
	Signers []common.Address
	index   map[common.Address]int
}

func NewElectedSet(epoch uint64, signers []common.Address) *ElectedSet {
	index := make(map[common.Address]int, len(signers))
	for i, signer := range signers {
		if _, ok := index[signer]; !ok {
			index[signer] = i
		}
	}
	return &ElectedSet{
		Epoch:   epoch,
		Signers: signers,
		index:   index,
	}
}

func (s *ElectedSet) IndexOf(signer common.Address) (int, bool) {
	i, ok := s.index[signer]
	return i, ok
}

func (s *ElectedSet) Contains(signer common.Address) bool {
	_, ok := s.index[signer]
	return ok
}
