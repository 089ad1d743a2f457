package celo

import (
	"math/big"

	"github.com/celo-tools/validator-heartbeat/entities"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

// istanbulExtraVanity is the fixed-size prefix of the header extra data preceding the rlp payload.
const istanbulExtraVanity = 32

const blsPublicKeyLength = 96

type istanbulAggregatedSeal struct {
	Bitmap    *big.Int
	Signature []byte
	Round     *big.Int
}

type istanbulExtra struct {
	AddedValidators           []common.Address
	AddedValidatorsPublicKeys [][blsPublicKeyLength]byte
	RemovedValidators         *big.Int
	Seal                      []byte
	AggregatedSeal            istanbulAggregatedSeal
	ParentAggregatedSeal      istanbulAggregatedSeal
}

func decodeIstanbulExtra(extraData []byte) (*istanbulExtra, error) {
	if len(extraData) < istanbulExtraVanity {
		return nil, errors.Errorf("extra data too short: %d bytes", len(extraData))
	}

	var extra istanbulExtra
	err := rlp.DecodeBytes(extraData[istanbulExtraVanity:], &extra)
	if err != nil {
		return nil, errors.Wrap(err, "decoding istanbul extra")
	}
	return &extra, nil
}

func toSeal(seal istanbulAggregatedSeal) entities.Seal {
	bitmap := seal.Bitmap
	if bitmap == nil {
		bitmap = new(big.Int)
	}
	var round uint64
	if seal.Round != nil && seal.Round.IsUint64() {
		round = seal.Round.Uint64()
	}
	return entities.Seal{Bitmap: bitmap, Round: round}
}
