package celo

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeExtra(t *testing.T, extra istanbulExtra) []byte {
	payload, err := rlp.EncodeToBytes(extra)
	require.NoError(t, err)
	return append(make([]byte, istanbulExtraVanity), payload...)
}

func TestDecodeIstanbulExtra(t *testing.T) {
	extraData := encodeExtra(t, istanbulExtra{
		AddedValidators:           []common.Address{common.HexToAddress("0x5409ED021D9299bf6814279A6A1411A7e866A631")},
		AddedValidatorsPublicKeys: [][blsPublicKeyLength]byte{{1, 2, 3}},
		RemovedValidators:         big.NewInt(0),
		Seal:                      []byte{0xaa},
		AggregatedSeal: istanbulAggregatedSeal{
			Bitmap:    big.NewInt(0b1011),
			Signature: []byte{0x01, 0x02},
			Round:     big.NewInt(2),
		},
		ParentAggregatedSeal: istanbulAggregatedSeal{
			Bitmap:    big.NewInt(0b0110),
			Signature: []byte{0x03},
			Round:     big.NewInt(0),
		},
	})

	extra, err := decodeIstanbulExtra(extraData)
	require.NoError(t, err)

	seal := toSeal(extra.AggregatedSeal)
	assert.Equal(t, uint64(2), seal.Round)
	assert.True(t, seal.HasSigner(0))
	assert.True(t, seal.HasSigner(1))
	assert.False(t, seal.HasSigner(2))
	assert.True(t, seal.HasSigner(3))

	parent := toSeal(extra.ParentAggregatedSeal)
	assert.Equal(t, 0, parent.Bitmap.Cmp(big.NewInt(0b0110)))
	assert.Len(t, extra.AddedValidators, 1)
}

func TestDecodeIstanbulExtra_givenShortData_thenError(t *testing.T) {
	_, err := decodeIstanbulExtra(make([]byte, 12))
	require.Error(t, err)
}

func TestDecodeIstanbulExtra_givenGarbage_thenError(t *testing.T) {
	_, err := decodeIstanbulExtra(append(make([]byte, istanbulExtraVanity), 0xff, 0x01))
	require.Error(t, err)
}

func TestToSeal_givenEmptySeal_thenEmptyBitmap(t *testing.T) {
	seal := toSeal(istanbulAggregatedSeal{})
	require.NotNil(t, seal.Bitmap)
	assert.Equal(t, 0, seal.Bitmap.Sign())
	assert.Equal(t, uint64(0), seal.Round)
}
