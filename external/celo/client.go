package celo

import (
	"context"
	"math/big"
	"sync"

	"github.com/celo-tools/validator-heartbeat/entities"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

const latestBlock = "latest"

type Client struct {
	rpc             *rpc.Client
	electionAddress common.Address
	electionMux     sync.Mutex
}

func NewClient(ctx context.Context, url string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing node [%s]", url)
	}

	return &Client{rpc: rpcClient}, nil
}

type rpcBlock struct {
	Number     hexutil.Uint64 `json:"number"`
	Hash       common.Hash    `json:"hash"`
	ParentHash common.Hash    `json:"parentHash"`
	Timestamp  hexutil.Uint64 `json:"timestamp"`
	ExtraData  hexutil.Bytes  `json:"extraData"`
}

func (c *Client) GetBlock(ctx context.Context, number uint64) (*entities.Block, error) {
	var block *rpcBlock
	err := c.rpc.CallContext(ctx, &block, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false)
	if err != nil {
		return nil, errors.Wrapf(err, "getting block [%d]", number)
	}
	if block == nil {
		return nil, errors.Wrapf(entities.ErrBlockNotFound, "block [%d]", number)
	}

	converted, err := convertBlock(block)
	if err != nil {
		return nil, errors.Wrapf(err, "converting block [%d]", number)
	}
	return converted, nil
}

func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	var number hexutil.Uint64
	err := c.rpc.CallContext(ctx, &number, "eth_blockNumber")
	if err != nil {
		return 0, errors.Wrap(err, "getting latest block number")
	}
	return uint64(number), nil
}

// GetValidatorSigners returns the signers of the validator set in effect at the given block, in
// seal bitmap order.
func (c *Client) GetValidatorSigners(ctx context.Context, blockNumber uint64) ([]common.Address, error) {
	election, err := c.election(ctx)
	if err != nil {
		return nil, err
	}

	values, err := c.callContract(ctx, election, electionABI, "getCurrentValidatorSigners", hexutil.EncodeUint64(blockNumber))
	if err != nil {
		return nil, errors.Wrapf(err, "getting validator signers at block [%d]", blockNumber)
	}
	signers, ok := values[0].([]common.Address)
	if !ok {
		return nil, errors.Errorf("unexpected validator signers type %T", values[0])
	}
	return signers, nil
}

func (c *Client) GetEpochSize(ctx context.Context) (uint64, error) {
	election, err := c.election(ctx)
	if err != nil {
		return 0, err
	}

	values, err := c.callContract(ctx, election, electionABI, "getEpochSize", latestBlock)
	if err != nil {
		return 0, errors.Wrap(err, "getting epoch size")
	}
	size, ok := values[0].(*big.Int)
	if !ok || !size.IsUint64() {
		return 0, errors.Errorf("unexpected epoch size %v", values[0])
	}
	return size.Uint64(), nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

// election resolves the election contract through the registry once.
func (c *Client) election(ctx context.Context) (common.Address, error) {
	c.electionMux.Lock()
	defer c.electionMux.Unlock()

	if c.electionAddress != (common.Address{}) {
		return c.electionAddress, nil
	}

	values, err := c.callContract(ctx, RegistryAddress, registryABI, "getAddressForString", latestBlock, electionRegistryID)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "resolving election contract")
	}
	address, ok := values[0].(common.Address)
	if !ok || address == (common.Address{}) {
		return common.Address{}, errors.Errorf("election contract not registered: %v", values[0])
	}

	c.electionAddress = address
	return address, nil
}

func (c *Client) callContract(ctx context.Context, to common.Address, contract abi.ABI, method string, block string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "packing %s call", method)
	}

	callArgs := map[string]interface{}{
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	var result hexutil.Bytes
	err = c.rpc.CallContext(ctx, &result, "eth_call", callArgs, block)
	if err != nil {
		return nil, errors.Wrapf(err, "calling %s", method)
	}

	values, err := contract.Unpack(method, result)
	if err != nil {
		return nil, errors.Wrapf(err, "unpacking %s result", method)
	}
	if len(values) == 0 {
		return nil, errors.Errorf("empty %s result", method)
	}
	return values, nil
}

func convertBlock(block *rpcBlock) (*entities.Block, error) {
	converted := entities.Block{
		Number:     uint64(block.Number),
		Hash:       block.Hash,
		ParentHash: block.ParentHash,
		Timestamp:  uint64(block.Timestamp),
	}

	// the genesis block carries no seals
	if block.Number == 0 {
		converted.AggregatedSeal = entities.Seal{Bitmap: new(big.Int)}
		converted.ParentAggregatedSeal = entities.Seal{Bitmap: new(big.Int)}
		return &converted, nil
	}

	extra, err := decodeIstanbulExtra(block.ExtraData)
	if err != nil {
		return nil, errors.Wrap(err, "decoding extra data")
	}
	converted.AggregatedSeal = toSeal(extra.AggregatedSeal)
	converted.ParentAggregatedSeal = toSeal(extra.ParentAggregatedSeal)
	return &converted, nil
}
