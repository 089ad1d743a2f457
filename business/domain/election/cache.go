package election

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/celo-tools/validator-heartbeat/entities"
	"github.com/celo-tools/validator-heartbeat/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Provider interface {
	GetValidatorSigners(ctx context.Context, blockNumber uint64) ([]common.Address, error)
}

// Store persists elected signer sets across runs.
type Store interface {
	GetElectedSigners(epoch uint64) ([]common.Address, error)
	SetElectedSigners(epoch uint64, signers []common.Address) error
}

// ResultsCache answers whether a signer was elected for a block and whether it signed the block.
// Elected sets are cached per epoch, seal bitmaps per block, both for the lifetime of the cache.
type ResultsCache struct {
	provider   Provider
	store      Store
	notStored  error
	epochSize  uint64
	boundary   EpochBoundary
	electedSet *ttlcache.Cache[uint64, *entities.ElectedSet]
	electedMux sync.Mutex
	seals      *ttlcache.Cache[sealKey, entities.Seal]
	sealMux    sync.Mutex
	metrics    *metrics.RunMetrics
	logger     *zap.SugaredLogger
}

// StoreScope identifies what stored epoch numbers mean: the chain, by its genesis hash, and the
// epoch numbering. Stores must not share entries between scopes.
func StoreScope(genesis common.Hash, epochSize uint64, boundary EpochBoundary) string {
	return fmt.Sprintf("%s/%s/%d", genesis.Hex(), boundary, epochSize)
}

type sealSource int

const (
	sealOwn sealSource = iota
	sealFromChild
)

// sealKey identifies a cached seal by the block it seals and the block it was read from.
type sealKey struct {
	source sealSource
	number uint64
}

type Option func(*ResultsCache)

// WithStore adds a persistent layer behind the in-memory cache. notStored is the sentinel the
// store returns for unknown epochs.
func WithStore(store Store, notStored error) Option {
	return func(c *ResultsCache) {
		c.store = store
		c.notStored = notStored
	}
}

func NewResultsCache(provider Provider, epochSize uint64, boundary EpochBoundary, m *metrics.RunMetrics,
	logger *zap.SugaredLogger, opts ...Option) (*ResultsCache, error) {

	if epochSize == 0 {
		return nil, errors.New("invalid epoch size 0")
	}

	c := ResultsCache{
		provider:  provider,
		epochSize: epochSize,
		boundary:  boundary,
		electedSet: ttlcache.New[uint64, *entities.ElectedSet](
			ttlcache.WithTTL[uint64, *entities.ElectedSet](ttlcache.NoTTL),
		),
		seals: ttlcache.New[sealKey, entities.Seal](
			ttlcache.WithTTL[sealKey, entities.Seal](ttlcache.NoTTL),
		),
		metrics: m,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return &c, nil
}

func (c *ResultsCache) EpochSize() uint64 {
	return c.epochSize
}

func (c *ResultsCache) EpochNumber(blockNumber uint64) uint64 {
	return c.boundary.EpochNumber(blockNumber, c.epochSize)
}

// Elected reports whether the signer is part of the elected set of the epoch containing the block.
func (c *ResultsCache) Elected(ctx context.Context, signer common.Address, blockNumber uint64) (bool, error) {
	set, err := c.electedSigners(ctx, blockNumber)
	if err != nil {
		return false, errors.Wrapf(err, "getting elected signers for block [%d]", blockNumber)
	}
	return set.Contains(signer), nil
}

// Signed reports whether the signer contributed to the block's aggregated seal. Signers that are
// not elected for the block's epoch never signed it. The first seal seen for a block number is
// kept, later block objects with the same number are answered from it.
func (c *ResultsCache) Signed(ctx context.Context, signer common.Address, block *entities.Block) (bool, error) {
	set, err := c.electedSigners(ctx, block.Number)
	if err != nil {
		return false, errors.Wrapf(err, "getting elected signers for block [%d]", block.Number)
	}
	index, ok := set.IndexOf(signer)
	if !ok {
		return false, nil
	}

	return c.seal(sealKey{source: sealOwn, number: block.Number}, block.AggregatedSeal).HasSigner(index), nil
}

// SignedParent reports whether the signer contributed to the parent seal carried by the block,
// i.e. whether it signed block.Number-1. Parent seals are cached apart from the blocks' own seals,
// the first one seen per parent number is kept.
func (c *ResultsCache) SignedParent(ctx context.Context, signer common.Address, block *entities.Block) (bool, error) {
	if block.Number == 0 {
		return false, nil
	}
	parent := block.Number - 1

	set, err := c.electedSigners(ctx, parent)
	if err != nil {
		return false, errors.Wrapf(err, "getting elected signers for block [%d]", parent)
	}
	index, ok := set.IndexOf(signer)
	if !ok {
		return false, nil
	}

	return c.seal(sealKey{source: sealFromChild, number: parent}, block.ParentAggregatedSeal).HasSigner(index), nil
}

// seal returns the cached seal of the block, caching the given one on first sight.
func (c *ResultsCache) seal(key sealKey, seal entities.Seal) entities.Seal {
	c.sealMux.Lock()
	defer c.sealMux.Unlock()

	item := c.seals.Get(key)
	if item != nil {
		c.metrics.IncSealCache("hit")
		return item.Value()
	}

	c.metrics.IncSealCache("miss")
	if seal.Bitmap == nil {
		seal.Bitmap = new(big.Int)
	}
	c.seals.Set(key, seal, ttlcache.NoTTL)
	return seal
}

func (c *ResultsCache) electedSigners(ctx context.Context, blockNumber uint64) (*entities.ElectedSet, error) {
	epoch := c.EpochNumber(blockNumber)

	c.electedMux.Lock() // lock so that we do not load the same epoch twice
	defer c.electedMux.Unlock()

	item := c.electedSet.Get(epoch)
	if item != nil {
		c.metrics.IncElectionCache("hit")
		return item.Value(), nil
	}

	signers, err := c.loadStored(epoch)
	if err != nil {
		return nil, err
	}
	if signers != nil {
		c.metrics.IncElectionCache("store")
	} else {
		c.metrics.IncElectionCache("miss")
		signers, err = c.provider.GetValidatorSigners(ctx, blockNumber)
		if err != nil {
			return nil, errors.Wrapf(err, "fetching validator signers for epoch [%d]", epoch)
		}
		if c.store != nil {
			err = c.store.SetElectedSigners(epoch, signers)
			if err != nil {
				return nil, errors.Wrapf(err, "storing elected signers for epoch [%d]", epoch)
			}
		}
		c.logger.Debugw("Loaded elected signers", "epoch", epoch, "block", blockNumber, "signers", len(signers))
	}

	set := entities.NewElectedSet(epoch, signers)
	c.electedSet.Set(epoch, set, ttlcache.NoTTL)
	return set, nil
}

// loadStored returns nil signers if there is no store or the epoch is not stored.
func (c *ResultsCache) loadStored(epoch uint64) ([]common.Address, error) {
	if c.store == nil {
		return nil, nil
	}
	signers, err := c.store.GetElectedSigners(epoch)
	if c.notStored != nil && errors.Is(err, c.notStored) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading stored elected signers for epoch [%d]", epoch)
	}
	if signers == nil {
		signers = []common.Address{}
	}
	return signers, nil
}
