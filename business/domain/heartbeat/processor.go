package heartbeat

import (
	"context"
	"time"

	"github.com/celo-tools/validator-heartbeat/entities"
	"github.com/celo-tools/validator-heartbeat/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type BlockFetcher interface {
	GetBlock(ctx context.Context, number uint64) (*entities.Block, error)
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
}

type ElectionCache interface {
	EpochNumber(blockNumber uint64) uint64
	Elected(ctx context.Context, signer common.Address, blockNumber uint64) (bool, error)
	Signed(ctx context.Context, signer common.Address, block *entities.Block) (bool, error)
	SignedParent(ctx context.Context, signer common.Address, block *entities.Block) (bool, error)
}

type Printer interface {
	AddMark(blockNumber uint64, elected, signed bool) error
	Done() error
}

type Publisher interface {
	Name() string
	PublishMarks(ctx context.Context, marks []entities.Mark) error
}

// SealSource selects where the signers of a block are read from.
type SealSource string

const (
	// SealAggregated reads the seal stored in the block itself.
	SealAggregated SealSource = "aggregated"
	// SealParent reads the seal of block n from block n+1, which is final once n+1 is mined.
	SealParent SealSource = "parent"
)

func ParseSealSource(value string) (SealSource, error) {
	switch SealSource(value) {
	case SealAggregated, SealParent:
		return SealSource(value), nil
	default:
		return "", errors.Errorf("unknown seal source [%s], expected aggregated or parent", value)
	}
}

type Request struct {
	Signer   common.Address
	AtBlock  uint64 // 0 means chain head
	Lookback uint64
}

type Summary struct {
	FirstBlock uint64
	LastBlock  uint64
	Blocks     int
	Elected    int
	Signed     int
	Missed     int
}

type Processor struct {
	fetcher        BlockFetcher
	fetchTimeout   time.Duration
	cache          ElectionCache
	printer        Printer
	publishers     []Publisher
	publishTimeout time.Duration
	sealSource     SealSource
	numWorkers     int
	metrics        *metrics.RunMetrics
	logger         *zap.SugaredLogger
}

func NewProcessor(
	fetcher BlockFetcher,
	fetchTimeout time.Duration,
	cache ElectionCache,
	printer Printer,
	publishers []Publisher,
	publishTimeout time.Duration,
	sealSource SealSource,
	numWorkers int,
	m *metrics.RunMetrics,
	logger *zap.SugaredLogger,
) *Processor {
	return &Processor{
		fetcher:        fetcher,
		fetchTimeout:   fetchTimeout,
		cache:          cache,
		printer:        printer,
		publishers:     publishers,
		publishTimeout: publishTimeout,
		sealSource:     sealSource,
		numWorkers:     max(numWorkers, 1),
		metrics:        m,
		logger:         logger,
	}
}

// Run renders the heartbeat of the signer for the requested window. The printer is always
// finished, also if fetching or rendering fails half way.
func (p *Processor) Run(ctx context.Context, req Request) (summary *Summary, err error) {
	defer func() {
		doneErr := p.printer.Done()
		if err == nil && doneErr != nil {
			err = errors.Wrap(doneErr, "finishing printer")
		}
	}()

	if req.Lookback == 0 {
		return nil, errors.New("invalid lookback 0")
	}

	first, last, err := p.window(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "calculating block window")
	}
	p.metrics.SetEndBlock(last)
	p.logger.Debugw("Rendering heartbeat", "signer", req.Signer.Hex(), "from", first, "to", last, "seal", p.sealSource)

	// the parent seal of block n is stored in block n+1
	offset := uint64(0)
	if p.sealSource == SealParent {
		offset = 1
	}
	blocks, err := p.fetchBlocks(ctx, first+offset, last+offset)
	if err != nil {
		return nil, errors.Wrap(err, "fetching blocks")
	}

	marks, err := p.render(ctx, req.Signer, blocks)
	if err != nil {
		return nil, errors.Wrap(err, "rendering marks")
	}

	err = p.publish(ctx, marks)
	if err != nil {
		return nil, errors.Wrap(err, "publishing marks")
	}

	return summarize(first, last, marks), nil
}

func (p *Processor) window(ctx context.Context, req Request) (uint64, uint64, error) {
	last := req.AtBlock
	if last == 0 {
		latest, err := func() (uint64, error) {
			ctx, cancel := withTimeout(ctx, p.fetchTimeout)
			defer cancel()
			return p.fetcher.GetLatestBlockNumber(ctx)
		}()
		if err != nil {
			return 0, 0, errors.Wrap(err, "getting latest block")
		}
		last = latest
		if p.sealSource == SealParent {
			if latest == 0 {
				return 0, 0, errors.New("chain head has no child block carrying its seal")
			}
			last = latest - 1
		}
	}

	first := uint64(0)
	if req.Lookback <= last {
		first = last - req.Lookback + 1
	} else {
		p.logger.Warnw("Lookback exceeds chain height, starting at genesis", "lookback", req.Lookback, "last", last)
	}
	return first, last, nil
}

// fetchBlocks fetches the inclusive range with up to numWorkers requests in flight. The result is
// ordered by block number.
func (p *Processor) fetchBlocks(ctx context.Context, from, to uint64) ([]*entities.Block, error) {
	blocks := make([]*entities.Block, to-from+1)

	errorGroup, ctx := errgroup.WithContext(ctx)
	errorGroup.SetLimit(p.numWorkers)
	for i := range blocks {
		number := from + uint64(i)
		errorGroup.Go(func() error {
			ctx, cancel := withTimeout(ctx, p.fetchTimeout)
			defer cancel()

			block, err := p.fetcher.GetBlock(ctx, number)
			if err != nil {
				return errors.Wrapf(err, "get block [%d]", number)
			}
			if block.Number != number {
				return errors.Errorf("requested block [%d] but got [%d]", number, block.Number)
			}
			blocks[i] = block
			p.metrics.IncFetchedBlocks()
			return nil
		})
	}

	err := errorGroup.Wait()
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

func (p *Processor) render(ctx context.Context, signer common.Address, blocks []*entities.Block) ([]entities.Mark, error) {
	marks := make([]entities.Mark, 0, len(blocks))
	for _, block := range blocks {
		number := block.Number
		if p.sealSource == SealParent {
			number = block.Number - 1
		}

		elected, err := p.cache.Elected(ctx, signer, number)
		if err != nil {
			return marks, errors.Wrapf(err, "checking election for block [%d]", number)
		}
		signed := false
		if elected {
			signed, err = p.signed(ctx, signer, block)
			if err != nil {
				return marks, errors.Wrapf(err, "checking signature for block [%d]", number)
			}
		}

		err = p.printer.AddMark(number, elected, signed)
		if err != nil {
			return marks, errors.Wrapf(err, "printing mark for block [%d]", number)
		}

		mark := entities.Mark{
			Signer:      signer.Hex(),
			BlockNumber: number,
			Epoch:       p.cache.EpochNumber(number),
			Elected:     elected,
			Signed:      signed,
			Status:      entities.NewMarkStatus(elected, signed),
		}
		p.metrics.IncMarks(mark.Status)
		marks = append(marks, mark)
	}
	return marks, nil
}

func (p *Processor) signed(ctx context.Context, signer common.Address, block *entities.Block) (bool, error) {
	if p.sealSource == SealParent {
		return p.cache.SignedParent(ctx, signer, block)
	}
	return p.cache.Signed(ctx, signer, block)
}

func (p *Processor) publish(ctx context.Context, marks []entities.Mark) error {
	for _, publisher := range p.publishers {
		err := func() error {
			ctx, cancel := withTimeout(ctx, p.publishTimeout)
			defer cancel()
			return publisher.PublishMarks(ctx, marks)
		}()
		if err != nil {
			return errors.Wrapf(err, "publishing to %s", publisher.Name())
		}
		p.logger.Infow("Published marks", "publisher", publisher.Name(), "marks", len(marks))
	}
	return nil
}

// withTimeout only limits the context for positive timeouts.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func summarize(first, last uint64, marks []entities.Mark) *Summary {
	summary := Summary{FirstBlock: first, LastBlock: last, Blocks: len(marks)}
	for _, mark := range marks {
		switch mark.Status {
		case entities.StatusSigned:
			summary.Elected++
			summary.Signed++
		case entities.StatusMissed:
			summary.Elected++
			summary.Missed++
		}
	}
	return &summary
}
