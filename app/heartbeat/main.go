package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/celo-tools/validator-heartbeat/business/domain/election"
	"github.com/celo-tools/validator-heartbeat/business/domain/heartbeat"
	"github.com/celo-tools/validator-heartbeat/business/domain/timeline"
	"github.com/celo-tools/validator-heartbeat/entities"
	"github.com/celo-tools/validator-heartbeat/external/celo"
	"github.com/celo-tools/validator-heartbeat/external/elastic"
	"github.com/celo-tools/validator-heartbeat/external/kafka"
	"github.com/celo-tools/validator-heartbeat/infrastructure/store/pebbledb"
	"github.com/celo-tools/validator-heartbeat/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const prefix = "CELO_HEARTBEAT"

func main() {
	if err := run(); err != nil {
		log.Fatalf("main: exited with error: %s", err.Error())
	}
}

func run() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env file: %v", err)
	}

	var cfg struct {
		Signer         string        `conf:"required"`
		AtBlock        uint64
		Follow         bool          `conf:"default:false,short:f"`
		Lookback       uint64        `conf:"default:120"`
		Width          uint64        `conf:"default:40"`
		NoColor        bool          `conf:"default:false"`
		SealSource     string        `conf:"default:aggregated"`
		LogLevel       string        `conf:"default:info"`
		PublishTimeout time.Duration `conf:"default:1m"`
		Node           struct {
			Url         string        `conf:"default:http://localhost:8545"`
			ReadTimeout time.Duration `conf:"default:20s"`
		}
		Epoch struct {
			// queried from the chain if not set
			Size     uint64
			Boundary string `conf:"default:last-block"`
		}
		Sync struct {
			NumWorkers int `conf:"default:10"`
			CacheDir   string
		}
		Kafka struct {
			BootstrapServers []string
			Topic            string `conf:"default:celo-validator-heartbeat"`
		}
		Elastic struct {
			Addresses []string
			Index     string        `conf:"default:celo-validator-heartbeat"`
			Username  string
			Password  string        `conf:"mask"`
			Timeout   time.Duration `conf:"default:30s"`
		}
		Metrics struct {
			Textfile  string
			Namespace string `conf:"default:celo_heartbeat"`
		}
	}

	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %v", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %v", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %v", err)
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level: %v", err)
	}
	config := zap.NewProductionConfig()
	// this is just for sugar, to display a readable date instead of an epoch time
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)
	config.Level = level
	// stdout belongs to the timeline
	config.OutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("creating logger: %v", err)
	}
	defer logger.Sync()
	sLogger := logger.Sugar()

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %v", err)
	}
	sLogger.Debugf("main: Config :\n%v\n", out)

	err = validate(cfg.Signer, cfg.AtBlock, cfg.Follow)
	if err != nil {
		return errors.Wrap(err, "validating config")
	}
	boundary, err := election.ParseEpochBoundary(cfg.Epoch.Boundary)
	if err != nil {
		return errors.Wrap(err, "parsing epoch boundary")
	}
	sealSource, err := heartbeat.ParseSealSource(cfg.SealSource)
	if err != nil {
		return errors.Wrap(err, "parsing seal source")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runMetrics := metrics.NewRunMetrics(cfg.Metrics.Namespace)

	chainClient, err := celo.NewClient(ctx, cfg.Node.Url)
	if err != nil {
		return errors.Wrap(err, "creating chain client")
	}
	defer chainClient.Close()

	epochSize := cfg.Epoch.Size
	if epochSize == 0 {
		epochSize, err = func() (uint64, error) {
			ctx, cancel := context.WithTimeout(ctx, cfg.Node.ReadTimeout)
			defer cancel()
			return chainClient.GetEpochSize(ctx)
		}()
		if err != nil {
			return errors.Wrap(err, "getting epoch size")
		}
	}

	var cacheOpts []election.Option
	if cfg.Sync.CacheDir != "" {
		genesis, err := func() (*entities.Block, error) {
			ctx, cancel := context.WithTimeout(ctx, cfg.Node.ReadTimeout)
			defer cancel()
			return chainClient.GetBlock(ctx, 0)
		}()
		if err != nil {
			return errors.Wrap(err, "getting genesis block")
		}

		scope := election.StoreScope(genesis.Hash, epochSize, boundary)
		store, err := pebbledb.NewElectionStore(cfg.Sync.CacheDir, scope)
		if err != nil {
			return errors.Wrap(err, "creating election store")
		}
		defer store.Close()

		storedEpochs, err := store.GetStoredEpochs()
		if err != nil {
			return errors.Wrap(err, "listing stored epochs")
		}
		if len(storedEpochs) > 0 {
			sLogger.Debugw("Opened election store", "scope", scope, "epochs", len(storedEpochs),
				"first", storedEpochs[0], "last", storedEpochs[len(storedEpochs)-1])
		} else {
			sLogger.Debugw("Opened empty election store", "scope", scope)
		}
		cacheOpts = append(cacheOpts, election.WithStore(store, pebbledb.ErrNotFound))
	}

	cache, err := election.NewResultsCache(chainClient, epochSize, boundary, runMetrics, sLogger, cacheOpts...)
	if err != nil {
		return errors.Wrap(err, "creating election results cache")
	}

	glyphs := timeline.ColorGlyphs()
	if cfg.NoColor {
		glyphs = timeline.PlainGlyphs
	}
	printer, err := timeline.NewMarkPrinter(os.Stdout, cfg.Width, glyphs)
	if err != nil {
		return errors.Wrap(err, "creating mark printer")
	}

	var publishers []heartbeat.Publisher
	if len(cfg.Kafka.BootstrapServers) > 0 {
		kcl, err := kgo.NewClient(
			kgo.DefaultProduceTopic(cfg.Kafka.Topic),
			kgo.SeedBrokers(cfg.Kafka.BootstrapServers...),
			kgo.ProducerBatchCompression(kgo.ZstdCompression()),
			kgo.WithHooks(kprom.NewMetrics(cfg.Metrics.Namespace,
				kprom.Registerer(runMetrics.Registry()),
				kprom.Gatherer(runMetrics.Registry()),
			)),
		)
		if err != nil {
			return errors.Wrap(err, "creating kafka client")
		}
		defer kcl.Close()
		publishers = append(publishers, kafka.NewClient(kcl, sLogger))
	}
	if len(cfg.Elastic.Addresses) > 0 {
		esClient, err := elastic.NewClient(cfg.Elastic.Addresses, cfg.Elastic.Username, cfg.Elastic.Password,
			cfg.Elastic.Index, cfg.Elastic.Timeout)
		if err != nil {
			return errors.Wrap(err, "creating elastic client")
		}
		publishers = append(publishers, esClient)
	}

	proc := heartbeat.NewProcessor(chainClient, cfg.Node.ReadTimeout, cache, printer, publishers, cfg.PublishTimeout,
		sealSource, cfg.Sync.NumWorkers, runMetrics, sLogger)

	summary, err := proc.Run(ctx, heartbeat.Request{
		Signer:   common.HexToAddress(cfg.Signer),
		AtBlock:  cfg.AtBlock,
		Lookback: cfg.Lookback,
	})
	if err != nil {
		return errors.Wrap(err, "running heartbeat")
	}
	sLogger.Infow("Heartbeat rendered", "from", summary.FirstBlock, "to", summary.LastBlock,
		"elected", summary.Elected, "signed", summary.Signed, "missed", summary.Missed)

	if cfg.Metrics.Textfile != "" {
		err = runMetrics.WriteTextfile(cfg.Metrics.Textfile)
		if err != nil {
			return errors.Wrap(err, "writing metrics textfile")
		}
	}

	return nil
}

func validate(signer string, atBlock uint64, follow bool) error {
	if !common.IsHexAddress(signer) {
		return errors.Errorf("invalid signer address [%s]", signer)
	}
	if follow && atBlock != 0 {
		return errors.New("follow and at-block cannot be combined")
	}
	if follow {
		return errors.New("follow mode is not implemented")
	}
	return nil
}
