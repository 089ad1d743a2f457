package kafka

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/celo-tools/validator-heartbeat/entities"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"sync"
)

type KafkaClient interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

type Client struct {
	kcl    KafkaClient
	logger *zap.SugaredLogger
}

func NewClient(kafkaClient KafkaClient, logger *zap.SugaredLogger) *Client {
	return &Client{
		kcl:    kafkaClient,
		logger: logger,
	}
}

func (kc *Client) Name() string {
	return "kafka"
}

// PublishMarks produces one record per mark and waits for all of them to be acknowledged.
func (kc *Client) PublishMarks(ctx context.Context, marks []entities.Mark) error {

	wg := sync.WaitGroup{}
	errorChannel := make(chan error, len(marks))

	for _, mark := range marks {

		record, err := createMarkRecord(mark)
		if err != nil {
			kc.logger.Errorw("Error while creating mark record", "block", mark.BlockNumber, "error", err)
			errorChannel <- err
			break
		}

		wg.Add(1)
		kc.kcl.Produce(ctx, record, func(_ *kgo.Record, err error) {
			defer wg.Done()
			if err != nil {
				kc.logger.Errorw("Error while producing mark record", "block", mark.BlockNumber, "error", err)
				errorChannel <- err
				return
			}
			errorChannel <- nil
		})
	}

	wg.Wait()
	close(errorChannel)

	for err := range errorChannel {
		if err != nil {
			return errors.New("encountered errors while producing mark records")
		}
	}

	return nil
}

func createMarkRecord(mark entities.Mark) (*kgo.Record, error) {

	payload, err := json.Marshal(mark)
	if err != nil {
		return nil, fmt.Errorf("marshalling mark to json: %w", err)
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, mark.BlockNumber)

	return &kgo.Record{
		Key:   key,
		Value: payload,
	}, nil

}
