package kafka

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"github.com/celo-tools/validator-heartbeat/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"sync"
	"testing"
)

type MockKafkaClient struct {
	shouldError bool
	mutex       sync.Mutex
	records     []*kgo.Record
}

func (mkc *MockKafkaClient) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {

	if mkc.shouldError {
		go promise(nil, errors.New("dummy error"))
		return
	}

	mkc.mutex.Lock()
	mkc.records = append(mkc.records, r)
	mkc.mutex.Unlock()
	go promise(r, nil)
}

func testMarks() []entities.Mark {
	signer := "0x5409ED021D9299bf6814279A6A1411A7e866A631"
	return []entities.Mark{
		{Signer: signer, BlockNumber: 120, Epoch: 1, Elected: true, Signed: true, Status: entities.StatusSigned},
		{Signer: signer, BlockNumber: 121, Epoch: 1, Elected: true, Signed: false, Status: entities.StatusMissed},
		{Signer: signer, BlockNumber: 122, Epoch: 1, Elected: false, Signed: false, Status: entities.StatusAbsent},
	}
}

func TestClient_PublishMarks(t *testing.T) {

	testData := []struct {
		name        string
		marks       []entities.Mark
		shouldError bool
	}{
		{
			name:  "TestPublishMarks_1",
			marks: testMarks(),
		},
		{
			name:        "TestPublishMarks_2",
			marks:       testMarks(),
			shouldError: true,
		},
		{
			name:  "TestPublishMarks_3",
			marks: []entities.Mark{},
		},
	}

	for _, testRun := range testData {
		t.Run(testRun.name, func(t *testing.T) {
			mockKafkaClient := MockKafkaClient{shouldError: testRun.shouldError}
			kafkaClient := NewClient(&mockKafkaClient, zap.NewNop().Sugar())

			err := kafkaClient.PublishMarks(context.Background(), testRun.marks)
			if testRun.shouldError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, mockKafkaClient.records, len(testRun.marks))
		})
	}
}

func TestCreateMarkRecord(t *testing.T) {
	mark := testMarks()[1]

	record, err := createMarkRecord(mark)
	require.NoError(t, err)

	assert.Equal(t, uint64(121), binary.BigEndian.Uint64(record.Key))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(record.Value, &decoded))
	assert.Equal(t, "missed", decoded["status"])
	assert.Equal(t, 121.0, decoded["blockNumber"])
	assert.Equal(t, true, decoded["elected"])
}
