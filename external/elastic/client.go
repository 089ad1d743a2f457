package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/celo-tools/validator-heartbeat/entities"
	"github.com/elastic/go-elasticsearch/v8"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	index    string
	esClient *elasticsearch.Client
}

func NewClient(addresses []string, username, password, index string, timeout time.Duration) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: timeout,
		},
	}

	esClient, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %v", err)
	}

	return &Client{
		index:    index,
		esClient: esClient,
	}, nil
}

func (es *Client) Name() string {
	return "elastic"
}

// PublishMarks bulk indexes the marks. Document ids are derived from signer and block, so
// publishing the same range twice overwrites instead of duplicating.
func (es *Client) PublishMarks(ctx context.Context, marks []entities.Mark) error {
	if len(marks) == 0 {
		return nil
	}

	var buf bytes.Buffer

	for _, mark := range marks {
		// Metadata line for each document
		meta := []byte(fmt.Sprintf(`{ "index": { "_index": "%s", "_id": "%s" } }%s`, es.index, documentID(mark), "\n"))
		buf.Write(meta)

		data, err := json.Marshal(mark)
		if err != nil {
			return fmt.Errorf("error serializing mark: %w", err)
		}
		buf.Write(data)
		buf.Write([]byte("\n")) // Add a newline between documents
	}

	res, err := es.esClient.Bulk(bytes.NewReader(buf.Bytes()), es.esClient.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk request error: %s", res.String())
	}

	var bulkResponse struct {
		Errors bool `json:"errors"`
	}
	err = json.NewDecoder(res.Body).Decode(&bulkResponse)
	if err != nil {
		return fmt.Errorf("decoding bulk response: %w", err)
	}
	if bulkResponse.Errors {
		return fmt.Errorf("bulk request contained failed items")
	}

	return nil
}

func documentID(mark entities.Mark) string {
	return fmt.Sprintf("%s-%d", strings.ToLower(mark.Signer), mark.BlockNumber)
}
