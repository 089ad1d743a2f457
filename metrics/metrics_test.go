package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/celo-tools/validator-heartbeat/entities"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMetrics_counters(t *testing.T) {
	m := NewRunMetrics("test")

	m.IncFetchedBlocks()
	m.IncFetchedBlocks()
	m.IncElectionCache("miss")
	m.IncElectionCache("hit")
	m.IncElectionCache("hit")
	m.IncMarks(entities.StatusSigned)
	m.IncMarks(entities.StatusMissed)
	m.IncMarks(entities.StatusSigned)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.fetchedBlockCount))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.electionCacheCount.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.electionCacheCount.WithLabelValues("miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.markCount.WithLabelValues("signed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.markCount.WithLabelValues("missed")))
}

func TestRunMetrics_WriteTextfile(t *testing.T) {
	m := NewRunMetrics("test")
	m.SetEndBlock(122)
	m.IncSealCache("miss")

	path := filepath.Join(t.TempDir(), "heartbeat.prom")
	err := m.WriteTextfile(path)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "test_end_block 122")
	assert.Contains(t, string(content), `test_seal_cache_count{result="miss"} 1`)
}
