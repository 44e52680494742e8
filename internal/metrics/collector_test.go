package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotEmpty(t *testing.T) {
	c := NewCollector()
	snap := c.Snapshot()
	assert.Nil(t, snap.LLMGenerate)
	assert.Nil(t, snap.LLMFix)
	assert.Nil(t, snap.BlenderRun)
}

func TestRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpBlenderRun, 2*time.Second)
	c.RecordTiming(OpBlenderRun, 4*time.Second)

	snap := c.Snapshot()
	require.NotNil(t, snap.BlenderRun)
	assert.Equal(t, int64(2), snap.BlenderRun.Count)
	assert.Equal(t, int64(2000), snap.BlenderRun.MinTimeMs)
	assert.Equal(t, int64(4000), snap.BlenderRun.MaxTimeMs)
	assert.Equal(t, 3000.0, snap.BlenderRun.AvgTimeMs)
	assert.Nil(t, snap.BlenderRun.TotalInputTokens)
}

func TestRecordLLMUsage(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpLLMGenerate, time.Second, 1000, 500, 0.05)
	c.RecordLLMUsage(OpLLMGenerate, 3*time.Second, 3000, 1500, 0.15)

	snap := c.Snapshot()
	require.NotNil(t, snap.LLMGenerate)
	require.NotNil(t, snap.LLMGenerate.TotalInputTokens)
	assert.Equal(t, int64(4000), *snap.LLMGenerate.TotalInputTokens)
	assert.Equal(t, int64(1000), *snap.LLMGenerate.MinInputTokens)
	assert.Equal(t, int64(3000), *snap.LLMGenerate.MaxInputTokens)
	assert.Equal(t, 1000.0, *snap.LLMGenerate.AvgOutputTokens)
	require.NotNil(t, snap.LLMGenerate.TotalCostUSD)
	assert.InDelta(t, 0.2, *snap.LLMGenerate.TotalCostUSD, 1e-9)
}
