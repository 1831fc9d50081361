package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchStatus_RankOrder(t *testing.T) {
	for i, s := range batchStatuses {
		assert.Equal(t, i, s.Rank())
	}
	assert.True(t, BatchStatusFailed.IsGreaterThan(BatchStatusStopped))
	assert.True(t, BatchStatusStarting.IsLessThan(BatchStatusStarted))
	assert.Equal(t, BatchStatusAbandoned, MaxBatchStatus(BatchStatusAbandoned, BatchStatusFailed))
	assert.Equal(t, BatchStatusAbandoned, MaxBatchStatus(BatchStatusFailed, BatchStatusAbandoned))
}

func TestBatchStatus_UpgradeToProperties(t *testing.T) {
	for _, a := range batchStatuses {
		for _, b := range batchStatuses {
			got := a.UpgradeTo(b)
			if a.IsGreaterThan(BatchStatusStarted) || b.IsGreaterThan(BatchStatusStarted) {
				assert.Equal(t, MaxBatchStatus(a, b), got, "%s.UpgradeTo(%s)", a, b)
				continue
			}
			either := a == BatchStatusCompleted || b == BatchStatusCompleted
			assert.Equal(t, either, got == BatchStatusCompleted, "%s.UpgradeTo(%s)", a, b)
		}
	}
}

func TestBatchStatus_UpgradeToExamples(t *testing.T) {
	assert.Equal(t, BatchStatusCompleted, BatchStatusStarted.UpgradeTo(BatchStatusCompleted))
	assert.Equal(t, BatchStatusCompleted, BatchStatusCompleted.UpgradeTo(BatchStatusStarting))
	assert.Equal(t, BatchStatusStarted, BatchStatusStarting.UpgradeTo(BatchStatusStarted))
	assert.Equal(t, BatchStatusFailed, BatchStatusCompleted.UpgradeTo(BatchStatusFailed))
	assert.Equal(t, BatchStatusFailed, BatchStatusFailed.UpgradeTo(BatchStatusCompleted))
	assert.Equal(t, BatchStatusStopping, BatchStatusStarted.UpgradeTo(BatchStatusStopping))
}

func TestBatchStatus_Predicates(t *testing.T) {
	assert.True(t, BatchStatusStarting.IsRunning())
	assert.True(t, BatchStatusStarted.IsRunning())
	assert.False(t, BatchStatusStopping.IsRunning())

	assert.False(t, BatchStatusStopped.IsUnsuccessful())
	assert.True(t, BatchStatusFailed.IsUnsuccessful())
	assert.True(t, BatchStatusAbandoned.IsUnsuccessful())
	assert.True(t, BatchStatusUnknown.IsUnsuccessful())
}

func TestMatchBatchStatus(t *testing.T) {
	assert.Equal(t, BatchStatusFailed, MatchBatchStatus("FAILED"))
	assert.Equal(t, BatchStatusStopped, MatchBatchStatus("STOPPED_BY_OPERATOR"))
	assert.Equal(t, BatchStatusStarting, MatchBatchStatus("STARTING"))
	assert.Equal(t, BatchStatusStarted, MatchBatchStatus("STARTED"))
}

// Unmatched labels fall back to Completed, the least severe status. Callers depend on it.
func TestMatchBatchStatus_QuirkDefaultsToCompleted(t *testing.T) {
	assert.Equal(t, BatchStatusCompleted, MatchBatchStatus("garbage"))
	assert.Equal(t, BatchStatusCompleted, MatchBatchStatus(""))
	assert.Equal(t, BatchStatusCompleted, MatchBatchStatus("failed"))
}

func TestParseAndScanBatchStatus(t *testing.T) {
	s, err := ParseBatchStatus("ABANDONED")
	require.NoError(t, err)
	assert.Equal(t, BatchStatusAbandoned, s)

	_, err = ParseBatchStatus("garbage")
	assert.Error(t, err)

	var scanned BatchStatus
	require.NoError(t, scanned.Scan([]byte("STOPPING")))
	assert.Equal(t, BatchStatusStopping, scanned)

	v, err := BatchStatusStarted.Value()
	require.NoError(t, err)
	assert.Equal(t, "STARTED", v)
}
