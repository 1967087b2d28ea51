package cissync

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeRunStatus_Boundaries(t *testing.T) {
	tests := []struct {
		name      string
		processed int64
		failed    int64
		want      RunStatus
	}{
		{"empty run succeeds", 0, 0, RunSuccess},
		{"no failures", 10, 0, RunSuccess},
		{"exactly 10 percent is success", 10, 1, RunSuccess},
		{"just above 10 percent is partial", 10, 2, RunPartial},
		{"exactly 90 percent is partial", 10, 9, RunPartial},
		{"90 of 100 is partial", 100, 90, RunPartial},
		{"91 of 100 is failed", 100, 91, RunFailed},
		{"all failed", 10, 10, RunFailed},
		{"single row failed", 1, 1, RunFailed},
		{"single row ok", 1, 0, RunSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := computeRunStatus(tt.processed, tt.failed, nil)
			require.Equal(t, tt.want, status)
			if tt.want == RunSuccess {
				require.Nil(t, msg)
			} else {
				require.NotNil(t, msg)
			}
		})
	}
}

func TestComputeRunStatus_ErrorOverride(t *testing.T) {
	status, msg := computeRunStatus(100, 0, errors.New("source iteration: connection lost"))
	require.Equal(t, RunFailed, status)
	require.NotNil(t, msg)
	require.Contains(t, *msg, "connection lost")
}
