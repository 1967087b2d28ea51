package cissync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeRow(t *testing.T) {
	row := NormalizeRow(
		[]string{"REQUEST_NO", "Customer_ID", "installation_fee"},
		[]any{[]byte("REQ001"), float64(42), 1500.5},
	)

	require.Equal(t, "REQ001", row["request_no"])
	require.Equal(t, float64(42), row["customer_id"])
	require.Equal(t, 1500.5, row["installation_fee"])

	_, upper := row["REQUEST_NO"]
	require.False(t, upper)
}
