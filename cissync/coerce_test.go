package cissync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCoerceTime_Cascade(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2023-03-15T10:30:00Z", "2023-03-15"},
		{"2023-03-15T10:30:00", "2023-03-15"},
		{"2023-03-15 10:30:00", "2023-03-15"},
		{"2023/03/15 10:30:00", "2023-03-15"},
		{"2023-03-15", "2023-03-15"},
		{"2023/03/15", "2023-03-15"},
	}
	for _, tt := range tests {
		got, ok := CoerceTime(tt.in)
		require.True(t, ok, "input %q", tt.in)
		require.NotNil(t, got, "input %q", tt.in)
		require.Equal(t, tt.want, got.Format("2006-01-02"), "input %q", tt.in)
	}
}

func TestCoerceTime_AbsentAndInvalid(t *testing.T) {
	got, ok := CoerceTime(nil)
	require.True(t, ok)
	require.Nil(t, got)

	got, ok = CoerceTime("   ")
	require.True(t, ok)
	require.Nil(t, got)

	got, ok = CoerceTime("not-a-date")
	require.False(t, ok)
	require.Nil(t, got)

	// time.Time values pass through untouched.
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	got, ok = CoerceTime(now)
	require.True(t, ok)
	require.Equal(t, now, *got)

	got, ok = CoerceTime(time.Time{})
	require.True(t, ok)
	require.Nil(t, got)
}

func TestCoerceTime_TruncatesTrailingJunk(t *testing.T) {
	got, ok := CoerceTime("2023-03-15 10:30:00.000000")
	require.True(t, ok)
	require.Equal(t, "2023-03-15", got.Format("2006-01-02"))
}

func TestCoerceString(t *testing.T) {
	require.Nil(t, CoerceString(nil))
	require.Nil(t, CoerceString("   "))

	s := CoerceString("  hello ")
	require.NotNil(t, s)
	require.Equal(t, "hello", *s)

	// Oracle NUMBER comes back as float64; numeric keys keep integer form.
	s = CoerceString(float64(1234567))
	require.NotNil(t, s)
	require.Equal(t, "1234567", *s)

	s = CoerceString(int64(42))
	require.NotNil(t, s)
	require.Equal(t, "42", *s)

	s = CoerceString([]byte("bytes"))
	require.NotNil(t, s)
	require.Equal(t, "bytes", *s)
}

func TestCoerceString_NormalizesUnicode(t *testing.T) {
	// e + combining acute accent normalizes to the precomposed form.
	s := CoerceString("café")
	require.NotNil(t, s)
	require.Equal(t, "café", *s)
}

func TestCoerceInt64(t *testing.T) {
	require.Nil(t, CoerceInt64(nil))
	require.Nil(t, CoerceInt64("abc"))
	require.Equal(t, int64(7), *CoerceInt64(int64(7)))
	require.Equal(t, int64(7), *CoerceInt64(float64(7)))
	require.Equal(t, int64(7), *CoerceInt64("7"))
}

func TestCoerceFloat64(t *testing.T) {
	require.Nil(t, CoerceFloat64(nil))
	require.Nil(t, CoerceFloat64("abc"))
	require.Equal(t, 1.5, *CoerceFloat64(1.5))
	require.Equal(t, 1.5, *CoerceFloat64("1.5"))
	require.Equal(t, 3.0, *CoerceFloat64(int64(3)))
}

func TestCoerceBool(t *testing.T) {
	require.True(t, CoerceBool("T", false))
	require.True(t, CoerceBool("Y", false))
	require.True(t, CoerceBool("1", false))
	require.True(t, CoerceBool(int64(1), false))
	require.False(t, CoerceBool("F", true))
	require.False(t, CoerceBool("N", true))
	require.False(t, CoerceBool("0", true))
	require.True(t, CoerceBool(nil, true))
	require.False(t, CoerceBool("maybe", false))
}
