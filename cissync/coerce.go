package cissync

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Tolerant coercion of the loosely-typed values the legacy source produces.
// The policy throughout is last-resort-over-reject: a value that cannot be
// coerced becomes "absent" and the caller decides what that means for the
// row, it never raises on its own.

// timeLayouts is the accepted cascade for date-like source values.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// CoerceTime parses a date-like source value through the accepted format
// cascade. ok is false only for a non-empty value that matched no format;
// an absent/empty value returns (nil, true).
func CoerceTime(v any) (*time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case time.Time:
		if t.IsZero() {
			return nil, true
		}
		return &t, true
	case *time.Time:
		if t == nil || t.IsZero() {
			return nil, true
		}
		return t, true
	}

	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return nil, true
	}
	for _, layout := range timeLayouts {
		candidate := s
		if len(candidate) > len(layout) {
			candidate = candidate[:len(layout)]
		}
		if parsed, err := time.Parse(layout, candidate); err == nil {
			return &parsed, true
		}
	}
	return nil, false
}

// CoerceString renders a source value as a trimmed, NFC-normalized string.
// Legacy text arrives in mixed Unicode forms; normalizing here keeps
// natural-key comparisons and stored names stable.
func CoerceString(v any) *string {
	if v == nil {
		return nil
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case []byte:
		s = string(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case int:
		s = strconv.Itoa(t)
	case float64:
		// Oracle NUMBER scans as float64; render without a float tail so
		// numeric natural keys keep their source form.
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(norm.NFC.String(s))
	if s == "" {
		return nil
	}
	return &s
}

// CoerceInt64 extracts an integer from a source value if one is present.
func CoerceInt64(v any) *int64 {
	switch t := v.(type) {
	case nil:
		return nil
	case int64:
		return &t
	case int:
		n := int64(t)
		return &n
	case int32:
		n := int64(t)
		return &n
	case float64:
		n := int64(t)
		return &n
	}
	s := CoerceString(v)
	if s == nil {
		return nil
	}
	n, err := strconv.ParseInt(*s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// CoerceFloat64 extracts a numeric value from a source value if one is present.
func CoerceFloat64(v any) *float64 {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		return &t
	case float32:
		f := float64(t)
		return &f
	case int64:
		f := float64(t)
		return &f
	case int:
		f := float64(t)
		return &f
	}
	s := CoerceString(v)
	if s == nil {
		return nil
	}
	f, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// CoerceBool interprets the source's assorted truthy encodings ('T'/'F',
// 0/1, true/false). def applies when the value is absent or unrecognized.
func CoerceBool(v any, def bool) bool {
	switch t := v.(type) {
	case nil:
		return def
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	}
	s := CoerceString(v)
	if s == nil {
		return def
	}
	switch strings.ToUpper(*s) {
	case "T", "TRUE", "Y", "1":
		return true
	case "F", "FALSE", "N", "0":
		return false
	}
	return def
}
