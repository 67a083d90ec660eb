package clickhouse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a metric value that survives JSON transport when non-finite.
// NaN and infinities are rendered as the strings "NaN", "Infinity" and
// "-Infinity".
type Value float64

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	case math.IsInf(f, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Infinity"`), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// UnmarshalJSON accepts numbers and the non-finite spellings used by
// ClickHouse (nan, inf, -inf) and by browsers (NaN, Infinity, -Infinity).
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := parseNonFinite(s)
		if err != nil {
			return err
		}
		*v = Value(f)
		return nil
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid metric value %s: %w", data, err)
	}
	*v = Value(f)
	return nil
}

func parseNonFinite(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "nan":
		return math.NaN(), nil
	case "inf", "+inf", "infinity", "+infinity":
		return math.Inf(1), nil
	case "-inf", "-infinity":
		return math.Inf(-1), nil
	}

	// quoted finite numbers (64-bit quoting) still parse
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected string metric value %q", s)
	}
	return f, nil
}

// LogGroup returns the prefix of logName before its last '/', or "" when
// the name has no group.
func LogGroup(logName string) string {
	i := strings.LastIndexByte(logName, '/')
	if i < 0 {
		return ""
	}
	return logName[:i]
}
