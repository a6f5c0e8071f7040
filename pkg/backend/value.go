package backend

import (
	"fmt"
	"math"
	"time"
)

// Normalize collapses a backend value to one of string, float64, int64,
// bool or nil. Integers that do not fit int64 become float64; byte slices,
// times, arrays and everything else are rendered as strings.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		return x
	case string:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return fromUint(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return fromUint(x)
	case float32:
		return float64(x)
	case float64:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []byte:
		return fmt.Sprintf("%x", x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func fromUint(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

// DA quality bits.
const (
	DAQualityMask = 0xC0
	DAQualityGood = 0xC0
)

// DAQualityOK reports whether a DA quality word is in the GOOD class.
// Uncertain and bad qualities are not good enough to use.
func DAQualityOK(q uint16) bool {
	return q&DAQualityMask == DAQualityGood
}

// UAStatusOK reports whether a UA status code has Good severity.
func UAStatusOK(code uint32) bool {
	return code&0xC0000000 == 0
}
