package vtrade

import "github.com/shopspring/decimal"

// D is a convenient factory for decimal.Decimal.
//
// Floats are converted using their shortest representation, so D(0.92) is
// exactly 0.92.
func D[T float32 | float64 | int | int32 | int64 | uint | uint32 | uint64 | decimal.Decimal](value T) decimal.Decimal {
	switch v := any(value).(type) {
	case decimal.Decimal:
		return v
	case float32:
		return decimal.NewFromFloat32(v)
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt32(v)
	case int64:
		return decimal.NewFromInt(v)
	case uint:
		return decimal.NewFromUint64(uint64(v))
	case uint32:
		return decimal.NewFromUint64(uint64(v))
	case uint64:
		return decimal.NewFromUint64(v)
	default:
		panic("unsupported type")
	}
}

// fits reports whether v has no more than places fractional digits.
func fits(v decimal.Decimal, places int32) bool {
	return v.Equal(v.Truncate(places))
}
