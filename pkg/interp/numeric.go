package interp

import "math"

// Numeric helpers implementing JVMS's bit-for-bit arithmetic contracts
// (spec §4.G: "two's-complement integers, shift counts masked to 5 or 6
// bits, IEEE-754 strictfp arithmetic"). Kept free of Frame/Machine so they
// are unit-testable in isolation.

func idiv(a, b int32) (int32, bool) {
	if b == 0 {
		return 0, false
	}
	if a == math.MinInt32 && b == -1 {
		return math.MinInt32, true // JVMS 6.5.idiv: overflow wraps, no exception
	}
	return a / b, true
}

func irem(a, b int32) (int32, bool) {
	if b == 0 {
		return 0, false
	}
	if a == math.MinInt32 && b == -1 {
		return 0, true
	}
	return a % b, true
}

func ldiv(a, b int64) (int64, bool) {
	if b == 0 {
		return 0, false
	}
	if a == math.MinInt64 && b == -1 {
		return math.MinInt64, true
	}
	return a / b, true
}

func lrem(a, b int64) (int64, bool) {
	if b == 0 {
		return 0, false
	}
	if a == math.MinInt64 && b == -1 {
		return 0, true
	}
	return a % b, true
}

// ishl/ishr/iushr mask the shift count to the low 5 bits (JVMS 6.5.ishl).
func ishl(v, s int32) int32  { return v << (uint32(s) & 0x1f) }
func ishr(v, s int32) int32  { return v >> (uint32(s) & 0x1f) }
func iushr(v, s int32) int32 { return int32(uint32(v) >> (uint32(s) & 0x1f)) }

// lshl/lshr/lushr mask the shift count to the low 6 bits (JVMS 6.5.lshl).
func lshl(v int64, s int32) int64  { return v << (uint64(s) & 0x3f) }
func lshr(v int64, s int32) int64  { return v >> (uint64(s) & 0x3f) }
func lushr(v int64, s int32) int64 { return int64(uint64(v) >> (uint64(s) & 0x3f)) }

// lcmp/fcmp*/dcmp* implement JVMS 6.5's three-way and NaN-aware compares.
func lcmp(a, b int64) int32 {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// fcmpg/dcmpg return 1 when either operand is NaN; fcmpl/dcmpl return -1.
func fcmp(a, b float32, nanIsGreater bool) int32 {
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		if nanIsGreater {
			return 1
		}
		return -1
	}
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

func dcmp(a, b float64, nanIsGreater bool) int32 {
	if math.IsNaN(a) || math.IsNaN(b) {
		if nanIsGreater {
			return 1
		}
		return -1
	}
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// d2i/d2l/f2i/f2l implement JVMS 2.8.3's saturating NaN/overflow conversion
// rules (NaN -> 0, out of range saturates to the target's min/max).
func d2i(v float64) int32 {
	if math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	if v <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

func d2l(v float64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	if v <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(v)
}

func f2i(v float32) int32 { return d2i(float64(v)) }
func f2l(v float32) int64 { return d2l(float64(v)) }
