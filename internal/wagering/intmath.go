package wagering

import "math"

// MaxAmount caps a single monetary amount (cents) accepted at the boundary.
// MaxFreeSpinCount caps a single free-spin grant.
const (
	MaxAmount        int64 = 1_000_000_000_000
	MaxFreeSpinCount int64 = 10_000
)

// intMath runs int64 arithmetic and remembers whether any step left the
// representable range. Once set, overflow stays set.
type intMath struct {
	overflow bool
}

func (m *intMath) add(a, b int64) int64 {
	r := a + b
	if (b > 0 && r < a) || (b < 0 && r > a) {
		m.overflow = true
	}
	return r
}

func (m *intMath) mul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		m.overflow = true
		return math.MinInt64
	}
	r := a * b
	if r/b != a {
		m.overflow = true
	}
	return r
}
