package graph

import "fmt"

// Clock is a periodic trigger: period T (seconds, > 0) and phase Offset
// (seconds, >= 0). Two clocks may coexist in a graph only when one period
// divides the other exactly (planner §4.2, step 7).
type Clock struct {
	Name   string
	T      float64
	Offset float64

	// seq is the insertion index among the graph's clocks. g.Clocks()
	// returns clocks in this order, which sort.SliceStable then uses as
	// the tie-break for equal Offsets.
	seq int
}

func (c *Clock) String() string {
	return fmt.Sprintf("Clock(%s, T=%g, offset=%g)", c.Name, c.T, c.Offset)
}

// Divides reports whether c and other satisfy the multi-rate compatibility
// rule: one period divides the other exactly.
func (c *Clock) Divides(other *Clock) bool {
	return moduloZero(c.T, other.T) || moduloZero(other.T, c.T)
}

// moduloZero reports whether a is an integer multiple of b, tolerant of
// floating point period arithmetic the way spec §8 scenario 1 (100Hz /
// 25Hz) expects: 0.04 / 0.01 must read as exactly divisible.
func moduloZero(a, b float64) bool {
	if b == 0 {
		return false
	}
	q := a / b
	r := q - float64(int64(q+0.5))
	const eps = 1e-9
	return r < eps && r > -eps
}
