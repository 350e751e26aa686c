package ledger

import "math/bits"

// Settle converts the time elapsed since the last settlement into
// points at the record's current stake, then advances the timestamp.
//
// It must run before any change to StakedAmount so past accrual is
// always priced at the amount that was actually staked. If now is not
// after LastUpdateTime the call is a no-op. On overflow the record is
// left unchanged and ErrMathOverflow is returned.
func Settle(rec *StakeRecord, now int64) error {
	elapsed, ok := subInt64(now, rec.LastUpdateTime)
	if !ok {
		return ErrMathOverflow
	}
	if elapsed <= 0 {
		return nil
	}
	earned, ok := mulUint64(rec.StakedAmount, uint64(elapsed))
	if !ok {
		return ErrMathOverflow
	}
	total, ok := AddUint64(rec.TotalPoints, earned)
	if !ok {
		return ErrMathOverflow
	}
	rec.TotalPoints = total
	rec.LastUpdateTime = now
	return nil
}

// Checked arithmetic. The second result is false on overflow.

// AddUint64 returns a+b and false if the sum overflows.
func AddUint64(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

func subUint64(a, b uint64) (uint64, bool) {
	diff, borrow := bits.Sub64(a, b, 0)
	return diff, borrow == 0
}

func mulUint64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}

func subInt64(a, b int64) (int64, bool) {
	d := a - b
	if (b > 0 && d > a) || (b < 0 && d < a) {
		return 0, false
	}
	return d, true
}
