// Package allocate splits a duration across booking targets so that the
// parts always sum to the input exactly.
package allocate

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/bryan-cox/tempoledger/internal/model"
)

// ErrNoTargets is returned when there is nothing to allocate to. Callers
// substitute a fallback target or skip allocation.
var ErrNoTargets = errors.New("no allocation targets")

// Allocate splits totalSeconds across targets. Rounding remainders go to the
// last target and zero-second allocations are left out of the result.
func Allocate(totalSeconds int, targets []model.Target, mode model.DistributionMode) ([]model.Allocation, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	if totalSeconds < 0 {
		totalSeconds = 0
	}

	var shares []int
	switch mode {
	case model.DistributeSingle:
		shares = make([]int, len(targets))
		shares[0] = totalSeconds
	case model.DistributeCustom:
		shares = proportional(totalSeconds, targets)
	default:
		shares = equal(totalSeconds, len(targets))
	}

	out := make([]model.Allocation, 0, len(targets))
	for i, s := range shares {
		if s == 0 {
			continue
		}
		out = append(out, model.Allocation{Target: targets[i], Seconds: s})
	}
	return out, nil
}

func equal(total, n int) []int {
	shares := make([]int, n)
	per := total / n
	for i := range shares {
		shares[i] = per
	}
	shares[n-1] += total % n
	return shares
}

// proportional weighs each target by its hours. A non-positive weight sum
// degrades to an equal split.
func proportional(total int, targets []model.Target) []int {
	sum := decimal.Zero
	weights := make([]decimal.Decimal, len(targets))
	for i, t := range targets {
		weights[i] = decimal.NewFromFloat(t.Weight())
		sum = sum.Add(weights[i])
	}
	if !sum.IsPositive() {
		return equal(total, len(targets))
	}

	shares := make([]int, len(targets))
	allocated := 0
	totalDec := decimal.NewFromInt(int64(total))
	for i, w := range weights {
		shares[i] = int(totalDec.Mul(w).Div(sum).IntPart())
		allocated += shares[i]
	}
	shares[len(shares)-1] += total - allocated
	return shares
}

// Sum returns the total seconds of allocations.
func Sum(allocs []model.Allocation) int {
	total := 0
	for _, a := range allocs {
		total += a.Seconds
	}
	return total
}
