package seed

import (
	"fmt"
	"math"
)

// VerifyRanking checks that ranks run 1..n without gaps, composites never
// increase down the list (NaN only at the tail) and each doctor appears once.
func VerifyRanking(entries []Entry) error {
	seen := make(map[string]struct{}, len(entries))
	sawNaN := false
	for i, e := range entries {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: position %d has rank %d", ErrRankingBroken, i+1, e.Rank)
		}
		if _, dup := seen[e.DoctorID]; dup {
			return fmt.Errorf("%w: doctor %s ranked twice", ErrRankingBroken, e.DoctorID)
		}
		seen[e.DoctorID] = struct{}{}

		if math.IsNaN(e.Composite) {
			sawNaN = true
			continue
		}
		if sawNaN {
			return fmt.Errorf("%w: rank %d scored after an unscored doctor", ErrRankingBroken, e.Rank)
		}
		if i > 0 && e.Composite > entries[i-1].Composite {
			return fmt.Errorf("%w: rank %d (%.4f) above rank %d (%.4f)",
				ErrRankingBroken, e.Rank, e.Composite, entries[i-1].Rank, entries[i-1].Composite)
		}
	}
	return nil
}
