package generic

import "cloud.google.com/go/civil"

// =============================================================================
// FLAT TWO-TIER RULE - Services recorded as (total, overtime) quantities
// =============================================================================

// FlatSplit maps a (total, overtime) quantity pair onto rate buckets.
//
//	normal day:  (total-overtime) at 1.0, overtime at 1.5
//	special day: (total-overtime) at 1.5, overtime at 2.0
//
// Unlike Allocator, the non-overtime part is uplifted on special days.
// Both rules exist on purpose and must not be merged.
//
// Quantities are taken as recorded: overtime greater than total yields a
// negative regular bucket, so the line total still matches the sheet.
func FlatSplit(day DayType, total, overtime float64) OvertimeSplit {
	regular := total - overtime
	if day.IsSpecial() {
		return OvertimeSplit{OT150: regular, OT200: overtime}
	}
	return OvertimeSplit{Normal: regular, OT150: overtime}
}

// =============================================================================
// SINGLE-TIME LABELS - Haulage and scow movements
// =============================================================================

// TierAt labels a movement by one time of day:
//
//	special day after the special cutoff   -> 200%
//	special day, or after the normal cutoff -> 150%
//	otherwise                               -> normal
func (c Cutoffs) TierAt(day DayType, t civil.Time) Tier {
	switch {
	case day.IsSpecial() && ClockAfter(t, c.Special):
		return Tier200
	case day.IsSpecial() || ClockAfter(t, c.Normal):
		return Tier150
	default:
		return TierNormal
	}
}

// DayMultiplier is 1.5 on special days and 1.0 otherwise.
func DayMultiplier(day DayType) Tier {
	if day.IsSpecial() {
		return Tier150
	}
	return TierNormal
}
