package climate

import "github.com/sarida/backend/internal/domain"

// Conversion constants. A month is taken as 30 days throughout.
const (
	DaysPerMonth  = 30
	SecondsPerDay = 86400
	KelvinOffset  = 273.15
)

// Convert maps raw reanalysis units to display units:
// t2m K to degC, soil water fraction to percent, tp/e/pev m/day to mm/month
// (e and pev sign-flipped so that losses are positive) and ssrd J/m2 to W/m2.
// The conversion is one-way; applying it twice is meaningless.
func Convert(obs []domain.Observation) []domain.Observation {
	out := make([]domain.Observation, len(obs))
	for i, o := range obs {
		out[i] = ConvertOne(o)
	}
	return out
}

// ConvertOne converts a single observation.
func ConvertOne(o domain.Observation) domain.Observation {
	const mmPerMonth = DaysPerMonth * 1000
	return domain.Observation{
		Time:  o.Time,
		T2m:   o.T2m - KelvinOffset,
		Swvl1: o.Swvl1 * 100,
		Swvl2: o.Swvl2 * 100,
		Swvl3: o.Swvl3 * 100,
		Swvl4: o.Swvl4 * 100,
		Ssrd:  o.Ssrd / SecondsPerDay,
		Pev:   -o.Pev * mmPerMonth,
		E:     -o.E * mmPerMonth,
		Tp:    o.Tp * mmPerMonth,
	}
}
