// Package profit computes arbitrage opportunities between buy venues and
// the Steam community market, applying Steam's exact fee schedule.
package profit

import "math"

// Steam's fee schedule is a ladder of price intervals, each mapped to a
// flat fee. The ladder extends indefinitely: interval widths alternate
// +0.12/+0.11 and fees alternate +0.01/+0.02, approximating the 15%
// combined commission. The alternation parity must match existing data
// bit for bit.
var (
	baseIntervals = []float64{0.02, 0.21, 0.32, 0.43}
	baseFees      = []float64{0.02, 0.03, 0.04, 0.05, 0.07, 0.09}
)

// NetPrice returns what a seller receives for a gross Steam sale price.
func NetPrice(gross float64) float64 {
	intervals := append([]float64(nil), baseIntervals...)
	fees := append([]float64(nil), baseFees...)

	for gross > intervals[len(intervals)-1] {
		last := intervals[len(intervals)-1]
		if len(intervals)%2 == 0 {
			intervals = append(intervals, round2(last+0.12))
		} else {
			intervals = append(intervals, round2(last+0.11))
		}
	}
	for len(intervals) > len(fees) {
		last := fees[len(fees)-1]
		if len(fees)%2 == 0 {
			fees = append(fees, round2(last+0.01))
		} else {
			fees = append(fees, round2(last+0.02))
		}
	}

	idx := len(intervals) - 1
	for i, v := range intervals {
		if gross <= v {
			idx = i
			break
		}
	}
	return math.Max(0, round2(gross-fees[idx]))
}

// Margin returns absolute profit and profit percentage for buying at
// buyPrice and selling at gross on Steam.
func Margin(gross, buyPrice float64) (absolute, percentage float64) {
	if buyPrice <= 0 {
		return 0, 0
	}
	net := NetPrice(gross)
	absolute = round2(net - buyPrice)
	percentage = (net - buyPrice) / buyPrice
	return absolute, percentage
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
