package detect

import (
	"math"
	"sort"

	"github.com/openacoustics/inaudible-monitor/internal/dsp"
)

// Peak is one local spectral maximum above the band threshold.
type Peak struct {
	FrequencyHz float64
	MagnitudeDB float64
	Bin         int
}

// findPeaks returns local maxima within [minHz, maxHz] that exceed
// thresholdDB, with at least minSeparationHz between selected peaks so a
// single broad peak is not reported several times. Peaks are kept in
// descending magnitude order.
func findPeaks(sf *dsp.SpectralFrame, minHz, maxHz, thresholdDB, minSeparationHz float64) []Peak {
	lo, hi := bandIndices(sf, minHz, maxHz)
	if lo > hi {
		return nil
	}

	var candidates []Peak
	for i := lo; i <= hi; i++ {
		m := sf.Magnitudes[i]
		if m <= thresholdDB {
			continue
		}

		// Band-edge bins are compared against their real neighbors, even
		// when those fall outside the band. A slope of out-of-band energy
		// crossing the edge is not a peak.
		if i == 0 || sf.Magnitudes[i-1] >= m {
			continue
		}
		if i == len(sf.Magnitudes)-1 || sf.Magnitudes[i+1] > m {
			continue
		}

		candidates = append(candidates, Peak{
			FrequencyHz: sf.Frequencies[i],
			MagnitudeDB: m,
			Bin:         i,
		})
	}

	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].MagnitudeDB != candidates[b].MagnitudeDB {
			return candidates[a].MagnitudeDB > candidates[b].MagnitudeDB
		}
		return candidates[a].FrequencyHz < candidates[b].FrequencyHz
	})

	minBins := 1
	if sf.Resolution > 0 {
		if b := int(math.Round(minSeparationHz / sf.Resolution)); b > minBins {
			minBins = b
		}
	}

	peaks := candidates[:0]
	for _, c := range candidates {
		ok := true
		for _, kept := range peaks {
			if abs(c.Bin-kept.Bin) < minBins {
				ok = false
				break
			}
		}
		if ok {
			peaks = append(peaks, c)
		}
	}

	return peaks
}

// bandIndices returns the inclusive index range of sf covering [minHz, maxHz].
func bandIndices(sf *dsp.SpectralFrame, minHz, maxHz float64) (int, int) {
	lo := sort.SearchFloat64s(sf.Frequencies, minHz)
	hi := sort.SearchFloat64s(sf.Frequencies, maxHz)

	if hi >= len(sf.Frequencies) || sf.Frequencies[hi] > maxHz {
		hi--
	}

	return lo, hi
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
