// Package feature derives summary statistics, peak locations and
// heart-rate metrics from a window of samples. The peak detector is
// a coarse heuristic, not a validated QRS detector; callers must
// treat its output as an estimate, not a diagnosis.
package feature

import (
	"math"
	"time"
)

// DefaultPeakMinDistance is the minimum sample separation between
// accepted peaks, suppressing double counts within one QRS-like
// complex at typical sampling rates.
const DefaultPeakMinDistance = 50

// HRV holds heart-rate-variability metrics over inter-peak (RR)
// intervals, all in milliseconds.
type HRV struct {
	MeanRR float64 `json:"mean_rr"`
	StdRR  float64 `json:"std_rr"`
	RMSSD  float64 `json:"rmssd"`
}

// FeatureSet is an immutable snapshot of statistics derived from one
// window of samples. HeartRateBPM and HeartRateVariability are nil
// when too few peaks were found to compute them.
type FeatureSet struct {
	Mean        float64 `json:"mean"`
	Std         float64 `json:"std"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	PeakToPeak  float64 `json:"peak_to_peak"`
	RMS         float64 `json:"rms"`
	SampleCount int     `json:"sample_count"`

	Duration time.Duration `json:"duration_ns"`

	Peaks                []int    `json:"peaks"`
	HeartRateBPM         *float64 `json:"heart_rate_bpm,omitempty"`
	HeartRateVariability *HRV     `json:"heart_rate_variability,omitempty"`
}

// Options tunes extraction. Zero values fall back to defaults.
type Options struct {
	PeakMinDistance int
}

// Extract computes a FeatureSet over an oldest-first window of
// values sampled at the given rate.
func Extract(values []float64, samplingRateHz float64) FeatureSet {
	return ExtractWithOptions(values, samplingRateHz, Options{})
}

// ExtractWithOptions is Extract with a configurable peak distance
func ExtractWithOptions(values []float64, samplingRateHz float64, opts Options) FeatureSet {
	minDistance := opts.PeakMinDistance
	if minDistance <= 0 {
		minDistance = DefaultPeakMinDistance
	}

	fs := FeatureSet{
		SampleCount: len(values),
	}
	if len(values) == 0 || samplingRateHz <= 0 {
		return fs
	}

	fs.Duration = time.Duration(float64(len(values)) / samplingRateHz * float64(time.Second))

	var sum, sumSq float64
	fs.Min = values[0]
	fs.Max = values[0]
	for _, v := range values {
		sum += v
		sumSq += v * v
		if v < fs.Min {
			fs.Min = v
		}
		if v > fs.Max {
			fs.Max = v
		}
	}

	n := float64(len(values))
	fs.Mean = sum / n
	fs.Std = math.Sqrt(sumSq/n - fs.Mean*fs.Mean)
	if math.IsNaN(fs.Std) {
		fs.Std = 0
	}
	fs.PeakToPeak = fs.Max - fs.Min
	fs.RMS = math.Sqrt(sumSq / n)

	fs.Peaks = findPeaks(values, fs.Mean, fs.Std, minDistance)

	if len(fs.Peaks) >= 2 {
		intervals := make([]float64, len(fs.Peaks)-1)
		for i := 1; i < len(fs.Peaks); i++ {
			intervals[i-1] = float64(fs.Peaks[i]-fs.Peaks[i-1]) / samplingRateHz
		}
		avg := mean(intervals)
		if avg > 0 {
			bpm := 60.0 / avg
			fs.HeartRateBPM = &bpm
		}
	}

	if len(fs.Peaks) >= 3 {
		rr := make([]float64, len(fs.Peaks)-1)
		for i := 1; i < len(fs.Peaks); i++ {
			rr[i-1] = float64(fs.Peaks[i]-fs.Peaks[i-1]) * (1000.0 / samplingRateHz)
		}
		fs.HeartRateVariability = &HRV{
			MeanRR: mean(rr),
			StdRR:  std(rr),
			RMSSD:  rmssd(rr),
		}
	}

	return fs
}

// findPeaks returns indices of samples strictly greater than both
// neighbors and above mean + 0.5*std, keeping a candidate only when
// at least minDistance samples separate it from the last accepted
// peak.
func findPeaks(values []float64, mean, std float64, minDistance int) []int {
	if len(values) < 3 {
		return nil
	}

	threshold := mean + 0.5*std
	var peaks []int
	for i := 1; i < len(values)-1; i++ {
		if values[i] > values[i-1] && values[i] > values[i+1] && values[i] > threshold {
			if len(peaks) == 0 || i-peaks[len(peaks)-1] >= minDistance {
				peaks = append(peaks, i)
			}
		}
	}
	return peaks
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func std(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var sumSq float64
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

// rmssd is the root-mean-square of successive RR differences
func rmssd(rr []float64) float64 {
	if len(rr) < 2 {
		return 0
	}
	var sumSq float64
	for i := 1; i < len(rr); i++ {
		d := rr[i] - rr[i-1]
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(rr)-1))
}
