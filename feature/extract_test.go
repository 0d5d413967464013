package feature

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticECG builds a flat signal with sharp spikes every period
// samples, the minimal shape the peak detector must handle.
func syntheticECG(length, period int, amplitude float64) []float64 {
	values := make([]float64, length)
	for i := period; i < length; i += period {
		values[i] = amplitude
	}
	return values
}

func TestExtractEmpty(t *testing.T) {
	fs := Extract(nil, 250)
	assert.Equal(t, 0, fs.SampleCount)
	assert.Nil(t, fs.HeartRateBPM)
	assert.Nil(t, fs.HeartRateVariability)
}

func TestExtractZeroSamplingRate(t *testing.T) {
	fs := Extract([]float64{1, 2, 3}, 0)
	assert.Equal(t, 3, fs.SampleCount)
	assert.Empty(t, fs.Peaks)
}

func TestExtractBasicStats(t *testing.T) {
	fs := Extract([]float64{1, 2, 3, 4}, 250)

	assert.Equal(t, 4, fs.SampleCount)
	assert.InDelta(t, 2.5, fs.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(1.25), fs.Std, 1e-9)
	assert.Equal(t, 1.0, fs.Min)
	assert.Equal(t, 4.0, fs.Max)
	assert.Equal(t, 3.0, fs.PeakToPeak)
	assert.InDelta(t, math.Sqrt(7.5), fs.RMS, 1e-9)
}

func TestExtractConstantSignal(t *testing.T) {
	fs := Extract([]float64{5, 5, 5, 5, 5}, 250)
	assert.Equal(t, 0.0, fs.Std)
	assert.Empty(t, fs.Peaks)
	assert.Nil(t, fs.HeartRateBPM)
}

func TestExtractHeartRate(t *testing.T) {
	// 250 Hz, spike every 250 samples: one beat per second = 60 BPM
	values := syntheticECG(2500, 250, 100)
	fs := Extract(values, 250)

	require.NotEmpty(t, fs.Peaks)
	require.NotNil(t, fs.HeartRateBPM)
	assert.InDelta(t, 60.0, *fs.HeartRateBPM, 1.0)
}

func TestExtractHeartRateFaster(t *testing.T) {
	// Spike every 125 samples at 250 Hz: 120 BPM
	values := syntheticECG(2500, 125, 100)
	fs := Extract(values, 250)

	require.NotNil(t, fs.HeartRateBPM)
	assert.InDelta(t, 120.0, *fs.HeartRateBPM, 2.0)
}

func TestExtractHRVRegularRhythm(t *testing.T) {
	values := syntheticECG(2500, 250, 100)
	fs := Extract(values, 250)

	require.NotNil(t, fs.HeartRateVariability)
	hrv := fs.HeartRateVariability

	// Perfectly regular intervals: 1000 ms RR, no variability
	assert.InDelta(t, 1000.0, hrv.MeanRR, 1.0)
	assert.InDelta(t, 0.0, hrv.StdRR, 1.0)
	assert.InDelta(t, 0.0, hrv.RMSSD, 1.0)
}

func TestExtractTooFewPeaksForHR(t *testing.T) {
	// Single spike: no interval to derive a rate from
	values := syntheticECG(400, 250, 100)
	fs := Extract(values, 250)

	assert.Len(t, fs.Peaks, 1)
	assert.Nil(t, fs.HeartRateBPM)
	assert.Nil(t, fs.HeartRateVariability)
}

func TestExtractTwoPeaksHRButNoHRV(t *testing.T) {
	values := syntheticECG(600, 250, 100)
	fs := Extract(values, 250)

	assert.Len(t, fs.Peaks, 2)
	assert.NotNil(t, fs.HeartRateBPM)
	assert.Nil(t, fs.HeartRateVariability)
}

func TestFindPeaksMinDistance(t *testing.T) {
	// Two spikes 10 samples apart collapse into one with the default
	// distance, both count with a smaller one
	values := make([]float64, 200)
	values[50] = 100
	values[60] = 100

	fs := Extract(values, 250)
	assert.Len(t, fs.Peaks, 1)

	fs = ExtractWithOptions(values, 250, Options{PeakMinDistance: 5})
	assert.Len(t, fs.Peaks, 2)
}

func TestFindPeaksThreshold(t *testing.T) {
	// A small bump below mean + 0.5*std does not count as a peak even
	// though it is a local maximum
	values := syntheticECG(1000, 250, 100)
	values[30] = 1

	fs := Extract(values, 250)
	assert.NotContains(t, fs.Peaks, 30)
}

func TestExtractDuration(t *testing.T) {
	fs := Extract(make([]float64, 500), 250)
	assert.InDelta(t, 2.0, fs.Duration.Seconds(), 1e-9)
}
