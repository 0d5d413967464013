package diagnosis

import (
	"fmt"
	"strings"

	"ecgmonitor/feature"
)

// buildPrompt renders the feature set and optional patient metadata
// into the analysis request. The reply contract is spelled out in the
// prompt itself so parseReport can rely on the field names.
func buildPrompt(fs feature.FeatureSet, patient *PatientInfo) string {
	var b strings.Builder

	b.WriteString("You are a cardiology analysis assistant. Analyze the following ECG signal features and respond with a JSON object only.\n\n")

	b.WriteString("Signal features:\n")
	fmt.Fprintf(&b, "- Sample count: %d\n", fs.SampleCount)
	fmt.Fprintf(&b, "- Duration: %.1f seconds\n", fs.Duration.Seconds())
	fmt.Fprintf(&b, "- Mean amplitude: %.2f\n", fs.Mean)
	fmt.Fprintf(&b, "- Standard deviation: %.2f\n", fs.Std)
	fmt.Fprintf(&b, "- Min: %.2f, Max: %.2f, Peak-to-peak: %.2f\n", fs.Min, fs.Max, fs.PeakToPeak)
	fmt.Fprintf(&b, "- RMS: %.2f\n", fs.RMS)
	fmt.Fprintf(&b, "- Detected peaks: %d\n", len(fs.Peaks))

	if fs.HeartRateBPM != nil {
		fmt.Fprintf(&b, "- Estimated heart rate: %.1f BPM\n", *fs.HeartRateBPM)
	} else {
		b.WriteString("- Estimated heart rate: not computable (too few peaks)\n")
	}
	if hrv := fs.HeartRateVariability; hrv != nil {
		fmt.Fprintf(&b, "- HRV: mean RR %.1f ms, std RR %.1f ms, RMSSD %.1f ms\n",
			hrv.MeanRR, hrv.StdRR, hrv.RMSSD)
	}

	if patient != nil {
		b.WriteString("\nPatient information:\n")
		if patient.Age > 0 {
			fmt.Fprintf(&b, "- Age: %d\n", patient.Age)
		}
		if patient.Gender != "" {
			fmt.Fprintf(&b, "- Gender: %s\n", patient.Gender)
		}
		if patient.Symptoms != "" {
			fmt.Fprintf(&b, "- Reported symptoms: %s\n", patient.Symptoms)
		}
	}

	b.WriteString(`
Respond with a JSON object with exactly these fields:
{
  "primary_diagnosis": "most likely finding",
  "secondary_conditions": ["other possible findings"],
  "severity": "normal | mild | moderate | severe | critical",
  "confidence": 0.0,
  "key_findings": ["notable observations from the features"],
  "recommendations": {
    "immediate_actions": [],
    "follow_up": [],
    "lifestyle": []
  },
  "normal_ranges_comparison": {"metric": "comparison"},
  "risk_factors": [],
  "prognosis": "short outlook statement"
}

confidence is a number between 0 and 1. Do not include any text outside the JSON object.`)

	return b.String()
}
