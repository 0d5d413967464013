// Package parse turns raw device lines into typed results. Upstream
// firmware emits either a structured multi-field protocol or a
// degenerate one-number-per-line stream depending on version; the
// classifier accepts both without configuration.
package parse

import (
	"strconv"
	"strings"
)

// Result is the outcome of classifying one line: a Sample, a
// SystemMessage, or Invalid.
type Result interface {
	isResult()
}

// Sample is an accepted numeric payload. Values holds every parsed
// channel; Primary() is the single value the pipeline consumes.
type Sample struct {
	Values []float64
}

func (Sample) isResult() {}

// Primary returns the primary channel value
func (s Sample) Primary() float64 {
	return s.Values[0]
}

// SystemMessage is recognized non-data chatter from the device,
// excluded from the numeric pipeline but available for logging.
type SystemMessage struct {
	Tag  string
	Text string
}

func (SystemMessage) isResult() {}

// Invalid marks an unparseable line. Preview holds a truncated copy
// for debug logging.
type Invalid struct {
	Preview string
}

func (Invalid) isResult() {}

const (
	// dataValueIndex is the field holding the primary channel in a
	// tagged record: DATA,<timestamp>,<value>,<resp>,<hr>,<status>
	dataValueIndex = 2

	// minDataFields is the minimum field count for a tagged record
	minDataFields = 4

	// maxFallbackTokens bounds the untagged numeric fallback format
	maxFallbackTokens = 5

	previewLen = 50
)

var systemTags = []string{"INFO", "ERROR", "STATUS", "DEBUG"}

// Classify turns one raw line into a typed result. Rules are applied
// in order: tagged DATA record, tagged system message, untagged
// numeric fallback, Invalid.
func Classify(line string) Result {
	line = strings.TrimSpace(line)
	if line == "" {
		return Invalid{}
	}

	if strings.HasPrefix(line, "DATA,") {
		return classifyTagged(line)
	}

	for _, tag := range systemTags {
		if strings.HasPrefix(line, tag+",") {
			return SystemMessage{
				Tag:  tag,
				Text: line[len(tag)+1:],
			}
		}
	}

	if sample, ok := classifyFallback(line); ok {
		return sample
	}

	return Invalid{Preview: truncate(line, previewLen)}
}

// classifyTagged parses a DATA record. A malformed record is
// Invalid, never silently coerced.
func classifyTagged(line string) Result {
	fields := strings.Split(line, ",")
	if len(fields) < minDataFields {
		return Invalid{Preview: truncate(line, previewLen)}
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(fields[dataValueIndex]), 64)
	if err != nil {
		return Invalid{Preview: truncate(line, previewLen)}
	}

	return Sample{Values: []float64{value}}
}

// classifyFallback handles untagged lines of 1-5 whitespace or comma
// separated tokens. Every token must parse as a number; the first one
// becomes the primary channel and the rest are currently ignored
// (single-channel pipeline).
func classifyFallback(line string) (Sample, bool) {
	tokens := strings.Fields(strings.ReplaceAll(line, ",", " "))
	if len(tokens) == 0 || len(tokens) > maxFallbackTokens {
		return Sample{}, false
	}

	values := make([]float64, 0, len(tokens))
	for _, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return Sample{}, false
		}
		values = append(values, v)
	}

	return Sample{Values: values[:1]}, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
