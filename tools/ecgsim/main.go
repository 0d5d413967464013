// ecgsim streams a synthetic ECG-like signal over a serial port (or
// stdout) in the line format the acquisition loop consumes. Useful
// for exercising the full pipeline without a physical device.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"time"

	"ecgmonitor/serial"
)

func main() {
	device := flag.String("device", "", "Serial device to write to (empty = stdout)")
	baud := flag.Int("baud", 57600, "Baud rate")
	rate := flag.Float64("rate", 250, "Samples per second")
	bpm := flag.Float64("bpm", 72, "Simulated heart rate in BPM")
	noise := flag.Float64("noise", 0.02, "Noise amplitude relative to the R wave")
	scale := flag.Float64("scale", 1000, "Amplitude scale (microvolts per unit)")
	duration := flag.Duration("duration", 0, "How long to stream (0 = forever)")
	plain := flag.Bool("plain", false, "Emit bare values instead of DATA lines")
	flag.Parse()

	var out io.Writer = os.Stdout
	if *device != "" {
		port, err := serial.Open(serial.PortConfig{
			Device:   *device,
			BaudRate: *baud,
			DataBits: 8,
			StopBits: 1,
			Parity:   "none",
		})
		if err != nil {
			log.Fatalf("Failed to open port: %v", err)
		}
		defer port.Close()
		out = port

		fmt.Fprintf(os.Stderr, "Streaming on %s at %d baud, %.0f Hz, %.0f BPM\n",
			*device, *baud, *rate, *bpm)
	}

	sim := newECGSim(*rate, *bpm, *noise)
	ticker := time.NewTicker(time.Duration(float64(time.Second) / *rate))
	defer ticker.Stop()

	var deadline time.Time
	if *duration > 0 {
		deadline = time.Now().Add(*duration)
	}

	sent := 0
	for range ticker.C {
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}

		value := sim.next() * *scale

		var line string
		if *plain {
			line = fmt.Sprintf("%.2f\n", value)
		} else {
			line = fmt.Sprintf("DATA,%d,%.2f,0,%.0f,OK\n",
				time.Now().UnixMilli(), value, *bpm)
		}
		if _, err := io.WriteString(out, line); err != nil {
			log.Fatalf("Write error: %v", err)
		}

		sent++
		if sent%5000 == 0 {
			fmt.Fprintf(os.Stderr, "Sent %d samples\n", sent)
			io.WriteString(out, "INFO,heartbeat\n")
		}
	}
}

// ecgSim generates a rough ECG-shaped waveform: slow baseline drift
// plus gaussian P, QRS and T deflections per cycle. Not clinical.
type ecgSim struct {
	fs    float64
	phase float64
	bpm   float64
	noise float64
}

func newECGSim(fs, bpm, noise float64) *ecgSim {
	return &ecgSim{fs: fs, bpm: bpm, noise: noise}
}

func (s *ecgSim) next() float64 {
	cycleHz := s.bpm / 60.0
	s.phase += cycleHz / s.fs
	if s.phase >= 1.0 {
		s.phase -= 1.0
	}
	t := s.phase

	baseline := 0.05 * math.Sin(2*math.Pi*0.33*t)

	p := 0.08 * gauss(t, 0.18, 0.03)
	q := -0.12 * gauss(t, 0.30, 0.01)
	r := 1.00 * gauss(t, 0.32, 0.008)
	sWave := -0.25 * gauss(t, 0.35, 0.012)
	tWave := 0.25 * gauss(t, 0.60, 0.06)

	n := s.noise * (2*fract(math.Sin(12345.678*t)*9876.543) - 1)

	return baseline + p + q + r + sWave + tWave + n
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

func fract(x float64) float64 { return x - math.Floor(x) }
