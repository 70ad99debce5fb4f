// Command gen-synthetic writes a synthetic breathing capture in the CSV format
// accepted by impedance -replay.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/impedance/internal/source"
)

func main() {
	d := source.DefaultSynthetic()
	out := flag.String("out", "", "Output CSV path (default stdout)")
	flag.Float64Var(&d.Duration, "duration", d.Duration, "Capture length in seconds")
	flag.Float64Var(&d.SamplePeriod, "period", d.SamplePeriod, "Sample period in seconds")
	flag.Float64Var(&d.BreathsPerMinute, "rate", d.BreathsPerMinute, "Breaths per minute")
	flag.Float64Var(&d.Baseline, "baseline", d.Baseline, "Baseline impedance in ohms")
	flag.Float64Var(&d.Amplitude, "amplitude", d.Amplitude, "Breathing amplitude in ohms")
	flag.Float64Var(&d.Jitter, "jitter", d.Jitter, "Timing jitter as a fraction of the sample period")
	flag.Float64Var(&d.Noise, "noise", d.Noise, "Gaussian noise standard deviation in ohms")
	flag.Float64Var(&d.StepAt, "step-at", d.StepAt, "Time in seconds of a baseline step")
	flag.Float64Var(&d.StepSize, "step-size", d.StepSize, "Size of the baseline step in ohms (0 disables)")
	flag.Uint64Var(&d.Seed, "seed", d.Seed, "Random seed")
	flag.Parse()

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("failed to create output: %v", err)
		}
		w = f
	}

	n, err := generate(d, w)
	if err != nil {
		log.Fatal(err)
	}
	if *out != "" {
		fmt.Fprintf(os.Stderr, "wrote %d samples to %s\n", n, *out)
	}
}

// generate writes every sample of g to w and closes w if it is closable.
func generate(g source.Synthetic, w io.Writer) (int, error) {
	samples, err := g.Samples()
	if err != nil {
		return 0, err
	}
	rec := source.NewCSVRecorder(w)
	for _, s := range samples {
		if err := rec.Record(s); err != nil {
			rec.Close()
			return 0, fmt.Errorf("write sample: %w", err)
		}
	}
	if err := rec.Close(); err != nil {
		return 0, err
	}
	return len(samples), nil
}
