package bb84

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// DefaultTrialWorkers is the parallelism used by RunTrials when none is given.
var DefaultTrialWorkers = 4

// TrialOpts packages together the arguments to RunTrials.
type TrialOpts struct {
	// Qubits, Noise and Eavesdropping parameterize every trial, as in Opts.
	Qubits        int
	Noise         float64
	Eavesdropping float64

	// Trials is the number of independent runs to perform. Must be positive.
	Trials int

	// Workers bounds how many trials run at once. Defaults to
	// DefaultTrialWorkers.
	Workers int

	// Seed derives each trial's randomness: trial i is seeded with Seed+i, so
	// results do not depend on scheduling. Zero seeds from the clock.
	Seed int64

	Log *zerolog.Logger
}

// A TrialSummary aggregates the reports of many independent runs.
type TrialSummary struct {
	Trials                  int     `json:"trials"`
	MeanQBERPercent         float64 `json:"meanQberPercent"`
	StdDevQBERPercent       float64 `json:"stdDevQberPercent"`
	MeanEfficiencyPercent   float64 `json:"meanEfficiencyPercent"`
	StdDevEfficiencyPercent float64 `json:"stdDevEfficiencyPercent"`
	MeanKeyLength           float64 `json:"meanKeyLength"`
	SecureFraction          float64 `json:"secureFraction"`
}

// RunTrials performs opts.Trials quick runs in parallel and summarizes them.
// The individual reports are returned in trial order.
func RunTrials(ctx context.Context, opts TrialOpts) (TrialSummary, []Report, error) {
	if opts.Trials <= 0 {
		return TrialSummary{}, nil, fmt.Errorf("%w: trial count must be positive, got %d", ErrInvalidConfig, opts.Trials)
	}
	base := Opts{Qubits: opts.Qubits, Noise: opts.Noise, Eavesdropping: opts.Eavesdropping}
	if err := base.validate(); err != nil {
		return TrialSummary{}, nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultTrialWorkers
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log := zerolog.Nop()
	if opts.Log != nil {
		log = opts.Log.With().Str("component", "trials").Logger()
	}

	reports := make([]Report, opts.Trials)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range reports {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			o := base
			o.Rand = rand.New(rand.NewSource(seed + int64(i)))
			r, _, err := RunAll(o)
			if err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TrialSummary{}, nil, err
	}

	s := Summarize(reports)
	log.Debug().
		Int("trials", s.Trials).
		Float64("mean_qber", s.MeanQBERPercent).
		Float64("secure_fraction", s.SecureFraction).
		Msg("trials complete")
	return s, reports, nil
}

// Summarize aggregates reports. Standard deviations are zero for fewer than
// two reports.
func Summarize(reports []Report) TrialSummary {
	s := TrialSummary{Trials: len(reports)}
	if len(reports) == 0 {
		return s
	}
	qbers := make([]float64, len(reports))
	effs := make([]float64, len(reports))
	keys := make([]float64, len(reports))
	secure := 0
	for i, r := range reports {
		qbers[i] = r.QBERPercent
		effs[i] = r.EfficiencyPercent
		keys[i] = float64(r.FinalKeyLength)
		if r.Secure {
			secure++
		}
	}
	s.MeanQBERPercent = stat.Mean(qbers, nil)
	s.MeanEfficiencyPercent = stat.Mean(effs, nil)
	s.MeanKeyLength = stat.Mean(keys, nil)
	if len(reports) > 1 {
		s.StdDevQBERPercent = stat.StdDev(qbers, nil)
		s.StdDevEfficiencyPercent = stat.StdDev(effs, nil)
	}
	s.SecureFraction = float64(secure) / float64(len(reports))
	return s
}
