// keygenie runs BB84 key-distribution simulations from the command line.
//
// Usage:
//
//	keygenie [flags] [run|trials|step|serve|replay FILE]
//
// run (the default) performs a single quick run. Passing --trials on the
// command line switches run into bulk mode; trials.runs in the config file or
// KEYGENIE_TRIALS__RUNS alone does not. trials always runs in bulk, with the
// count taken from --trials, the environment or the config file. step reveals
// one qubit at a time; serve exposes sessions over HTTP; replay re-analyzes a
// transcript written by run --transcript.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/keygenie/bb84sim/bb84"
	"github.com/keygenie/bb84sim/bb84/photon"
	"github.com/keygenie/bb84sim/internal/config"
	"github.com/keygenie/bb84sim/internal/logger"
	"github.com/keygenie/bb84sim/internal/server"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

var (
	configPath = flag.StringP("config", "c", "", "YAML config file. Defaults to ./keygenie.yaml if present.")
	qubits     = flag.IntP("qubits", "n", 0, "Number of qubits Alice sends.")
	noise      = flag.Float64("noise", 0, "Channel noise level, in percent.")
	eve        = flag.Float64("eve", 0, "Eavesdropping level, in percent.")
	seed       = flag.Int64("seed", 0, "Random seed; 0 seeds from the clock.")
	trials     = flag.Int("trials", 0, "Perform this many independent runs and print a summary. Given on the command line, switches run into bulk mode.")
	workers    = flag.Int("workers", 0, "Parallelism for --trials.")
	format     = flag.String("format", "text", "Output format: text or json.")
	transcript = flag.String("transcript", "", "With run, also write the run's transcript to this file.")
	delay      = flag.Duration("delay", 0, "With step, pause between revealed steps.")
	port       = flag.Int("port", 0, "With serve, the port to listen on.")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn or error.")
	pretty     = flag.Bool("pretty", false, "Human-readable logs.")
)

func main() {
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygenie: %v\n", err)
		os.Exit(2)
	}
	applyFlags(cfg)
	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	mode := "run"
	if flag.NArg() > 0 {
		mode = flag.Arg(0)
	}
	switch mode {
	case "run":
		err = run(cfg, log, os.Stdout)
	case "trials":
		err = runTrials(cfg, log, os.Stdout)
	case "step":
		err = step(cfg, log, os.Stdout)
	case "serve":
		err = serve(cfg, log)
	case "replay":
		if flag.NArg() < 2 {
			err = errors.New("replay needs a transcript file")
			break
		}
		err = replay(flag.Arg(1), os.Stdout)
	default:
		err = fmt.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		log.Fatal().Err(err).Str("mode", mode).Msg("keygenie failed")
	}
}

// applyFlags overrides configuration with explicitly set flags, then
// re-validates.
func applyFlags(cfg *config.Config) {
	set := flag.CommandLine.Changed
	if set("qubits") {
		cfg.Simulation.Qubits = *qubits
	}
	if set("noise") {
		cfg.Simulation.NoisePercent = *noise
	}
	if set("eve") {
		cfg.Simulation.EavesdroppingPercent = *eve
	}
	if set("seed") {
		cfg.Simulation.Seed = *seed
	}
	if set("trials") {
		cfg.Trials.Runs = *trials
	}
	if set("workers") {
		cfg.Trials.Workers = *workers
	}
	if set("port") {
		cfg.Server.Port = *port
	}
	if set("log-level") {
		cfg.Log.Level = *logLevel
	}
	if set("pretty") {
		cfg.Log.Pretty = *pretty
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "keygenie: %v\n", err)
		os.Exit(2)
	}
}

func sessionOpts(cfg *config.Config, log zerolog.Logger) (bb84.Opts, error) {
	opts, err := cfg.Simulation.Opts()
	if err != nil {
		return bb84.Opts{}, err
	}
	opts.Rand = photon.NewSource(cfg.Simulation.Seed)
	opts.Log = &log
	return opts, nil
}

func run(cfg *config.Config, log zerolog.Logger, w io.Writer) error {
	if flag.CommandLine.Changed("trials") {
		return runTrials(cfg, log, w)
	}
	return runSingle(cfg, log, w)
}

func runSingle(cfg *config.Config, log zerolog.Logger, w io.Writer) error {
	opts, err := sessionOpts(cfg, log)
	if err != nil {
		return err
	}
	s, err := bb84.NewSession(opts)
	if err != nil {
		return err
	}
	rep := s.Run()
	log.Info().
		Str("session_id", s.ID().String()).
		Int("qubits", rep.TotalBits).
		Float64("qber", rep.QBERPercent).
		Bool("secure", rep.Secure).
		Msg("Run complete")

	if *transcript != "" {
		t, _ := s.Transcript()
		if err := writeTranscript(*transcript, t); err != nil {
			return err
		}
	}
	if *format == "json" {
		return writeJSON(w, struct {
			Qubits []bb84.Qubit `json:"qubits"`
			Report bb84.Report  `json:"report"`
		}{s.Qubits(), rep})
	}
	printQubits(w, s.Qubits())
	printReport(w, rep)
	return nil
}

func runTrials(cfg *config.Config, log zerolog.Logger, w io.Writer) error {
	opts, err := cfg.Simulation.Opts()
	if err != nil {
		return err
	}
	sum, _, err := bb84.RunTrials(context.Background(), bb84.TrialOpts{
		Qubits:        opts.Qubits,
		Noise:         opts.Noise,
		Eavesdropping: opts.Eavesdropping,
		Trials:        cfg.Trials.Runs,
		Workers:       cfg.Trials.Workers,
		Seed:          cfg.Simulation.Seed,
		Log:           &log,
	})
	if err != nil {
		return err
	}
	if *format == "json" {
		return writeJSON(w, sum)
	}
	fmt.Fprintf(w, "Trials:          %d\n", sum.Trials)
	fmt.Fprintf(w, "QBER:            %.2f%% ± %.2f\n", sum.MeanQBERPercent, sum.StdDevQBERPercent)
	fmt.Fprintf(w, "Efficiency:      %.2f%% ± %.2f\n", sum.MeanEfficiencyPercent, sum.StdDevEfficiencyPercent)
	fmt.Fprintf(w, "Mean key length: %.2f\n", sum.MeanKeyLength)
	fmt.Fprintf(w, "Secure runs:     %.1f%%\n", sum.SecureFraction*100)
	return nil
}

func step(cfg *config.Config, log zerolog.Logger, w io.Writer) error {
	opts, err := sessionOpts(cfg, log)
	if err != nil {
		return err
	}
	s, err := bb84.NewSession(opts)
	if err != nil {
		return err
	}
	for snap := s.Snapshot(); ; snap = s.Advance() {
		switch snap.Phase {
		case bb84.Transmitting:
			q := snap.Current
			fmt.Fprintf(w, "[%d/%d] Alice sends %d as %s (%s, basis %s); Bob measures in %s and reads %d",
				snap.Cursor+1, snap.QubitCount, q.AliceBit, q.Polarization(), q.Label(),
				q.AliceBasis.Symbol(), q.BobBasis.Symbol(), q.BobMeasurement)
			switch {
			case !q.BasesMatch():
				fmt.Fprint(w, " - bases differ, discarded")
			case q.HasError():
				fmt.Fprint(w, " - bases match, but the bit arrived wrong")
			default:
				fmt.Fprint(w, " - bases match, kept")
			}
			fmt.Fprintln(w)
		case bb84.Comparing:
			fmt.Fprintln(w, "Comparing bases over the public channel...")
		case bb84.Done:
			rep, _ := s.Report()
			printReport(w, rep)
			return nil
		}
		if *delay > 0 {
			time.Sleep(*delay)
		}
	}
}

func serve(cfg *config.Config, log zerolog.Logger) error {
	srv := server.New(server.Config{
		Port: cfg.Server.Port,
		Log:  log,
		Seed: cfg.Simulation.Seed,
	})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func replay(path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	t, err := bb84.ReadTranscript(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if *format == "json" {
		return writeJSON(w, struct {
			ID     string       `json:"id"`
			Qubits []bb84.Qubit `json:"qubits"`
			Report bb84.Report  `json:"report"`
		}{t.ID.String(), t.Qubits, t.Report()})
	}
	fmt.Fprintf(w, "Session %s (noise %.0f%%, eavesdropping %.0f%%)\n", t.ID, t.Noise*100, t.Eavesdropping*100)
	printQubits(w, t.Qubits)
	printReport(w, t.Report())
	return nil
}

func writeTranscript(path string, t bb84.Transcript) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := bb84.WriteTranscript(f, t); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printQubits(w io.Writer, qs []bb84.Qubit) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tBIT\tBASIS\tPHOTON\tBOB BASIS\tBOB BIT\tEVE\tNOISE\tKEPT")
	for _, q := range qs {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s %s\t%s\t%d\t%s\t%s\t%s\n",
			q.Index, q.AliceBit, q.AliceBasis.Symbol(), q.Polarization(), q.Label(),
			q.BobBasis.Symbol(), q.BobMeasurement, mark(q.Intercepted), mark(q.Noisy), mark(q.Kept()))
	}
	tw.Flush()
}

func printReport(w io.Writer, r bb84.Report) {
	fmt.Fprintf(w, "Bits sent:       %d\n", r.TotalBits)
	fmt.Fprintf(w, "Matching bases:  %d\n", r.MatchingBases)
	fmt.Fprintf(w, "Errors:          %d\n", r.ErrorCount)
	fmt.Fprintf(w, "QBER:            %.1f%%\n", r.QBERPercent)
	fmt.Fprintf(w, "Final key:       %s (%d bits, %.1f%% efficiency)\n", r.KeyString(), r.FinalKeyLength, r.EfficiencyPercent)
	if r.Secure {
		fmt.Fprintf(w, "Secure: QBER below the %.0f%% threshold.\n", r.SecurityThresholdPercent)
	} else {
		fmt.Fprintf(w, "Potentially compromised: QBER at or above the %.0f%% threshold; discard the key.\n", r.SecurityThresholdPercent)
	}
}

func mark(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
