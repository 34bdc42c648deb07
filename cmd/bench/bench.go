// bench.go runs a batch of BB84 simulations for each entry in the cartesian
// product of a collection of tuning parameters, e.g. channel noise and qubits
// sent, and outputs a CSV of summary statistics for each combination, e.g.
// mean QBER and final key length.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/keygenie/bb84sim/bb84"
	"github.com/keygenie/bb84sim/internal/logger"
	flag "github.com/spf13/pflag"
)

var (
	qubits = flag.IntSlice("qubits", []int{8, 32, 128}, "The numbers of qubits Alice sends per run.")
	noise  = flag.Float64Slice("noise", []float64{0}, "The channel noise levels to simulate, in percent.")
	eve    = flag.Float64Slice("eve", []float64{0, 50, 100}, "The eavesdropping levels to simulate, in percent.")
	trials = flag.Int("trials", 200, "The number of independent runs per combination.")
	seed   = flag.Int64("seed", 1, "Base seed; each combination reuses it so rows are comparable.")
	jobs   = flag.Int("workers", bb84.DefaultTrialWorkers, "The number of runs to execute in parallel.")
	level  = flag.String("log-level", "warn", "Log level.")
)

var (
	inputs  = []string{"qubits", "noise", "eve"}
	columns = []string{"Qubits", "NoisePercent", "EavesdroppingPercent", "Trials",
		"MeanQBER", "StdDevQBER", "MeanEfficiency", "StdDevEfficiency",
		"MeanKeyBits", "SecureFraction", "Succeeded"}
)

// An Experiment packages together the result of benchmarking a single
// parameterization for easy formatting.
type Experiment struct {
	// Fields corresponding to experiment parameters
	Qubits               int
	NoisePercent         float64
	EavesdroppingPercent float64
	Trials               int

	// Fields corresponding to experiment results
	MeanQBER, StdDevQBER             string
	MeanEfficiency, StdDevEfficiency string
	MeanKeyBits                      string
	SecureFraction                   string
	Succeeded                        bool
}

func main() {
	flag.Parse()
	log := logger.New(logger.Config{Level: *level})
	fmt.Println(header())
	tmpl := template.Must(template.New("line").Parse(lineTmpl()))
	var args [][]interface{}
	for _, inp := range inputs {
		args = append(args, lookupInput(inp))
	}
	applyCartesian(func(args []interface{}) {
		exp := &Experiment{
			Qubits:               args[inpIndex("qubits")].(int),
			NoisePercent:         args[inpIndex("noise")].(float64),
			EavesdroppingPercent: args[inpIndex("eve")].(float64),
			Trials:               *trials,
		}
		if err := bench(exp); err != nil {
			log.Warn().Err(err).Interface("experiment", exp).Msg("Benchmark failed")
		}
		if err := tmpl.Execute(os.Stdout, exp); err != nil {
			log.Fatal().Err(err).Msg("BUG: could not fill in line template")
		}
	}, args)
}

func inpIndex(v string) int {
	for i, inp := range inputs {
		if inp == v {
			return i
		}
	}
	return -1
}

func bench(exp *Experiment) error {
	noise, err := bb84.FromPercent(exp.NoisePercent)
	if err != nil {
		return err
	}
	eaves, err := bb84.FromPercent(exp.EavesdroppingPercent)
	if err != nil {
		return err
	}
	sum, _, err := bb84.RunTrials(context.Background(), bb84.TrialOpts{
		Qubits:        exp.Qubits,
		Noise:         noise,
		Eavesdropping: eaves,
		Trials:        exp.Trials,
		Workers:       *jobs,
		Seed:          *seed,
	})
	if err != nil {
		return err
	}
	exp.MeanQBER = fmt.Sprintf("%.3f", sum.MeanQBERPercent)
	exp.StdDevQBER = fmt.Sprintf("%.3f", sum.StdDevQBERPercent)
	exp.MeanEfficiency = fmt.Sprintf("%.3f", sum.MeanEfficiencyPercent)
	exp.StdDevEfficiency = fmt.Sprintf("%.3f", sum.StdDevEfficiencyPercent)
	exp.MeanKeyBits = fmt.Sprintf("%.2f", sum.MeanKeyLength)
	exp.SecureFraction = fmt.Sprintf("%.3f", sum.SecureFraction)
	exp.Succeeded = true
	return nil
}

func header() string {
	return strings.Join(columns, ", ")
}

func lineTmpl() string {
	var els []string
	for _, c := range columns {
		els = append(els, "{{."+c+"}}")
	}
	return strings.Join(els, ", ") + "\n"
}

func lookupInput(name string) []interface{} {
	var r []interface{}
	if v, err := flag.CommandLine.GetIntSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := flag.CommandLine.GetFloat64Slice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else {
		fmt.Fprintf(os.Stderr, "bench: unknown type for input %s\n", name)
		os.Exit(2)
	}
	return r
}

// applyCartesian calls f once for every combination that takes one value from
// each of args.
func applyCartesian(f func([]interface{}), args [][]interface{}) {
	for i := range args {
		if len(args[i]) == 1 {
			continue
		}
		l := make([][]interface{}, len(args))
		r := make([][]interface{}, len(args))
		copy(l, args)
		copy(r, args)
		l[i] = args[i][:1]
		r[i] = args[i][1:]
		applyCartesian(f, l)
		applyCartesian(f, r)
		return
	}
	x := make([]interface{}, 0, len(args))
	for _, a := range args {
		x = append(x, a[0])
	}
	f(x)
}
