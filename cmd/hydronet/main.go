package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/cluso-hydronet/pkg/config"
	"github.com/dd0wney/cluso-hydronet/pkg/logging"
	"github.com/dd0wney/cluso-hydronet/pkg/metrics"
	"github.com/dd0wney/cluso-hydronet/pkg/network"
	"github.com/dd0wney/cluso-hydronet/pkg/output"
	"github.com/dd0wney/cluso-hydronet/pkg/simulation"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 2)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFF00"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00"))
)

func main() {
	scenario := flag.String("scenario", "", "Scenario YAML file (required)")
	dataDir := flag.String("data", "./data/hydronet", "Results directory")
	verbose := flag.Bool("verbose", false, "Log every simulation step")
	noLog := flag.Bool("no-log", false, "Skip writing the results log")
	flag.Parse()

	if *scenario == "" {
		fmt.Fprintln(os.Stderr, "usage: hydronet -scenario <file.yaml> [-data <dir>]")
		os.Exit(2)
	}

	net, opt, err := config.Load(*scenario)
	if err != nil {
		fatal("load scenario", err)
	}
	fmt.Println(titleStyle.Render("Cluso HydroNet"))
	fmt.Printf("scenario: %s\n", net.Title)
	fmt.Printf("network:  %d junctions, %d tanks/reservoirs, %d links\n",
		net.Njunctions, net.Ntanks(), len(net.Links))

	level := logging.WarnLevel
	if *verbose {
		level = logging.InfoLevel
	}
	log := logging.NewJSONLogger(os.Stderr, level)
	reg := metrics.NewRegistry()

	sim := simulation.New(net, opt, log, reg)
	if err := sim.Open(); err != nil {
		fatal("open simulation", err)
	}
	defer sim.Close()

	var resultLog *output.Log
	if !*noLog {
		resultLog, err = output.NewLog(*dataDir, net)
		if err != nil {
			fatal("open results log", err)
		}
		defer resultLog.Close()
		sim.SetRecorder(resultLog)
	}

	result, err := sim.Run(context.Background())
	if err != nil {
		fatal("run", err)
	}

	printSummary(net, opt, result, resultLog)
	if len(result.Warnings) > 0 {
		os.Exit(1)
	}
}

func printSummary(net *network.Network, opt simulation.Options, r *simulation.Result, log *output.Log) {
	var b []string
	b = append(b,
		fmt.Sprintf("simulated time   %s", clock(r.Clock)),
		fmt.Sprintf("hydraulic steps  %d", r.Steps),
		fmt.Sprintf("total trials     %d", r.TotalIterations),
		fmt.Sprintf("worst residual   %.6f", r.MaxRelativeError),
	)
	if energy, hours := pumpTotals(net); hours > 0 {
		b = append(b, fmt.Sprintf("pump energy      %.2f kwh over %.1f h", energy, hours))
	}
	if opt.RunQuality && r.MassBalance != nil {
		b = append(b, fmt.Sprintf("mass balance     %.3f%% error", r.MassBalance.Error()*100))
	}
	if log != nil {
		st := log.Statistics()
		b = append(b, fmt.Sprintf("results log      %d records, %.1fx compression (run %s)",
			st.TotalWrites, st.CompressionRatio, log.RunID()))
	}
	fmt.Println(boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, b...)))

	if len(r.Warnings) == 0 {
		fmt.Println(successStyle.Render("run completed clean"))
		return
	}
	fmt.Println(warnStyle.Render(fmt.Sprintf("%d warnings:", len(r.Warnings))))
	for _, w := range r.Warnings {
		fmt.Println(warnStyle.Render("  " + w))
	}
}

func pumpTotals(net *network.Network) (energy, hours float64) {
	for _, p := range net.Pumps {
		energy += p.Energy
		hours = max(hours, p.Hours)
	}
	return energy, hours
}

func clock(seconds int64) string {
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}

func fatal(op string, err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("%s: %v", op, err)))
	os.Exit(1)
}
