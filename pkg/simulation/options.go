package simulation

import (
	"github.com/dd0wney/cluso-hydronet/pkg/hydraulic"
	"github.com/dd0wney/cluso-hydronet/pkg/quality"
)

// Options configures an extended-period run. All times are in seconds.
type Options struct {
	// Duration is the total simulated time. Zero runs a single
	// steady-state solve.
	Duration int64
	// HydStep is the nominal hydraulic time step; events, pattern and
	// report boundaries shorten individual steps below it.
	HydStep int64
	// PatternStep is the period of demand and source patterns.
	PatternStep int64
	// PatternStart offsets pattern lookups, letting a run begin partway
	// through a pattern cycle.
	PatternStart int64
	// ReportStep aligns steps to reporting boundaries. Zero disables
	// the alignment.
	ReportStep int64
	// ReportStart is the time of the first reporting boundary.
	ReportStart int64
	// RuleStep is the rule evaluation period. Zero evaluates once per
	// hydraulic step.
	RuleStep int64
	// StartClock is the wall-clock time of simulation start, seconds
	// past midnight, used by clock-time controls and rules.
	StartClock int64

	Hydraulic hydraulic.Options
	Quality   quality.Options
	// RunQuality enables the transport engine alongside hydraulics.
	RunQuality bool
}

// DefaultOptions returns a 24 hour run at one hour steps with rule
// checks every 6 minutes, quality off.
func DefaultOptions() Options {
	return Options{
		Duration:    86400,
		HydStep:     3600,
		PatternStep: 3600,
		ReportStep:  3600,
		RuleStep:    360,
		Hydraulic:   hydraulic.DefaultOptions(),
		Quality:     quality.DefaultOptions(),
	}
}
