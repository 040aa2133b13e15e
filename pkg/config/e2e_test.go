package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-hydronet/pkg/logging"
	"github.com/dd0wney/cluso-hydronet/pkg/metrics"
	"github.com/dd0wney/cluso-hydronet/pkg/simulation"
)

// End-to-end: parse a scenario, run it, and check the delivered state.
const runScenario = `
title: gravity main
options:
  duration: 7200
  hydraulic_step: 3600
  quality:
    mode: chemical

reservoirs:
  - id: R1
    head: 100
    init_quality: 1.0

junctions:
  - id: J1
    elevation: 0
    demand: 1.0

pipes:
  - id: P1
    from: R1
    to: J1
    length: 1000
    diameter: 12
    roughness: 100
`

func TestScenarioRunsEndToEnd(t *testing.T) {
	net, opt, err := Parse([]byte(runScenario))
	require.NoError(t, err)

	sim := simulation.New(net, opt, logging.NewNopLogger(), metrics.NewRegistry())
	require.NoError(t, sim.Open())
	defer sim.Close()

	result, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(7200), result.Clock)
	assert.Equal(t, 3, result.Steps)
	assert.Empty(t, result.Warnings)

	ji, ok := net.NodeIndex("J1")
	require.True(t, ok)
	assert.InDelta(t, 1.0, net.DemandFlow[ji], 1e-6)
	assert.Greater(t, net.Head[ji], 0.0)
	assert.Less(t, net.Head[ji], 100.0)

	// Source water reaches the junction well inside two hours.
	assert.InDelta(t, 1.0, net.Quality[ji], 0.01)
	require.NotNil(t, result.MassBalance)
	assert.Less(t, result.MassBalance.Error(), 0.02)
}
