// Package config loads YAML scenario files: run options plus the full
// network description, resolved into a network.Network and
// simulation.Options ready to run.
package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Scenario is the top-level YAML document.
type Scenario struct {
	Title   string     `yaml:"title"`
	Options RunOptions `yaml:"options"`

	Patterns []PatternDef `yaml:"patterns" validate:"dive"`
	Curves   []CurveDef   `yaml:"curves" validate:"dive"`

	Junctions  []JunctionDef  `yaml:"junctions" validate:"dive"`
	Reservoirs []ReservoirDef `yaml:"reservoirs" validate:"dive"`
	Tanks      []TankDef      `yaml:"tanks" validate:"dive"`

	Pipes  []PipeDef  `yaml:"pipes" validate:"dive"`
	Pumps  []PumpDef  `yaml:"pumps" validate:"dive"`
	Valves []ValveDef `yaml:"valves" validate:"dive"`

	Controls []ControlDef `yaml:"controls" validate:"dive"`
	Rules    []RuleDef    `yaml:"rules" validate:"dive"`
}

// RunOptions configures the run. Times are in seconds; zero values fall
// back to the simulation defaults.
type RunOptions struct {
	Duration    int64 `yaml:"duration" validate:"gte=0"`
	HydStep     int64 `yaml:"hydraulic_step" validate:"gte=0"`
	PatternStep int64 `yaml:"pattern_step" validate:"gte=0"`
	ReportStep  int64 `yaml:"report_step" validate:"gte=0"`
	RuleStep    int64 `yaml:"rule_step" validate:"gte=0"`
	StartClock  int64 `yaml:"start_clock" validate:"gte=0,lt=86400"`

	Headloss         string  `yaml:"headloss" validate:"omitempty,oneof=hazen-williams darcy-weisbach chezy-manning"`
	DemandModel      string  `yaml:"demand_model" validate:"omitempty,oneof=dda pda"`
	Trials           int     `yaml:"trials" validate:"gte=0"`
	Accuracy         float64 `yaml:"accuracy" validate:"gte=0"`
	HeadError        float64 `yaml:"head_error" validate:"gte=0"`
	FlowChange       float64 `yaml:"flow_change" validate:"gte=0"`
	Unbalanced       string  `yaml:"unbalanced" validate:"omitempty,oneof=continue stop"`
	MinPressure      float64 `yaml:"minimum_pressure"`
	RequiredPressure float64 `yaml:"required_pressure" validate:"gte=0"`
	PressureExponent float64 `yaml:"pressure_exponent" validate:"gte=0"`
	EmitterExponent  float64 `yaml:"emitter_exponent" validate:"gte=0"`
	DemandMultiplier float64 `yaml:"demand_multiplier" validate:"gte=0"`
	Viscosity        float64 `yaml:"viscosity" validate:"gte=0"`
	SpecificGravity  float64 `yaml:"specific_gravity" validate:"gte=0"`

	Quality QualityDef `yaml:"quality"`
}

// QualityDef enables and configures the transport engine.
type QualityDef struct {
	Mode      string  `yaml:"mode" validate:"omitempty,oneof=none chemical age trace"`
	TraceNode string  `yaml:"trace_node"`
	Step      int64   `yaml:"step" validate:"gte=0"`
	Tolerance float64 `yaml:"tolerance" validate:"gte=0"`
	Limit     float64 `yaml:"limit" validate:"gte=0"`
}

type PatternDef struct {
	ID      string    `yaml:"id" validate:"required"`
	Factors []float64 `yaml:"factors" validate:"required,min=1"`
}

type CurveDef struct {
	ID     string       `yaml:"id" validate:"required"`
	Points [][2]float64 `yaml:"points" validate:"required,min=1"`
}

type DemandDef struct {
	Base     float64 `yaml:"base"`
	Pattern  string  `yaml:"pattern"`
	Category string  `yaml:"category"`
}

type SourceDef struct {
	Type     string  `yaml:"type" validate:"required,oneof=concen mass flowpaced setpoint"`
	Strength float64 `yaml:"strength" validate:"gte=0"`
	Pattern  string  `yaml:"pattern"`
}

type JunctionDef struct {
	ID        string      `yaml:"id" validate:"required"`
	Elevation float64     `yaml:"elevation"`
	Demand    float64     `yaml:"demand"`
	Pattern   string      `yaml:"pattern"`
	Demands   []DemandDef `yaml:"demands" validate:"dive"`
	Emitter   float64     `yaml:"emitter" validate:"gte=0"`
	InitQual  float64     `yaml:"init_quality" validate:"gte=0"`
	Source    *SourceDef  `yaml:"source"`
}

type ReservoirDef struct {
	ID       string     `yaml:"id" validate:"required"`
	Head     float64    `yaml:"head"`
	InitQual float64    `yaml:"init_quality" validate:"gte=0"`
	Source   *SourceDef `yaml:"source"`
}

type TankDef struct {
	ID          string  `yaml:"id" validate:"required"`
	Elevation   float64 `yaml:"elevation"`
	Diameter    float64 `yaml:"diameter" validate:"gte=0"`
	MinLevel    float64 `yaml:"min_level" validate:"gte=0"`
	MaxLevel    float64 `yaml:"max_level" validate:"gtefield=MinLevel"`
	InitLevel   float64 `yaml:"init_level"`
	MinVolume   float64 `yaml:"min_volume" validate:"gte=0"`
	VolumeCurve string  `yaml:"volume_curve"`
	Mixing      string  `yaml:"mixing" validate:"omitempty,oneof=mix1 mix2 fifo lifo"`
	MixFraction float64 `yaml:"mix_fraction" validate:"gte=0,lte=1"`
	BulkCoeff   float64 `yaml:"bulk_coeff"`
	InitQual    float64 `yaml:"init_quality" validate:"gte=0"`
	Overflow    bool    `yaml:"overflow"`
}

type PipeDef struct {
	ID         string  `yaml:"id" validate:"required"`
	From       string  `yaml:"from" validate:"required"`
	To         string  `yaml:"to" validate:"required"`
	Length     float64 `yaml:"length" validate:"gt=0"`
	Diameter   float64 `yaml:"diameter" validate:"gt=0"`
	Roughness  float64 `yaml:"roughness" validate:"gt=0"`
	MinorLoss  float64 `yaml:"minor_loss" validate:"gte=0"`
	CheckValve bool    `yaml:"check_valve"`
	Status     string  `yaml:"status" validate:"omitempty,oneof=open closed"`
	BulkCoeff  float64 `yaml:"bulk_coeff"`
	WallCoeff  float64 `yaml:"wall_coeff"`
}

type PumpDef struct {
	ID              string  `yaml:"id" validate:"required"`
	From            string  `yaml:"from" validate:"required"`
	To              string  `yaml:"to" validate:"required"`
	Power           float64 `yaml:"power" validate:"gte=0"`
	HeadCurve       string  `yaml:"head_curve"`
	EfficiencyCurve string  `yaml:"efficiency_curve"`
	Speed           float64 `yaml:"speed" validate:"gte=0"`
	Status          string  `yaml:"status" validate:"omitempty,oneof=open closed"`
}

type ValveDef struct {
	ID        string  `yaml:"id" validate:"required"`
	From      string  `yaml:"from" validate:"required"`
	To        string  `yaml:"to" validate:"required"`
	Type      string  `yaml:"type" validate:"required,oneof=prv psv pbv fcv tcv gpv"`
	Diameter  float64 `yaml:"diameter" validate:"gt=0"`
	Setting   float64 `yaml:"setting" validate:"gte=0"`
	Curve     string  `yaml:"curve"` // gpv headloss curve
	MinorLoss float64 `yaml:"minor_loss" validate:"gte=0"`
	Status    string  `yaml:"status" validate:"omitempty,oneof=open closed active"`
}

type ControlDef struct {
	Link    string   `yaml:"link" validate:"required"`
	Type    string   `yaml:"type" validate:"required,oneof=low_level high_level timer clock"`
	Node    string   `yaml:"node"`
	Level   float64  `yaml:"level"`
	Time    int64    `yaml:"time" validate:"gte=0"`
	Status  string   `yaml:"status" validate:"omitempty,oneof=open closed active"`
	Setting *float64 `yaml:"setting"`
}

type PremiseDef struct {
	Join     string  `yaml:"join" validate:"omitempty,oneof=and or"`
	Object   string  `yaml:"object" validate:"required,oneof=node link system"`
	ID       string  `yaml:"id"`
	Variable string  `yaml:"variable" validate:"required"`
	Op       string  `yaml:"op" validate:"required,oneof== <> != < > <= >="`
	Value    float64 `yaml:"value"`
	Status   string  `yaml:"status" validate:"omitempty,oneof=open closed active"`
}

type ActionDef struct {
	Link    string   `yaml:"link" validate:"required"`
	Status  string   `yaml:"status" validate:"omitempty,oneof=open closed active"`
	Setting *float64 `yaml:"setting"`
}

type RuleDef struct {
	Name     string       `yaml:"name" validate:"required"`
	Priority float64      `yaml:"priority" validate:"gte=0"`
	If       []PremiseDef `yaml:"if" validate:"required,min=1,dive"`
	Then     []ActionDef  `yaml:"then" validate:"required,min=1,dive"`
	Else     []ActionDef  `yaml:"else" validate:"dive"`
}

// formatValidationError rewrites validator errors into field messages.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, e := range verrs {
		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", e.Namespace())
		case "oneof":
			return fmt.Errorf("%s: must be one of %s", e.Namespace(), e.Param())
		case "gte", "gt", "lte", "lt":
			return fmt.Errorf("%s: value %v fails bound %s=%s", e.Namespace(), e.Value(), e.Tag(), e.Param())
		case "gtefield":
			return fmt.Errorf("%s: must not be below %s", e.Namespace(), e.Param())
		case "min", "max":
			return fmt.Errorf("%s: length must respect %s=%s", e.Namespace(), e.Tag(), e.Param())
		default:
			return fmt.Errorf("%s: validation failed (%s)", e.Namespace(), e.Tag())
		}
	}
	return err
}
