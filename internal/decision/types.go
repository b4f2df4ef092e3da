package decision

import (
	"github.com/nerrad567/roomctl-core/internal/infrastructure/config"
	"github.com/nerrad567/roomctl-core/internal/telemetry"
)

// Action is what the engine recommends doing with a device's lighting.
type Action string

// Actions produced by both strategies.
const (
	ActionTurnOn  Action = "turn_on"
	ActionTurnOff Action = "turn_off"
	ActionReduce  Action = "reduce"
	ActionKeep    Action = "keep"
)

// Strategy identifies which decider produced a Decision.
type Strategy string

const (
	StrategyRules Strategy = "rule_based"
	StrategyModel Strategy = "model"
)

// Device statuses sent to actuators.
const (
	StatusOn  = "on"
	StatusOff = "off"
)

// Decision is the engine's recommendation for one snapshot. It is consumed
// immediately by dispatch and never persisted.
type Decision struct {
	Action Action
	// EnergyDelta is the estimated saving in kWh versus the baseline.
	EnergyDelta     float64
	Reason          string
	Strategy        Strategy
	AmbientAdjusted bool
}

// Decider turns a snapshot into a decision.
type Decider interface {
	Decide(s telemetry.Snapshot) Decision
}

// Thresholds are the tunable constants of both strategies.
type Thresholds struct {
	// LightsOn is the usage above which lights count as on.
	LightsOn float64
	// BaselineLoad is the full-load consumption assumed for an occupied room.
	BaselineLoad float64
	// ReducedLoad is the consumption after a reduce action.
	ReducedLoad    float64
	PeakUsage      float64
	PeakWasteHours []int
	NightStart     int
	NightEnd       int
	Ambient        float64
	AmbientCredit  float64
}

// Default threshold values.
const (
	DefaultLightsOnThreshold  = 0.15
	DefaultBaselineLoad       = 0.15
	DefaultReducedLoad        = 0.15
	DefaultPeakUsageThreshold = 0.3
	DefaultNightStartHour     = 23
	DefaultNightEndHour       = 5
	DefaultAmbientThreshold   = 65
	DefaultAmbientCredit      = 0.1
)

// DefaultPeakWasteHours are the morning hours where heavy usage is reduced.
var DefaultPeakWasteHours = []int{6, 7, 8, 9, 11}

// DefaultThresholds returns the stock tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LightsOn:       DefaultLightsOnThreshold,
		BaselineLoad:   DefaultBaselineLoad,
		ReducedLoad:    DefaultReducedLoad,
		PeakUsage:      DefaultPeakUsageThreshold,
		PeakWasteHours: append([]int(nil), DefaultPeakWasteHours...),
		NightStart:     DefaultNightStartHour,
		NightEnd:       DefaultNightEndHour,
		Ambient:        DefaultAmbientThreshold,
		AmbientCredit:  DefaultAmbientCredit,
	}
}

// ThresholdsFromConfig maps the decision config section.
func ThresholdsFromConfig(cfg config.DecisionConfig) Thresholds {
	return Thresholds{
		LightsOn:       cfg.LightsOnThreshold,
		BaselineLoad:   cfg.BaselineLoad,
		ReducedLoad:    cfg.ReducedLoad,
		PeakUsage:      cfg.PeakUsageThreshold,
		PeakWasteHours: append([]int(nil), cfg.PeakWasteHours...),
		NightStart:     cfg.NightStartHour,
		NightEnd:       cfg.NightEndHour,
		Ambient:        cfg.AmbientThreshold,
		AmbientCredit:  cfg.AmbientCredit,
	}
}

// LightsOnFor reports whether the snapshot's usage implies lights are on.
func (t Thresholds) LightsOnFor(s telemetry.Snapshot) bool {
	return s.Usage > t.LightsOn
}

func (t Thresholds) isPeak(hour int) bool {
	for _, h := range t.PeakWasteHours {
		if h == hour {
			return true
		}
	}
	return false
}

// isNight handles windows that wrap past midnight.
func (t Thresholds) isNight(hour int) bool {
	if t.NightStart <= t.NightEnd {
		return hour >= t.NightStart && hour <= t.NightEnd
	}
	return hour >= t.NightStart || hour <= t.NightEnd
}

// energyDelta is baseline minus projected consumption after action.
func (t Thresholds) energyDelta(a Action, s telemetry.Snapshot) float64 {
	baseline := 0.0
	if s.Occupied {
		baseline = t.BaselineLoad
	}

	var projected float64
	switch a {
	case ActionTurnOn:
		projected = t.BaselineLoad
	case ActionTurnOff:
		projected = 0
	case ActionReduce:
		projected = min(s.Usage, t.ReducedLoad)
	default:
		projected = s.Usage
	}
	return baseline - projected
}

// Status maps a decision to the device status it implies. Keep resolves
// to the device's current state.
func (t Thresholds) Status(d Decision, s telemetry.Snapshot) string {
	switch d.Action {
	case ActionTurnOn:
		return StatusOn
	case ActionTurnOff, ActionReduce:
		return StatusOff
	default:
		if t.LightsOnFor(s) {
			return StatusOn
		}
		return StatusOff
	}
}
