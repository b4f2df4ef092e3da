package decision

import "github.com/nerrad567/roomctl-core/internal/telemetry"

// Rule reasons.
const (
	ReasonNighttimeWaste   = "rule_based_nighttime_waste"
	ReasonEmptySpaceWaste  = "rule_based_empty_space_waste"
	ReasonPeakOptimization = "rule_based_peak_hour_optimization"
	ReasonAppropriateUsage = "rule_based_appropriate_usage"
	ReasonEfficientUsage   = "rule_based_efficient_usage"
)

// RuleBased is the deterministic threshold strategy.
type RuleBased struct {
	Thresholds Thresholds
}

// Decide evaluates the rules in order; the first match wins.
func (r RuleBased) Decide(s telemetry.Snapshot) Decision {
	t := r.Thresholds
	hour := s.HourOfDay()
	lightsOn := t.LightsOnFor(s)

	var action Action
	var reason string
	switch {
	case t.isNight(hour) && lightsOn && !s.Occupied:
		action, reason = ActionTurnOff, ReasonNighttimeWaste
	case lightsOn && !s.Occupied:
		action, reason = ActionTurnOff, ReasonEmptySpaceWaste
	case t.isPeak(hour) && s.Usage > t.PeakUsage:
		action, reason = ActionReduce, ReasonPeakOptimization
	case s.Occupied:
		action, reason = ActionTurnOn, ReasonAppropriateUsage
	default:
		action, reason = ActionKeep, ReasonEfficientUsage
	}

	return Decision{
		Action:      action,
		EnergyDelta: t.energyDelta(action, s),
		Reason:      reason,
		Strategy:    StrategyRules,
	}
}
