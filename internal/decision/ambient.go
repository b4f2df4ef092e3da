package decision

import "github.com/nerrad567/roomctl-core/internal/telemetry"

// ReasonAmbientSuffix marks decisions downgraded by daylight.
const ReasonAmbientSuffix = "_ambient_sufficient"

// Ambient cancels a turn-on when measured light already meets the threshold
// and credits the avoided load. Other decisions pass through unchanged.
func Ambient(d Decision, s telemetry.Snapshot, t Thresholds) Decision {
	if d.Action != ActionTurnOn || s.Illuminance < t.Ambient {
		return d
	}
	d.Action = ActionTurnOff
	d.EnergyDelta = t.energyDelta(ActionTurnOff, s) + t.AmbientCredit
	d.Reason += ReasonAmbientSuffix
	d.AmbientAdjusted = true
	return d
}
