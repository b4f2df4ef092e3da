// Package decision turns a telemetry snapshot into a lighting action.
//
// Two strategies implement Decider: RuleBased, a fixed chain of threshold
// rules, and ModelBased, which asks a trained logistic-regression Predictor
// and falls back to the rules whenever the predictor errors. The strategy is
// picked once by Select; Engine then applies Ambient to every result so a
// light is never switched on when daylight already meets the threshold.
//
// Energy deltas are estimates in kWh against a policy baseline: BaselineLoad
// when the room is occupied, zero otherwise.
package decision
