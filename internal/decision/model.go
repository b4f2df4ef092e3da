package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/nerrad567/roomctl-core/internal/telemetry"
)

// FeatureCount is the width of the predictor's input vector.
const FeatureCount = 7

// Feature defaults for environmental readings a node did not report.
const (
	DefaultSolarSurplus = -0.95
	DefaultCloudCover   = 0.2
	DefaultVisibility   = 9.5
)

// Model reasons. A confidence suffix is appended.
const (
	ReasonModelEmptySpace       = "ml_prediction_empty_space"
	ReasonModelOptimize         = "ml_prediction_optimize_consumption"
	ReasonModelMaintain         = "ml_prediction_maintain_efficiency"
	ReasonModelAppropriateUsage = "ml_prediction_appropriate_usage"
	ReasonModelFallbackSave     = "ml_prediction_fallback_save"
)

// ClassSaveEnergy is the predictor class recommending a saving action.
const ClassSaveEnergy = 1

// Predictor is a trained binary classifier.
type Predictor interface {
	Predict(features [FeatureCount]float64) (class int, confidence float64, err error)
}

// Features builds the predictor input: hour, usage, lights-on flag,
// occupancy, solar surplus, cloud cover, visibility.
func Features(s telemetry.Snapshot, t Thresholds) [FeatureCount]float64 {
	var f [FeatureCount]float64
	f[0] = float64(s.HourOfDay())
	f[1] = s.Usage
	if t.LightsOnFor(s) {
		f[2] = 1
	}
	if s.Occupied {
		f[3] = 1
	}
	f[4] = valueOr(s.Environment.SolarSurplus, DefaultSolarSurplus)
	f[5] = valueOr(s.Environment.CloudCover, DefaultCloudCover)
	f[6] = valueOr(s.Environment.Visibility, DefaultVisibility)
	return f
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// ModelBased combines a predictor's class with occupancy and lighting
// state. Predictor failures fall back to the rules for that call.
type ModelBased struct {
	predictor Predictor
	fallback  RuleBased
	logger    Logger
}

// NewModelBased creates a model strategy backed by p.
func NewModelBased(p Predictor, t Thresholds, logger Logger) *ModelBased {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ModelBased{predictor: p, fallback: RuleBased{Thresholds: t}, logger: logger}
}

// Decide asks the predictor, falling back to the rules on error or panic.
func (m *ModelBased) Decide(s telemetry.Snapshot) (d Decision) {
	t := m.fallback.Thresholds

	defer func() {
		if p := recover(); p != nil {
			m.logger.Warn("predictor panicked, using rules", "device_id", s.DeviceID, "panic", fmt.Sprint(p))
			d = m.fallback.Decide(s)
		}
	}()

	class, confidence, err := m.predictor.Predict(Features(s, t))
	if err != nil {
		m.logger.Warn("predictor failed, using rules", "device_id", s.DeviceID, "error", err)
		return m.fallback.Decide(s)
	}

	lightsOn := t.LightsOnFor(s)

	var action Action
	var reason string
	if class == ClassSaveEnergy {
		switch {
		case lightsOn && !s.Occupied:
			action, reason = ActionTurnOff, ReasonModelEmptySpace
		case lightsOn:
			action, reason = ActionReduce, ReasonModelOptimize
		default:
			action, reason = ActionKeep, ReasonModelMaintain
		}
	} else {
		if s.Occupied {
			action, reason = ActionTurnOn, ReasonModelAppropriateUsage
		} else {
			action, reason = ActionTurnOff, ReasonModelFallbackSave
		}
	}

	return Decision{
		Action:      action,
		EnergyDelta: t.energyDelta(action, s),
		Reason:      fmt.Sprintf("%s_conf_%.2f", reason, confidence),
		Strategy:    StrategyModel,
	}
}

// LogisticModel is a logistic-regression classifier with optional
// per-feature standardisation.
type LogisticModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Means   []float64 `json:"means,omitempty"`
	Scales  []float64 `json:"scales,omitempty"`
}

// LoadModel reads and validates a model file.
func LoadModel(path string) (*LogisticModel, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Operator-supplied model path
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}

	var m LogisticModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *LogisticModel) validate() error {
	if len(m.Weights) != FeatureCount {
		return fmt.Errorf("%w: %d weights, want %d", ErrInvalidModel, len(m.Weights), FeatureCount)
	}
	if m.Means != nil && len(m.Means) != FeatureCount {
		return fmt.Errorf("%w: %d means, want %d", ErrInvalidModel, len(m.Means), FeatureCount)
	}
	if m.Scales != nil && len(m.Scales) != FeatureCount {
		return fmt.Errorf("%w: %d scales, want %d", ErrInvalidModel, len(m.Scales), FeatureCount)
	}
	for i, s := range m.Scales {
		if s == 0 {
			return fmt.Errorf("%w: scale %d is zero", ErrInvalidModel, i)
		}
	}
	return nil
}

// Predict returns the class and the probability of that class.
func (m *LogisticModel) Predict(features [FeatureCount]float64) (int, float64, error) {
	if err := m.validate(); err != nil {
		return 0, 0, err
	}

	z := m.Bias
	for i, x := range features {
		if m.Means != nil {
			x -= m.Means[i]
		}
		if m.Scales != nil {
			x /= m.Scales[i]
		}
		z += m.Weights[i] * x
	}

	p := 1 / (1 + math.Exp(-z))
	if math.IsNaN(p) {
		return 0, 0, errors.New("decision: model produced NaN")
	}
	if p >= 0.5 {
		return ClassSaveEnergy, p, nil
	}
	return 0, 1 - p, nil
}
