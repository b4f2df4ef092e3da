package decision

import (
	"github.com/nerrad567/roomctl-core/internal/infrastructure/config"
	"github.com/nerrad567/roomctl-core/internal/telemetry"
)

// Logger is the logging surface the engine needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Engine runs the selected strategy and then the ambient stage.
type Engine struct {
	decider    Decider
	thresholds Thresholds
}

// NewEngine wraps decider with the ambient adjustment.
func NewEngine(decider Decider, t Thresholds) *Engine {
	return &Engine{decider: decider, thresholds: t}
}

// Select picks the strategy once at startup. A model that fails to load
// is logged and the rules are used instead.
func Select(cfg config.DecisionConfig, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	t := ThresholdsFromConfig(cfg)

	if cfg.ModelPath == "" {
		logger.Info("decision engine using rules")
		return NewEngine(RuleBased{Thresholds: t}, t)
	}

	model, err := LoadModel(cfg.ModelPath)
	if err != nil {
		logger.Warn("model unavailable, using rules", "path", cfg.ModelPath, "error", err)
		return NewEngine(RuleBased{Thresholds: t}, t)
	}

	logger.Info("decision engine using model", "path", cfg.ModelPath)
	return NewEngine(NewModelBased(model, t, logger), t)
}

// Decide produces the final decision for s.
func (e *Engine) Decide(s telemetry.Snapshot) Decision {
	return Ambient(e.decider.Decide(s), s, e.thresholds)
}

// Status maps d to an actuator status for s.
func (e *Engine) Status(d Decision, s telemetry.Snapshot) string {
	return e.thresholds.Status(d, s)
}

// Thresholds returns the engine's tuning.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// UsesModel reports whether the model strategy was selected.
func (e *Engine) UsesModel() bool {
	_, ok := e.decider.(*ModelBased)
	return ok
}
