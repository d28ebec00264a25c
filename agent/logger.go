package agent

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the run orchestrator's event
// vocabulary (step/action/navigate/error) as structured fields.
type Logger struct {
	enabled bool
	zl      zerolog.Logger

	stepCount     int
	stepStartTime time.Time
	taskStartTime time.Time

	tokens *TokenCounter
}

// NewLogger creates a Logger writing structured JSON to stderr when
// enabled; a disabled Logger is a safe no-op for every method. It starts
// with a default TokenCounter bound to a 1M-token context window; replace
// it with SetTokenCounter once a run knows its model's real window.
func NewLogger(enabled bool) *Logger {
	return &Logger{
		enabled: enabled,
		zl:      zerolog.New(os.Stderr).With().Timestamp().Logger(),
		tokens:  NewTokenCounter(0),
	}
}

// SetTokenCounter replaces the Logger's token-budget tracker, e.g. once a
// run's Client reports the model's actual context window.
func (l *Logger) SetTokenCounter(tc *TokenCounter) {
	if tc != nil {
		l.tokens = tc
	}
}

// GetTokens returns the Logger's current token-budget tracker.
func (l *Logger) GetTokens() *TokenCounter { return l.tokens }

// PromptTokens logs an estimate of the given turn prompt's token cost
// against the tracked budget.
func (l *Logger) PromptTokens(stepID string, textTokens, imageTokens int) {
	if !l.enabled {
		return
	}
	total := textTokens + imageTokens
	l.zl.Debug().
		Str("stepId", stepID).
		Int("textTokens", textTokens).
		Int("imageTokens", imageTokens).
		Int("totalTokens", total).
		Int("maxTokens", l.tokens.maxTokens).
		Msg("prompt_tokens")
}

// StartTask marks the beginning of a run's step loop.
func (l *Logger) StartTask() {
	l.taskStartTime = time.Now()
	l.stepCount = 0
}

// IncrementStep increments the step counter and resets per-step timing.
func (l *Logger) IncrementStep() int {
	l.stepCount++
	l.stepStartTime = time.Now()
	return l.stepCount
}

// GetStep returns the current step count.
func (l *Logger) GetStep() int { return l.stepCount }

// StepDuration returns the duration since the current step began.
func (l *Logger) StepDuration() time.Duration {
	if l.stepStartTime.IsZero() {
		return 0
	}
	return time.Since(l.stepStartTime)
}

// TaskDuration returns the duration since the run began.
func (l *Logger) TaskDuration() time.Duration {
	if l.taskStartTime.IsZero() {
		return 0
	}
	return time.Since(l.taskStartTime)
}

// Action logs one action about to be applied.
func (l *Logger) Action(stepID, action string, args map[string]any) {
	if !l.enabled {
		return
	}
	l.zl.Info().
		Int("step", l.IncrementStep()).
		Str("stepId", stepID).
		Str("action", action).
		Interface("args", args).
		Msg("action")
}

// ActionResult logs the outcome of the most recently applied action.
func (l *Logger) ActionResult(success bool, message string) {
	if !l.enabled {
		return
	}
	l.zl.Info().
		Bool("success", success).
		Dur("duration", l.StepDuration()).
		Msg(message)
}

// Navigate logs a navigation.
func (l *Logger) Navigate(kind, url string) {
	if !l.enabled {
		return
	}
	l.zl.Info().Int("step", l.IncrementStep()).Str("kind", kind).Str("url", url).Msg("navigate")
}

// Wait logs a deliberate pause.
func (l *Logger) Wait(reason string) {
	if !l.enabled {
		return
	}
	l.zl.Debug().Str("reason", reason).Msg("wait")
}

// Checkpoint logs a checkpoint evaluation.
func (l *Logger) Checkpoint(stepID string, score, threshold float64, matched bool) {
	if !l.enabled {
		return
	}
	l.zl.Info().
		Str("stepId", stepID).
		Float64("score", score).
		Float64("threshold", threshold).
		Bool("matched", matched).
		Msg("checkpoint_evaluated")
}

// Done logs run completion.
func (l *Logger) Done(success bool, summary string) {
	if !l.enabled {
		return
	}
	l.zl.Info().
		Bool("success", success).
		Int("steps", l.stepCount).
		Dur("duration", l.TaskDuration()).
		Msg(summary)
}

// HumanTakeover logs an operator confirmation or variable request.
func (l *Logger) HumanTakeover(reason string) {
	if !l.enabled {
		return
	}
	l.zl.Warn().Msg(reason)
}

// Error logs an error with its originating context.
func (l *Logger) Error(context string, err error) {
	if !l.enabled {
		return
	}
	l.zl.Error().Str("context", context).Err(err).Msg("error")
}

// Debug logs a formatted debug message.
func (l *Logger) Debug(format string, args ...any) {
	if !l.enabled {
		return
	}
	l.zl.Debug().Msgf(format, args...)
}

// Info logs a formatted informational message.
func (l *Logger) Info(format string, args ...any) {
	if !l.enabled {
		return
	}
	l.zl.Info().Msgf(format, args...)
}
