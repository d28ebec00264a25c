// Package config loads the run orchestrator's process-wide configuration
// from the environment, the way github.com/polzovatel/ai-agent-for-browser-fast
// loads its own settings: a best-effort .env load via godotenv followed by
// os.Getenv reads with typed defaults.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Runner holds every environment-configurable knob the plan runner, the run
// registry and the teach session manager read at process start.
type Runner struct {
	// MaxTurnsPerStep bounds the action-agent turn budget for a single step.
	MaxTurnsPerStep int
	// CheckpointThreshold is the minimum perceptual-similarity score (0-1)
	// a checkpoint-gated step must reach to be considered complete.
	CheckpointThreshold float64
	// EmbeddedFrameTimeout bounds how long WaitForEmbeddedPage waits for a
	// child frame to become ready after a start-URL navigation.
	EmbeddedFrameTimeout time.Duration
	// DefaultSearchURL is where the "search" action navigates.
	DefaultSearchURL string

	// TeachFrameInterval is the minimum spacing between stored teach frames.
	TeachFrameInterval time.Duration
	// TeachMaxFrames bounds the teach session's frame FIFO.
	TeachMaxFrames int

	// ComputerUseEnabled gates whether the action agent client is allowed to
	// make live model calls at all (disabled in tests/offline mode).
	ComputerUseEnabled bool
	// GeminiAPIKey authenticates the action agent's genai client.
	GeminiAPIKey string
	// ComputerUseDebug turns on verbose prompt/response logging.
	ComputerUseDebug bool

	// CompletedRunTTL is how long a terminal run stays in the registry
	// before the sweeper removes it.
	CompletedRunTTL time.Duration
	// SweepInterval is how often the registry sweeper runs.
	SweepInterval time.Duration
}

// Load reads a Runner config from the environment, having first attempted a
// best-effort .env load (ignored if the file doesn't exist, matching
// godotenv.Load()'s use in the corpus's other CLI entry points).
func Load() Runner {
	_ = godotenv.Load()

	return Runner{
		MaxTurnsPerStep:      envInt("RUNNER_MAX_TURNS", 4),
		CheckpointThreshold:  envFloat("RUNNER_CHECKPOINT_THRESHOLD", 0.88),
		EmbeddedFrameTimeout: envSeconds("RUNNER_EMBEDDED_FRAME_TIMEOUT", 20),
		DefaultSearchURL:     envString("RUNNER_DEFAULT_SEARCH_URL", "https://www.google.com/"),

		TeachFrameInterval: envSecondsFloat("TEACH_FRAME_INTERVAL_SECONDS", 1.0),
		TeachMaxFrames:     envInt("TEACH_MAX_FRAMES", 360),

		ComputerUseEnabled: envBool("COMPUTER_USE_ENABLED", true),
		GeminiAPIKey:       envString("GEMINI_API_KEY", ""),
		ComputerUseDebug:   envBool("COMPUTER_USE_DEBUG", false),

		CompletedRunTTL: envSeconds("RUN_COMPLETED_TTL_SECONDS", 300),
		SweepInterval:   envSeconds("RUN_SWEEP_INTERVAL_SECONDS", 60),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envSeconds(key string, defSeconds int) time.Duration {
	return time.Duration(envInt(key, defSeconds)) * time.Second
}

func envSecondsFloat(key string, defSeconds float64) time.Duration {
	return time.Duration(envFloat(key, defSeconds) * float64(time.Second))
}
