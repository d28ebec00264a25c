package runner

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/jianyangg/show-and-tell/agent"
	"github.com/jianyangg/show-and-tell/browser"
	"github.com/jianyangg/show-and-tell/memory"
	"github.com/jianyangg/show-and-tell/phash"
	"github.com/jianyangg/show-and-tell/planvars"
	"github.com/jianyangg/show-and-tell/runnererr"
	"github.com/jianyangg/show-and-tell/runstate"
)

// Checkpoint is a reference screenshot anchored to a step, used to gate
// step completion by perceptual similarity.
type Checkpoint struct {
	PNGBase64 string
	Label     string
}

// Callbacks fetches the checkpoints derived for a plan step. It is a
// best-effort external collaborator: synthesis (the side that derives
// checkpoints from recording markers) lives outside this module, so a
// missing implementation, or any error it returns, degrades to "no
// checkpoints for this step" rather than failing the run.
type Callbacks interface {
	GetCheckpoints(stepID string) ([]Checkpoint, error)
}

// NoCallbacks is the nil-safe default Callbacks: every step has no
// checkpoints, so steps complete after their first successful turn.
type NoCallbacks struct{}

// GetCheckpoints always returns an empty set.
func (NoCallbacks) GetCheckpoints(string) ([]Checkpoint, error) { return nil, nil }

// Config holds the plan runner's tunables, sourced from config.Runner.
type Config struct {
	MaxTurnsPerStep      int
	CheckpointThreshold  float64
	EmbeddedFrameTimeout time.Duration
	DefaultSearchURL     string
	Headless             bool
}

// DefaultConfig returns the documented default tunables.
func DefaultConfig() Config {
	return Config{
		MaxTurnsPerStep:      4,
		CheckpointThreshold:  0.88,
		EmbeddedFrameTimeout: 20 * time.Second,
		DefaultSearchURL:     "https://www.google.com/",
		Headless:             true,
	}
}

// Runner orchestrates one run: it owns a browser for the run's lifetime,
// drives the per-step decision loop, applies actions through an
// Interpreter, and publishes telemetry through a runstate.RunState.
type Runner struct {
	Config      Config
	Client      *agent.Client
	RunState    *runstate.RunState
	Checkpoints Callbacks
	Logger      *agent.Logger

	memory *memory.Manager

	browser *browser.Browser
	rodBr   *rod.Browser
}

// NewRunner constructs a Runner. checkpoints may be nil, in which case
// NoCallbacks is used.
func NewRunner(cfg Config, client *agent.Client, rs *runstate.RunState, checkpoints Callbacks, logger *agent.Logger) *Runner {
	if checkpoints == nil {
		checkpoints = NoCallbacks{}
	}
	if logger == nil {
		logger = agent.NewLogger(false)
	}
	return &Runner{
		Config: cfg, Client: client, RunState: rs, Checkpoints: checkpoints, Logger: logger,
		memory: memory.NewManager(&memory.Config{ShortTermLimit: 20}),
	}
}

// Run executes plan start to finish, publishing telemetry to r.RunState and
// returning the run's terminal error, if any (nil on success). The run's
// browser is always closed on return, regardless of outcome.
func (r *Runner) Run(ctx context.Context, plan planvars.Plan, startURL string) error {
	r.RunState.SetRunning()
	r.Logger.StartTask()
	r.memory.StartTask(plan.Name)

	rodBr, b, err := browser.Launch(r.Config.Headless, Viewport)
	if err != nil {
		r.fail(runnererr.New("failed to launch browser: %v", err))
		return err
	}
	r.rodBr, r.browser = rodBr, b
	defer func() {
		_ = b.Close()
	}()

	if _, err := b.NewTab(ctx, "about:blank"); err != nil {
		r.fail(runnererr.New("failed to open page: %v", err))
		return err
	}

	r.RunState.Publish(runstate.Message{Type: "runner_status", Data: map[string]any{
		"message": "browser_ready", "url": b.GetURL(),
	}})

	interp := NewInterpreter(b, r.Config.DefaultSearchURL)

	if startURL != "" {
		url := startURL
		if !strings.Contains(url, "://") {
			url = "https://" + url
		}
		if err := b.Navigate(ctx, url); err != nil {
			runErr := runnererr.New("Start url iframe not ready: %v", err)
			r.fail(runErr)
			return runErr
		}
		host := hostOf(url)
		if err := b.WaitForEmbeddedPage(ctx, host, r.Config.EmbeddedFrameTimeout); err != nil {
			runErr := runnererr.New("Start url iframe not ready: %v", err)
			r.fail(runErr)
			return runErr
		}
		r.RunState.Publish(runstate.Message{Type: "navigate", Data: map[string]any{
			"kind": "start_url", "url": url,
		}})
	}

	r.emitFrame(b, "")

	resolvedVars, err := r.handshakeVariables(ctx, plan)
	if err != nil {
		if runnererr.IsAbortRequested(err) {
			r.finishAbort()
			return err
		}
		r.fail(err)
		return err
	}

	for _, step := range plan.Steps {
		if r.RunState.Aborted() {
			r.finishAbort()
			return runnererr.AbortRequested{}
		}

		title := planvars.Apply(step.Title, resolvedVars)
		instructions := planvars.Apply(step.Instructions, resolvedVars)

		r.RunState.Publish(runstate.Message{Type: "step_started", Data: map[string]any{
			"stepId": step.ID, "title": title,
		}})
		if strings.TrimSpace(instructions) != "" {
			r.RunState.Publish(runstate.Message{Type: "console", Data: map[string]any{
				"role": "Plan instructions", "message": instructions,
			}})
		}

		resolvedStep := planvars.Step{ID: step.ID, Title: title, Instructions: instructions}
		if err := r.runStep(ctx, b, interp, plan.Name, resolvedStep, resolvedVars); err != nil {
			if runnererr.IsAbortRequested(err) {
				r.finishAbort()
				return err
			}
			r.fail(err)
			return err
		}

		r.RunState.Publish(runstate.Message{Type: "step_completed", Data: map[string]any{
			"stepId": step.ID,
		}})
	}

	r.RunState.Publish(runstate.Message{Type: "runner_status", Data: map[string]any{
		"message": "completed", "url": b.GetURL(),
	}})
	r.RunState.Publish(runstate.Message{Type: "run_completed", Data: map[string]any{
		"ok": true, "url": b.GetURL(),
	}})
	r.RunState.Finish(runstate.StatusCompleted)
	r.Logger.Done(true, "run completed")
	return nil
}

// historyLines renders the most recent recorded actions as the short
// per-turn history line list the agent prompt includes.
func (r *Runner) historyLines() []string {
	obs := r.memory.GetRecentObservations(5)
	lines := make([]string, 0, len(obs))
	for _, o := range obs {
		lines = append(lines, o.Result)
	}
	return lines
}

// recordAction appends one applied action to the run's short-term log and
// records its outcome (success or failure) against the current page's host
// in long-term memory so a later run's search can surface it.
func (r *Runner) recordAction(b *browser.Browser, step planvars.Step, action agent.Action, result string, success bool) {
	site := hostOf(b.GetURL())
	r.memory.AddObservation(&memory.Observation{
		URL:    b.GetURL(),
		Action: &memory.Action{Type: action.Name, Target: step.ID},
		Result: result,
	})
	if success {
		r.memory.RecordSuccess(site, action.Name, result)
	} else {
		r.memory.RecordFailure(site, action.Name, result)
	}
}

func hostOf(rawURL string) string {
	u := rawURL
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	}
	if i := strings.IndexAny(u, "/?#"); i >= 0 {
		u = u[:i]
	}
	return u
}

func (r *Runner) fail(err error) {
	r.RunState.Publish(runstate.Message{Type: "runner_status", Data: map[string]any{
		"message": "failed", "error": err.Error(),
	}})
	r.RunState.Finish(runstate.StatusFailed)
	r.Logger.Error("run", err)
}

func (r *Runner) finishAbort() {
	r.RunState.Publish(runstate.Message{Type: "runner_status", Data: map[string]any{
		"message": "aborted",
	}})
	r.RunState.Finish(runstate.StatusAborted)
}

// handshakeVariables computes the plan's placeholders, prompts the operator
// for any that are missing, merges the reply, and returns the fully
// resolved variable map (as planvars.Value, ready for planvars.Apply).
func (r *Runner) handshakeVariables(ctx context.Context, plan planvars.Plan) (map[string]planvars.Value, error) {
	normalized, placeholders, _ := planvars.Normalize(plan)
	missing := planvars.DiagnoseMissing(normalized.Vars, placeholders)

	if len(missing) > 0 {
		r.RunState.Publish(runstate.Message{Type: "console", Data: map[string]any{
			"role": "Runner", "message": fmt.Sprintf("Waiting on variables: %s", strings.Join(missing, ", ")),
		}})

		asks := make([]runstate.VariableAsk, 0, len(missing))
		for _, name := range missing {
			value := ""
			if v, ok := normalized.Vars[name]; ok {
				if s, ok := v.(string); ok {
					value = s
				}
			}
			asks = append(asks, runstate.VariableAsk{Name: name, Value: value})
		}

		reply, err := r.RunState.RequestVariables(runstate.VariableRequest{Vars: asks})
		if err != nil {
			return nil, err
		}

		for name, raw := range reply {
			normalized.Vars[name] = planvars.Coerce(raw)
		}

		stillMissing := planvars.DiagnoseMissing(normalized.Vars, placeholders)
		if len(stillMissing) > 0 {
			return nil, runnererr.VariableHandshakeError{Missing: stillMissing}
		}
	}

	r.RunState.Publish(runstate.Message{Type: "variables_applied", Data: map[string]any{
		"vars": normalized.Vars,
	}})

	return normalized.Vars, nil
}

// runStep drives the per-step turn loop: build an observation, request a
// decision, apply its actions, then gate completion on a checkpoint match
// if the step has any reference screenshots.
func (r *Runner) runStep(ctx context.Context, b *browser.Browser, interp *Interpreter, goal string, step planvars.Step, vars map[string]planvars.Value) error {
	checkpoints, _ := r.Checkpoints.GetCheckpoints(step.ID)
	hashes := make([]phash.Hash, 0, len(checkpoints))
	for _, cp := range checkpoints {
		img, err := phash.DecodeBase64PNG(cp.PNGBase64)
		if err != nil {
			continue
		}
		hashes = append(hashes, phash.AHash(img))
	}
	requireVisualMatch := len(hashes) > 0

	obsVars := make(map[string]any, len(vars))
	for k, v := range vars {
		obsVars[k] = v
	}

	for turn := 1; turn <= r.Config.MaxTurnsPerStep; turn++ {
		if r.RunState.Aborted() {
			return runnererr.AbortRequested{}
		}

		shot, err := b.ScreenshotForLLM(ctx, 1024, 80)
		if err != nil {
			return runnererr.New("failed to capture screenshot: %v", err)
		}

		obs := agent.Observation{
			Goal:       goal,
			Screenshot: shot,
			URL:        b.GetURL(),
			Turn:       turn,
			History:    r.historyLines(),
			Vars:       obsVars,
			Step:       agent.StepView{ID: step.ID, Title: step.Title, Instructions: step.Instructions},
		}

		decision, err := r.Client.Decide(ctx, obs)
		if err != nil {
			if de, ok := err.(runnererr.AgentDecisionError); ok {
				r.RunState.Publish(runstate.Message{Type: "console", Data: map[string]any{
					"role": "ComputerUse prompt", "message": de.Prompt,
				}})
				r.RunState.Publish(runstate.Message{Type: "console", Data: map[string]any{
					"role": "ComputerUse response", "message": de.ResponseSummary,
				}})
			}
			return err
		}

		r.RunState.Publish(runstate.Message{Type: "console", Data: map[string]any{
			"role": "ComputerUse prompt", "message": decision.Prompt,
		}})
		r.RunState.Publish(runstate.Message{Type: "console", Data: map[string]any{
			"role": "ComputerUse response", "message": decision.ResponseSummary,
		}})

		actionFailed := false
		var lastCursor *CursorHint

		for _, action := range decision.Actions {
			if action.SafetyDecision == "require_confirmation" {
				allowed, err := r.RunState.RequestConfirmation(runstate.ConfirmationRequest{
					StepID: step.ID, Action: action.Name, Args: action.Args,
				})
				if err != nil {
					return err
				}
				if !allowed {
					return runnererr.New("Action declined by operator")
				}
			}

			summary, cursor, err := interp.Apply(ctx, action)
			if err != nil {
				msg := err.Error()
				r.RunState.Publish(runstate.Message{Type: "console", Data: map[string]any{
					"role": "Runner", "message": fmt.Sprintf("Action failed: %s", msg),
				}})
				r.recordAction(b, step, action, fmt.Sprintf("error: %s", msg), false)
				actionFailed = true
				break
			}

			if cursor != nil {
				lastCursor = cursor
			}
			r.recordAction(b, step, action, summary, true)
			r.RunState.Publish(runstate.Message{Type: "action_executed", Data: map[string]any{
				"stepId": step.ID, "action": action.Name, "args": action.Args, "summary": summary,
			}})
			r.emitFrameWithCursor(b, step.ID, lastCursor)
		}

		r.emitFrameWithCursor(b, step.ID, lastCursor)

		if actionFailed {
			continue
		}

		if !requireVisualMatch {
			return nil
		}

		shot, err = b.Screenshot(ctx)
		if err != nil {
			return runnererr.New("failed to capture screenshot: %v", err)
		}
		img, err := phash.DecodeImage(shot)
		if err != nil {
			return runnererr.New("failed to decode screenshot: %v", err)
		}
		current := phash.AHash(img)

		best := 0.0
		var bestLabel string
		for i, h := range hashes {
			score := phash.Similarity(current, h)
			if score > best {
				best = score
				if i < len(checkpoints) {
					bestLabel = checkpoints[i].Label
				}
			}
		}

		data := map[string]any{"stepId": step.ID, "score": best, "threshold": r.Config.CheckpointThreshold}
		if bestLabel != "" {
			data["label"] = bestLabel
		}
		r.RunState.Publish(runstate.Message{Type: "checkpoint_evaluated", Data: data})
		r.Logger.Checkpoint(step.ID, best, r.Config.CheckpointThreshold, best >= r.Config.CheckpointThreshold)

		if best >= r.Config.CheckpointThreshold {
			r.RunState.Publish(runstate.Message{Type: "checkpoint_matched", Data: data})
			return nil
		}
	}

	return runnererr.New("Exceeded max turns for step %s", step.ID)
}

func (r *Runner) emitFrame(b *browser.Browser, stepID string) {
	r.emitFrameWithCursor(b, stepID, nil)
}

func (r *Runner) emitFrameWithCursor(b *browser.Browser, stepID string, cursor *CursorHint) {
	shot, err := b.Screenshot(context.Background())
	if err != nil {
		return
	}
	data := map[string]any{"frame": base64.StdEncoding.EncodeToString(shot)}
	if stepID != "" {
		data["stepId"] = stepID
	}
	if cursor != nil {
		data["cursor"] = map[string]any{"x": cursor.X, "y": cursor.Y}
	} else {
		data["cursor"] = nil
	}
	r.RunState.Publish(runstate.Message{Type: "runner_frame", Data: data})
}
