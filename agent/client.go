// Package agent implements the Action Agent Client: it asks an external
// multimodal model for the next UI action(s) given a goal, a screenshot and
// recent history, then validates and normalizes whatever the model
// returned into the plan runner's fixed action vocabulary.
//
// It calls genai's own Models.GenerateContent entry point directly -- on the
// same Models service agent/tokenizer.go calls for CountTokens -- rather than
// going through a generic per-call tool-dispatch abstraction, because the
// action vocabulary here is fixed and enumerable up front.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"google.golang.org/genai"

	"github.com/jianyangg/show-and-tell/runnererr"
)

// RecognizedActions is the fixed action vocabulary the interpreter accepts.
var RecognizedActions = map[string]bool{
	"navigate":        true,
	"click_at":        true,
	"type_text_at":    true,
	"hover_at":        true,
	"wait_5_seconds":  true,
	"go_back":         true,
	"go_forward":      true,
	"search":          true,
	"scroll_document": true,
	"scroll_at":       true,
	"drag_and_drop":   true,
	"key_combination": true,
}

// actionAliases maps a model's alternate function-call names onto the
// recognized vocabulary above.
var actionAliases = map[string]string{
	"open_web_browser": "navigate",
	"open_url":         "navigate",
}

// Action is one validated, normalized action proposed by the agent.
type Action struct {
	Name           string
	Args           map[string]any
	SafetyDecision string
}

// Decision is the full result of one agent turn: the exact prompt sent, a
// summary of the raw response, and the actions that survived validation.
type Decision struct {
	Prompt          string
	ResponseSummary string
	Actions         []Action
}

// StepView is the minimal step context included in a prompt.
type StepView struct {
	ID           string
	Title        string
	Instructions string
}

// Observation is everything the client needs to build one turn's prompt.
type Observation struct {
	Goal       string
	Screenshot []byte
	URL        string
	Turn       int
	History    []string
	Vars       map[string]any
	Step       StepView
}

// Config configures a Client.
type Config struct {
	// APIKey is the Gemini API key (GEMINI_API_KEY).
	APIKey string
	// Model is the model id to call. Defaults to "gemini-3-flash-preview".
	Model string
	// Debug enables verbose prompt/response logging via the agent Logger.
	Debug bool
}

// Client is the Action Agent Client.
type Client struct {
	genai     *genai.Client
	model     string
	debug     bool
	logger    *Logger
	tokenizer *Tokenizer
}

// NewClient constructs a Client backed by a genai.Client against the Gemini
// API backend.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	model := cfg.Model
	if model == "" {
		model = "gemini-3-flash-preview"
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	tokenizer, err := NewTokenizer(ctx, TokenizerConfig{APIKey: cfg.APIKey, Model: model})
	if err != nil {
		return nil, fmt.Errorf("creating tokenizer: %w", err)
	}

	return &Client{
		genai:     gc,
		model:     model,
		debug:     cfg.Debug,
		logger:    NewLogger(cfg.Debug),
		tokenizer: tokenizer,
	}, nil
}

// BuildPrompt assembles the deterministic, reproducible prompt text for one
// turn, per the order: goal, url+turn, variables, current step, step
// instructions, then up to the last 5 history lines.
func BuildPrompt(obs Observation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", obs.Goal)
	fmt.Fprintf(&b, "URL: %s\n", obs.URL)
	fmt.Fprintf(&b, "Turn: %d\n", obs.Turn)
	fmt.Fprintf(&b, "Variables: %s\n", serializeVars(obs.Vars))
	fmt.Fprintf(&b, "Step: %s (%s)\n", obs.Step.Title, obs.Step.ID)
	if strings.TrimSpace(obs.Step.Instructions) != "" {
		fmt.Fprintf(&b, "Instructions: %s\n", obs.Step.Instructions)
	}
	if len(obs.History) > 0 {
		b.WriteString("History:\n")
		start := 0
		if len(obs.History) > 5 {
			start = len(obs.History) - 5
		}
		for _, h := range obs.History[start:] {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	return b.String()
}

func serializeVars(vars map[string]any) string {
	if len(vars) == 0 {
		return "{}"
	}
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)
	ordered := make(map[string]any, len(vars))
	for _, n := range names {
		ordered[n] = vars[n]
	}
	data, err := json.Marshal(ordered)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Close releases the Client's tokenizer resources.
func (c *Client) Close() {
	c.tokenizer.Close()
}

// Decide asks the model for the next action(s) given obs, attaching the
// screenshot as an inline image part, then parses the response into a
// validated Decision. Returns runnererr.AgentDecisionError if nothing
// recognizable survives parsing.
func (c *Client) Decide(ctx context.Context, obs Observation) (*Decision, error) {
	prompt := BuildPrompt(obs)

	textTokens, err := c.tokenizer.CountTextTokens(ctx, prompt)
	if err != nil {
		textTokens = c.tokenizer.EstimateTextTokens(prompt)
	}
	imageTokens := 0
	if len(obs.Screenshot) > 0 {
		imageTokens, err = c.tokenizer.CountImageTokens(ctx, obs.Screenshot, "image/jpeg")
		if err != nil {
			imageTokens = c.tokenizer.EstimateImageTokens(1024, 768)
		}
	}
	c.logger.PromptTokens(obs.Step.ID, textTokens, imageTokens)

	parts := []*genai.Part{{Text: prompt}}
	if len(obs.Screenshot) > 0 {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{Data: obs.Screenshot, MIMEType: "image/jpeg"},
		})
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: SystemInstruction()}}},
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, runnererr.AgentDecisionError{Prompt: prompt, ResponseSummary: fmt.Sprintf("model call failed: %v", err)}
	}

	return parseDecision(prompt, resp, obs)
}

// parseDecision filters a genai response down to recognized actions,
// applying alias mapping and the navigate URL-salvage fallback.
func parseDecision(prompt string, resp *genai.GenerateContentResponse, obs Observation) (*Decision, error) {
	var candidates []map[string]any
	var actions []Action

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.FunctionCall == nil {
				continue
			}
			fc := part.FunctionCall
			candidates = append(candidates, map[string]any{"name": fc.Name, "args": fc.Args})

			name := fc.Name
			aliased := false
			if alias, ok := actionAliases[name]; ok {
				name = alias
				aliased = true
			}
			if !RecognizedActions[name] {
				continue
			}

			args := make(map[string]any, len(fc.Args))
			for k, v := range fc.Args {
				args[k] = v
			}

			var safety string
			if sd, ok := args["safety_decision"]; ok {
				if s, ok := sd.(string); ok {
					safety = s
				}
				delete(args, "safety_decision")
			}

			if name == "navigate" && aliased {
				if _, ok := args["url"]; !ok || args["url"] == "" {
					if url, ok := salvageURL(obs.Step.Instructions, obs.Vars); ok {
						args["url"] = url
					}
				}
			}

			actions = append(actions, Action{Name: name, Args: args, SafetyDecision: safety})
		}
	}

	if len(actions) == 0 {
		summary, _ := json.Marshal(candidates)
		return nil, runnererr.AgentDecisionError{Prompt: prompt, ResponseSummary: string(summary)}
	}

	summary, _ := json.Marshal(candidates)
	return &Decision{Prompt: prompt, ResponseSummary: string(summary), Actions: actions}, nil
}

var (
	urlPattern      = regexp.MustCompile(`https?://[^\s)]+`)
	bareHostPattern = regexp.MustCompile(`\b(?:www\.)?[A-Za-z0-9.-]+\.[A-Za-z]{2,}(?:/[^\s)]*)?`)
	trailingPunct   = regexp.MustCompile(`[.,)]+$`)
)

// salvageURL attempts to recover a URL for an aliased navigate action
// missing its url argument: first a full http(s) URL inside instructions,
// then a bare host prefixed with http://, then vars["url"] if it's a
// string.
func salvageURL(instructions string, vars map[string]any) (string, bool) {
	if m := urlPattern.FindString(instructions); m != "" {
		return trailingPunct.ReplaceAllString(m, ""), true
	}
	if m := bareHostPattern.FindString(instructions); m != "" {
		return "http://" + trailingPunct.ReplaceAllString(m, ""), true
	}
	if v, ok := vars["url"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}
