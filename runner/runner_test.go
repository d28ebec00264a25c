package runner

import (
	"context"
	"testing"

	"github.com/jianyangg/show-and-tell/agent"
	"github.com/jianyangg/show-and-tell/memory"
	"github.com/jianyangg/show-and-tell/planvars"
	"github.com/jianyangg/show-and-tell/runnererr"
	"github.com/jianyangg/show-and-tell/runstate"
)

func newTestRunner() *Runner {
	rs := runstate.New("run-1", "demo", "")
	return &Runner{
		Config:      DefaultConfig(),
		RunState:    rs,
		Checkpoints: NoCallbacks{},
		Logger:      agent.NewLogger(false),
		memory:      memory.NewManager(&memory.Config{ShortTermLimit: 20}),
	}
}

func TestHostOf(t *testing.T) {
	cases := map[string]string{
		"https://example.com/path?q=1": "example.com",
		"http://sub.example.com":       "sub.example.com",
		"example.com/page":             "example.com",
		"https://example.com":          "example.com",
	}
	for in, want := range cases {
		if got := hostOf(in); got != want {
			t.Errorf("hostOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHandshakeVariablesNoPlaceholders(t *testing.T) {
	r := newTestRunner()
	plan := planvars.Plan{Name: "no placeholders here", Vars: map[string]planvars.Value{}}

	sub := r.RunState.Subscribe()
	defer r.RunState.Unsubscribe(sub)

	vars, err := r.handshakeVariables(context.Background(), plan)
	if err != nil {
		t.Fatalf("handshakeVariables returned error: %v", err)
	}
	if len(vars) != 0 {
		t.Errorf("vars = %v, want empty", vars)
	}

	msg := <-sub
	if msg.Type != "variables_applied" {
		t.Errorf("message type = %q, want variables_applied", msg.Type)
	}
}

func TestHandshakeVariablesPromptsAndMerges(t *testing.T) {
	r := newTestRunner()
	plan := planvars.Plan{
		Name: "Say hi to {person}",
		Vars: map[string]planvars.Value{},
		Steps: []planvars.Step{
			{ID: "s1", Title: "Greet", Instructions: "Type hello {person}"},
		},
	}

	sub := r.RunState.Subscribe()
	defer r.RunState.Unsubscribe(sub)

	resultCh := make(chan map[string]planvars.Value, 1)
	errCh := make(chan error, 1)
	go func() {
		vars, err := r.handshakeVariables(context.Background(), plan)
		resultCh <- vars
		errCh <- err
	}()

	// Drain until the variable_prompt appears (a console advisory precedes it).
	var promptMsg runstate.Message
	for i := 0; i < 5; i++ {
		promptMsg = <-sub
		if promptMsg.Type == "variable_prompt" {
			break
		}
	}
	if promptMsg.Type != "variable_prompt" {
		t.Fatalf("did not observe variable_prompt, last message = %+v", promptMsg)
	}

	r.RunState.ResolveVariables(map[string]any{"person": "Ada"})

	vars := <-resultCh
	if err := <-errCh; err != nil {
		t.Fatalf("handshakeVariables returned error: %v", err)
	}
	if vars["person"] != "Ada" {
		t.Errorf("vars[person] = %v, want Ada", vars["person"])
	}
}

func TestHandshakeVariablesFailsWhenStillMissing(t *testing.T) {
	r := newTestRunner()
	plan := planvars.Plan{
		Name:  "Say hi to {person}",
		Vars:  map[string]planvars.Value{},
		Steps: []planvars.Step{{ID: "s1", Title: "Greet"}},
	}

	sub := r.RunState.Subscribe()
	defer r.RunState.Unsubscribe(sub)

	errCh := make(chan error, 1)
	go func() {
		_, err := r.handshakeVariables(context.Background(), plan)
		errCh <- err
	}()

	for i := 0; i < 5; i++ {
		msg := <-sub
		if msg.Type == "variable_prompt" {
			break
		}
	}

	r.RunState.ResolveVariables(map[string]any{"person": ""})

	err := <-errCh
	if _, ok := err.(runnererr.VariableHandshakeError); !ok {
		t.Fatalf("err type = %T, want VariableHandshakeError", err)
	}
}

func TestHandshakeVariablesAbortedDuringWait(t *testing.T) {
	r := newTestRunner()
	plan := planvars.Plan{
		Name:  "Say hi to {person}",
		Vars:  map[string]planvars.Value{},
		Steps: []planvars.Step{{ID: "s1", Title: "Greet"}},
	}

	sub := r.RunState.Subscribe()
	defer r.RunState.Unsubscribe(sub)

	errCh := make(chan error, 1)
	go func() {
		_, err := r.handshakeVariables(context.Background(), plan)
		errCh <- err
	}()

	for i := 0; i < 5; i++ {
		msg := <-sub
		if msg.Type == "variable_prompt" {
			break
		}
	}

	r.RunState.RequestAbort()

	err := <-errCh
	if !runnererr.IsAbortRequested(err) {
		t.Errorf("err = %v, want AbortRequested", err)
	}
}

func TestFailPublishesFailedStatusAndFinishesRun(t *testing.T) {
	r := newTestRunner()
	sub := r.RunState.Subscribe()
	defer r.RunState.Unsubscribe(sub)

	r.fail(runnererr.New("boom"))

	msg := <-sub
	if msg.Type != "runner_status" || msg.Data["message"] != "failed" {
		t.Errorf("message = %+v, want runner_status{failed}", msg)
	}
	if r.RunState.Status() != runstate.StatusFailed {
		t.Errorf("Status() = %q, want failed", r.RunState.Status())
	}
}

func TestFinishAbortPublishesAbortedStatus(t *testing.T) {
	r := newTestRunner()
	sub := r.RunState.Subscribe()
	defer r.RunState.Unsubscribe(sub)

	r.finishAbort()

	msg := <-sub
	if msg.Type != "runner_status" || msg.Data["message"] != "aborted" {
		t.Errorf("message = %+v, want runner_status{aborted}", msg)
	}
	if r.RunState.Status() != runstate.StatusAborted {
		t.Errorf("Status() = %q, want aborted", r.RunState.Status())
	}
}
