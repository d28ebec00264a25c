package runnererr

import "testing"

func TestAbortRequested(t *testing.T) {
	var err error = AbortRequested{}
	if err.Error() != "run aborted by operator" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !IsAbortRequested(err) {
		t.Error("IsAbortRequested(AbortRequested{}) = false, want true")
	}
	if IsAbortRequested(RunnerError{Message: "boom"}) {
		t.Error("IsAbortRequested(RunnerError) = true, want false")
	}
	if IsAbortRequested(nil) {
		t.Error("IsAbortRequested(nil) = true, want false")
	}
}

func TestActionErrorMessage(t *testing.T) {
	cases := []struct {
		name string
		err  ActionError
		want string
	}{
		{"with action", ActionError{Action: "click_at", Message: "element not found"}, "click_at: element not found"},
		{"no action", ActionError{Message: "element not found"}, "element not found"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.err.Error(); got != c.want {
				t.Errorf("Error() = %q, want %q", got, c.want)
			}
		})
	}
}

func TestVariableHandshakeErrorMessage(t *testing.T) {
	err := VariableHandshakeError{Missing: []string{"username", "password"}}
	want := "missing values for variables: username, password"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	empty := VariableHandshakeError{}
	if got := empty.Error(); got != "missing values for variables: " {
		t.Errorf("Error() = %q", got)
	}
}

func TestEmbeddedFrameTimeoutMessage(t *testing.T) {
	withHost := EmbeddedFrameTimeout{ExpectedHost: "example.com"}
	if got := withHost.Error(); got != "embedded iframe did not finish loading before timeout (expected host: example.com)" {
		t.Errorf("Error() = %q", got)
	}

	noHost := EmbeddedFrameTimeout{}
	if got := noHost.Error(); got != "embedded iframe did not finish loading before timeout" {
		t.Errorf("Error() = %q", got)
	}
}

func TestUnsupportedActionMessage(t *testing.T) {
	err := UnsupportedAction{Name: "launch_nukes"}
	want := `unsupported action "launch_nukes"`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewRunnerError(t *testing.T) {
	err := New("failed to launch browser: %v", "connection refused")
	want := "failed to launch browser: connection refused"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestAgentDecisionErrorMessage(t *testing.T) {
	err := AgentDecisionError{Prompt: "p", ResponseSummary: "r"}
	if err.Error() != "action agent returned no usable action" {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Prompt != "p" || err.ResponseSummary != "r" {
		t.Error("fields not preserved")
	}
}
