package runstate

import (
	"testing"
	"time"

	"github.com/jianyangg/show-and-tell/runnererr"
)

func TestNewIsPending(t *testing.T) {
	rs := New("run-1", "demo plan", "https://example.com")
	if rs.Status() != StatusPending {
		t.Errorf("Status() = %q, want pending", rs.Status())
	}
	if rs.CompletedAt() != nil {
		t.Error("CompletedAt() should be nil before Finish")
	}
}

func TestSetRunningOnlyFromPending(t *testing.T) {
	rs := New("run-1", "p", "")
	rs.SetRunning()
	if rs.Status() != StatusRunning {
		t.Fatalf("Status() = %q, want running", rs.Status())
	}
	rs.Finish(StatusFailed)
	rs.SetRunning()
	if rs.Status() != StatusFailed {
		t.Errorf("SetRunning() after Finish changed status to %q", rs.Status())
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	rs := New("run-1", "p", "")
	rs.Finish(StatusCompleted)
	first := rs.CompletedAt()
	if rs.Status() != StatusCompleted {
		t.Fatalf("Status() = %q, want completed", rs.Status())
	}
	time.Sleep(time.Millisecond)
	rs.Finish(StatusFailed)
	if rs.Status() != StatusCompleted {
		t.Errorf("second Finish changed status to %q", rs.Status())
	}
	if rs.CompletedAt() != first {
		t.Error("second Finish changed the completedAt pointer")
	}
}

func TestSubscribeBootstrapsLatestSnapshot(t *testing.T) {
	rs := New("run-1", "p", "")

	rs.Publish(Message{Type: "runner_status", Data: map[string]any{"message": "browser_ready"}})
	rs.Publish(Message{Type: "runner_frame", Data: map[string]any{"png": "abc"}})

	sub := rs.Subscribe()
	defer rs.Unsubscribe(sub)

	first := <-sub
	if first.Type != "runner_status" {
		t.Fatalf("first bootstrapped message = %q, want runner_status", first.Type)
	}
	second := <-sub
	if second.Type != "runner_frame" {
		t.Fatalf("second bootstrapped message = %q, want runner_frame", second.Type)
	}
}

func TestSubscribeWithNoHistoryGetsNothing(t *testing.T) {
	rs := New("run-1", "p", "")
	sub := rs.Subscribe()
	defer rs.Unsubscribe(sub)

	select {
	case msg := <-sub:
		t.Fatalf("expected no bootstrap message, got %v", msg)
	default:
	}
}

func TestPublishOrderingToSubscriber(t *testing.T) {
	rs := New("run-1", "p", "")
	sub := rs.Subscribe()
	defer rs.Unsubscribe(sub)

	rs.Publish(Message{Type: "step_started", Data: map[string]any{"stepId": "1"}})
	rs.Publish(Message{Type: "step_started", Data: map[string]any{"stepId": "2"}})
	rs.Publish(Message{Type: "step_started", Data: map[string]any{"stepId": "3"}})

	for _, want := range []string{"1", "2", "3"} {
		msg := <-sub
		if msg.Data["stepId"] != want {
			t.Errorf("stepId = %v, want %v", msg.Data["stepId"], want)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	rs := New("run-1", "p", "")
	sub := rs.Subscribe()
	rs.Unsubscribe(sub)

	rs.Publish(Message{Type: "console", Data: map[string]any{"message": "hello"}})

	select {
	case msg := <-sub:
		t.Fatalf("unsubscribed queue received %v", msg)
	default:
	}
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	q := make(Subscriber, 2)
	enqueue(q, Message{Type: "a"})
	enqueue(q, Message{Type: "b"})
	enqueue(q, Message{Type: "c"})

	first := <-q
	second := <-q
	if first.Type != "b" || second.Type != "c" {
		t.Errorf("got %q, %q; want b, c (oldest dropped)", first.Type, second.Type)
	}
}

func TestRequestConfirmationRoundTrip(t *testing.T) {
	rs := New("run-1", "p", "")
	sub := rs.Subscribe()
	defer rs.Unsubscribe(sub)

	done := make(chan bool, 1)
	errCh := make(chan error, 1)
	go func() {
		allowed, err := rs.RequestConfirmation(ConfirmationRequest{StepID: "s1", Action: "navigate"})
		done <- allowed
		errCh <- err
	}()

	msg := <-sub
	if msg.Type != "safety_prompt" {
		t.Fatalf("published message type = %q, want safety_prompt", msg.Type)
	}

	rs.ResolveConfirmation(true)

	if allowed := <-done; !allowed {
		t.Error("RequestConfirmation returned allowed=false, want true")
	}
	if err := <-errCh; err != nil {
		t.Errorf("RequestConfirmation returned error: %v", err)
	}
}

func TestRequestConfirmationRejectsConcurrentRequest(t *testing.T) {
	rs := New("run-1", "p", "")
	sub := rs.Subscribe()
	defer rs.Unsubscribe(sub)

	resultCh := make(chan error, 1)
	go func() {
		_, err := rs.RequestConfirmation(ConfirmationRequest{StepID: "s1"})
		resultCh <- err
	}()
	<-sub // consume the safety_prompt to know the first request is outstanding

	_, err := rs.RequestConfirmation(ConfirmationRequest{StepID: "s2"})
	if err == nil {
		t.Error("second concurrent RequestConfirmation should have failed")
	}

	rs.ResolveConfirmation(false)
	<-resultCh
}

func TestResolveConfirmationWithNothingPendingIsNoop(t *testing.T) {
	rs := New("run-1", "p", "")
	rs.ResolveConfirmation(true) // must not panic or block
}

func TestRequestVariablesRoundTrip(t *testing.T) {
	rs := New("run-1", "p", "")
	sub := rs.Subscribe()
	defer rs.Unsubscribe(sub)

	resultCh := make(chan map[string]any, 1)
	errCh := make(chan error, 1)
	go func() {
		vars, err := rs.RequestVariables(VariableRequest{Vars: []VariableAsk{{Name: "username"}}})
		resultCh <- vars
		errCh <- err
	}()

	msg := <-sub
	if msg.Type != "variable_prompt" {
		t.Fatalf("published message type = %q, want variable_prompt", msg.Type)
	}

	rs.ResolveVariables(map[string]any{"username": "alice"})

	vars := <-resultCh
	if err := <-errCh; err != nil {
		t.Fatalf("RequestVariables returned error: %v", err)
	}
	if vars["username"] != "alice" {
		t.Errorf("vars[username] = %v, want alice", vars["username"])
	}
}

func TestRequestAbortFailsPendingVariableRequest(t *testing.T) {
	rs := New("run-1", "p", "")
	sub := rs.Subscribe()
	defer rs.Unsubscribe(sub)

	errCh := make(chan error, 1)
	go func() {
		_, err := rs.RequestVariables(VariableRequest{Vars: []VariableAsk{{Name: "username"}}})
		errCh <- err
	}()
	<-sub // variable_prompt

	rs.RequestAbort()

	err := <-errCh
	if !runnererr.IsAbortRequested(err) {
		t.Errorf("RequestVariables returned %v, want AbortRequested", err)
	}
	if !rs.Aborted() {
		t.Error("Aborted() = false after RequestAbort")
	}
}

func TestRequestAbortIsIdempotent(t *testing.T) {
	rs := New("run-1", "p", "")
	sub := rs.Subscribe()
	defer rs.Unsubscribe(sub)

	rs.RequestAbort()
	<-sub // abort_requested

	rs.RequestAbort()
	select {
	case msg := <-sub:
		t.Fatalf("second RequestAbort published again: %v", msg)
	default:
	}
}
