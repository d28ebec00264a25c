// Package runstate implements the per-run pub/sub and operator handshakes
// described by the run orchestrator's Run State component: a bounded set of
// subscriber queues fed in strict publish order, a "latest status" and
// "latest frame" snapshot pair so late joiners bootstrap without replaying
// history, and two single-slot rendezvous channels (confirmation, variable
// request) that the plan runner suspends on while an operator replies.
package runstate

import (
	"sync"
	"time"

	"github.com/jianyangg/show-and-tell/runnererr"
)

// Status is a run's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusFailed    Status = "failed"
)

// Message is one event published to subscribers. Type mirrors the run
// WebSocket's wire vocabulary (runner_frame, runner_status, step_started,
// action_executed, console, safety_prompt, variable_prompt,
// checkpoint_evaluated, checkpoint_matched, variables_applied, navigate).
type Message struct {
	Type string
	Data map[string]any
}

// subscriberQueueSize bounds how many buffered messages a subscriber queue
// holds before Publish starts dropping its oldest entry. A slow subscriber
// never blocks the publisher past this bound.
const subscriberQueueSize = 256

// Subscriber is the channel a transport-layer WebSocket handler drains.
type Subscriber chan Message

// ConfirmationRequest is the payload of a pending request_confirmation call.
type ConfirmationRequest struct {
	StepID string
	Action string
	Args   map[string]any
}

// VariableRequest is the payload of a pending request_variables call.
type VariableRequest struct {
	Vars []VariableAsk
}

// VariableAsk names one variable the operator is being asked to supply.
type VariableAsk struct {
	Name  string
	Value string
}

type confirmationSlot struct {
	payload ConfirmationRequest
	reply   chan bool
}

type variableSlot struct {
	payload VariableRequest
	reply   chan variableReply
}

type variableReply struct {
	values map[string]any
	err    error
}

// RunState is the lifecycle and event hub for a single run.
type RunState struct {
	RunID     string
	PlanName  string
	StartURL  string
	CreatedAt time.Time

	mu            sync.Mutex
	status        Status
	completedAt   *time.Time
	latestStatus  *Message
	latestFrame   *Message
	subscribers   map[Subscriber]struct{}
	aborted       bool
	confirmation  *confirmationSlot
	variableSlot  *variableSlot
}

// New returns a pending RunState for runID/plan, ready for Publish and
// Subscribe calls.
func New(runID, planName, startURL string) *RunState {
	return &RunState{
		RunID:       runID,
		PlanName:    planName,
		StartURL:    startURL,
		CreatedAt:   time.Now(),
		status:      StatusPending,
		subscribers: make(map[Subscriber]struct{}),
	}
}

// Status returns the run's current lifecycle status.
func (r *RunState) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// CompletedAt returns the terminal timestamp, or nil if the run is not yet
// terminal.
func (r *RunState) CompletedAt() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completedAt
}

// SetRunning transitions a pending run to running. It is not itself a
// terminal transition and is not published as a Message by this package;
// callers publish their own runner_status alongside it.
func (r *RunState) SetRunning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusPending {
		r.status = StatusRunning
	}
}

// Finish transitions the run to a terminal status exactly once. Subsequent
// calls are no-ops, so a run never reports more than one terminal status
// even if a caller races two failure paths.
func (r *RunState) Finish(status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completedAt != nil {
		return
	}
	r.status = status
	now := time.Now()
	r.completedAt = &now
}

// Publish enqueues msg to every current subscriber, in the order Publish
// was called. It updates the latest-frame or latest-status snapshot
// under the same lock used to take a subscription snapshot, so a new
// subscriber never observes stale or duplicated state.
func (r *RunState) Publish(msg Message) {
	r.mu.Lock()
	if msg.Type == "runner_frame" {
		m := msg
		r.latestFrame = &m
	} else {
		m := msg
		r.latestStatus = &m
	}
	queues := make([]Subscriber, 0, len(r.subscribers))
	for q := range r.subscribers {
		queues = append(queues, q)
	}
	r.mu.Unlock()

	for _, q := range queues {
		enqueue(q, msg)
	}
}

// enqueue pushes msg onto q without blocking: if the queue is full, its
// oldest entry is dropped to make room. This keeps Publish wait-free with
// respect to a slow subscriber's consumption rate.
func enqueue(q Subscriber, msg Message) {
	for {
		select {
		case q <- msg:
			return
		default:
		}
		select {
		case <-q:
		default:
		}
	}
}

// Subscribe registers a new subscriber queue and bootstraps it with the
// current latest-status then latest-frame snapshot (in that order), so a
// late joiner receives a runner_frame before its next status-only message
// whenever a frame has already been published.
func (r *RunState) Subscribe() Subscriber {
	q := make(Subscriber, subscriberQueueSize)

	r.mu.Lock()
	r.subscribers[q] = struct{}{}
	status := r.latestStatus
	frame := r.latestFrame
	r.mu.Unlock()

	if status != nil {
		enqueue(q, *status)
	}
	if frame != nil {
		enqueue(q, *frame)
	}
	return q
}

// Unsubscribe removes q from the subscriber set. The run is unaffected; a
// dropped subscriber simply stops receiving future Publish calls.
func (r *RunState) Unsubscribe(q Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscribers, q)
}

// RequestConfirmation publishes a safety_prompt and suspends until the
// operator replies via ResolveConfirmation; RequestAbort does not wake it.
// It fails fast if a confirmation is already outstanding.
func (r *RunState) RequestConfirmation(payload ConfirmationRequest) (bool, error) {
	r.mu.Lock()
	if r.confirmation != nil {
		r.mu.Unlock()
		return false, runnererr.New("a confirmation is already pending for run %s", r.RunID)
	}
	slot := &confirmationSlot{payload: payload, reply: make(chan bool, 1)}
	r.confirmation = slot
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if r.confirmation == slot {
			r.confirmation = nil
		}
		r.mu.Unlock()
	}()

	r.Publish(Message{Type: "safety_prompt", Data: map[string]any{
		"payload": map[string]any{
			"stepId": payload.StepID,
			"action": payload.Action,
			"args":   payload.Args,
		},
	}})

	allowed := <-slot.reply
	return allowed, nil
}

// ResolveConfirmation answers the single outstanding confirmation request,
// if any. Calling it with none pending is a no-op: the reply is simply
// dropped, since an operator may still reply even after the run has moved
// on.
func (r *RunState) ResolveConfirmation(allowed bool) {
	r.mu.Lock()
	slot := r.confirmation
	r.mu.Unlock()
	if slot == nil {
		return
	}
	select {
	case slot.reply <- allowed:
	default:
	}
}

// RequestVariables publishes a variable_prompt and suspends until the
// operator replies via ResolveVariables, or RequestAbort auto-fails the
// pending request with AbortRequested.
func (r *RunState) RequestVariables(payload VariableRequest) (map[string]any, error) {
	r.mu.Lock()
	if r.variableSlot != nil {
		r.mu.Unlock()
		return nil, runnererr.New("a variable request is already pending for run %s", r.RunID)
	}
	slot := &variableSlot{payload: payload, reply: make(chan variableReply, 1)}
	r.variableSlot = slot
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if r.variableSlot == slot {
			r.variableSlot = nil
		}
		r.mu.Unlock()
	}()

	asks := make([]map[string]any, 0, len(payload.Vars))
	for _, v := range payload.Vars {
		asks = append(asks, map[string]any{"name": v.Name, "value": v.Value})
	}
	r.Publish(Message{Type: "variable_prompt", Data: map[string]any{
		"payload": map[string]any{"vars": asks},
	}})

	result := <-slot.reply
	return result.values, result.err
}

// ResolveVariables answers the single outstanding variable request, if any.
func (r *RunState) ResolveVariables(values map[string]any) {
	r.mu.Lock()
	slot := r.variableSlot
	r.mu.Unlock()
	if slot == nil {
		return
	}
	select {
	case slot.reply <- variableReply{values: values}:
	default:
	}
}

// RequestAbort is idempotent: it sets the abort signal, auto-fails any
// pending variable request with AbortRequested (a pending confirmation is
// left alone; the next abort check terminates the run instead), and
// publishes runner_status{abort_requested}.
func (r *RunState) RequestAbort() {
	r.mu.Lock()
	alreadyAborted := r.aborted
	r.aborted = true
	slot := r.variableSlot
	r.mu.Unlock()

	if slot != nil {
		select {
		case slot.reply <- variableReply{err: runnererr.AbortRequested{}}:
		default:
		}
	}

	if !alreadyAborted {
		r.Publish(Message{Type: "runner_status", Data: map[string]any{"message": "abort_requested"}})
	}
}

// Aborted reports whether RequestAbort has been called for this run.
func (r *RunState) Aborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted
}
