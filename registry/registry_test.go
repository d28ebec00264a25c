package registry

import (
	"testing"
	"time"

	"github.com/jianyangg/show-and-tell/runstate"
)

func TestCreateRejectsEmptyPlanName(t *testing.T) {
	r := New(0, 0)
	defer r.Close()

	if _, err := r.Create(Plan{}, ""); err == nil {
		t.Error("Create with empty plan name should fail")
	}
}

func TestCreateAndGet(t *testing.T) {
	r := New(0, 0)
	defer r.Close()

	rs, err := r.Create(Plan{Name: "demo"}, "https://example.com")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if rs.PlanName != "demo" {
		t.Errorf("PlanName = %q, want demo", rs.PlanName)
	}

	got, ok := r.Get(rs.RunID)
	if !ok || got != rs {
		t.Error("Get did not return the created run")
	}
}

func TestGetUnknownRun(t *testing.T) {
	r := New(0, 0)
	defer r.Close()

	if _, ok := r.Get("nonexistent"); ok {
		t.Error("Get on unknown id should return false")
	}
}

func TestRemove(t *testing.T) {
	r := New(0, 0)
	defer r.Close()

	rs, _ := r.Create(Plan{Name: "demo"}, "")
	r.Remove(rs.RunID)

	if _, ok := r.Get(rs.RunID); ok {
		t.Error("Get should fail after Remove")
	}
}

func TestSweeperEvictsExpiredTerminalRuns(t *testing.T) {
	r := New(10*time.Millisecond, 5*time.Millisecond)
	defer r.Close()

	rs, _ := r.Create(Plan{Name: "demo"}, "")
	rs.Finish(runstate.StatusCompleted)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, ok := r.Get(rs.RunID); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("sweeper did not evict a terminal run past its TTL")
}

func TestSweeperKeepsNonTerminalRuns(t *testing.T) {
	r := New(5*time.Millisecond, 5*time.Millisecond)
	defer r.Close()

	rs, _ := r.Create(Plan{Name: "demo"}, "")

	time.Sleep(50 * time.Millisecond)

	if _, ok := r.Get(rs.RunID); !ok {
		t.Error("sweeper evicted a non-terminal run")
	}
}

func TestCloseStopsSweeperSafely(t *testing.T) {
	r := New(0, time.Millisecond)
	r.Create(Plan{Name: "demo"}, "")
	r.Close()
	r.Close() // must not panic on double close
}
