package pool

import (
	"context"
	"testing"
	"time"
)

func TestPool(t *testing.T) {
	p := New(2)

	// Tasks with deadlines in the past run right away; future deadlines wait.
	p.Add("a", func(context.Context) time.Time {
		return time.Now().Add(100 * time.Millisecond)
	})
	p.Add("b", func(context.Context) time.Time {
		return time.Now().Add(-100 * time.Millisecond)
	})
	p.Add("c", func(context.Context) time.Time {
		return time.Now().Add(200 * time.Millisecond)
	})

	// Wait for a short period to allow tasks to be processed.
	time.Sleep(300 * time.Millisecond)

	// The pool should have processed all tasks without deadlock. If it had
	// gotten stuck, we'd never reach this line.
	t.Log("All tasks processed successfully")
}

type run struct {
	left     int
	ran      int
	sleep    time.Duration
	deadline time.Duration
}

func (t *run) Execute(context.Context) time.Time {
	if t.left > 0 {
		time.Sleep(t.sleep)
		t.left--
		t.ran++
		return time.Now().Add(t.deadline)
	}

	var zero time.Time
	return zero // dequeue task
}

func TestTrigger(t *testing.T) {
	t.Run("trigger pulls queued task up front", func(t *testing.T) {
		p := New(2)

		rx := &run{left: 3, deadline: 200 * time.Millisecond}

		p.Add("t", rx.Execute) // will run once (run #1), and be queued for 200 ms

		_ = p.Trigger("t") // pulled in front, run #2
		time.Sleep(50 * time.Millisecond)
		_ = p.Trigger("t")                 // pulled in front, run #3
		time.Sleep(300 * time.Millisecond) // no other runs, third run dequeued

		if exp, act := 3, rx.ran; exp != act {
			t.Errorf("expected counter of %d, got %d", exp, act)
		}
	})

	t.Run("trigger reruns executing task right away", func(t *testing.T) {
		p := New(2)

		// if it wasn't triggered, we'd not see a second run: the next deadline is 1s
		rx := &run{left: 3, sleep: 100 * time.Millisecond, deadline: time.Second}

		p.Add("t", rx.Execute)
		time.Sleep(50 * time.Millisecond)
		_ = p.Trigger("t") // re-run after it's done, run #2

		time.Sleep(300 * time.Millisecond)

		if exp, act := 2, rx.ran; exp != act {
			t.Errorf("expected counter of %d, got %d", exp, act)
		}
	})

	t.Run("trigger of unknown task errors", func(t *testing.T) {
		p := New(1)
		if err := p.Trigger("nope"); err == nil {
			t.Error("expected error for unknown task")
		}
	})
}

func TestTriggerDuringExecution(t *testing.T) {
	p := New(1)

	runs := make(chan struct{}, 100)
	p.Add("t", func(context.Context) time.Time {
		runs <- struct{}{}
		time.Sleep(5 * time.Millisecond)
		return time.Now().Add(time.Hour)
	})

	<-runs // first run started

	// Trigger repeatedly while the task executes or waits out its hour-long
	// deadline: every further run must come from a trigger, and a trigger
	// racing the running task must not be lost.
	for range 5 {
		if err := p.Trigger("t"); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := len(runs); got < 3 {
		t.Errorf("expected triggered re-runs, got %d", got)
	}
}

func TestZeroDeadlineRemovesTask(t *testing.T) {
	p := New(1)

	rx := &run{left: 1, deadline: 10 * time.Millisecond}
	p.Add("t", rx.Execute)

	time.Sleep(100 * time.Millisecond)

	// First run consumed the counter, second run returned the zero deadline.
	if err := p.Trigger("t"); err == nil {
		t.Error("expected removed task to be unknown to the pool")
	}
	if exp, act := 1, rx.ran; exp != act {
		t.Errorf("expected counter of %d, got %d", exp, act)
	}
}

func TestReplaceTaskUnderSameName(t *testing.T) {
	p := New(1)

	old := &run{left: 1, deadline: 5 * time.Millisecond}
	p.Add("t", old.Execute)
	time.Sleep(2 * time.Millisecond)

	replacement := &run{left: 10, deadline: time.Hour}
	p.Add("t", replacement.Execute)

	// The old task runs out and leaves the pool; the replacement must stay
	// registered and triggerable.
	time.Sleep(50 * time.Millisecond)
	if err := p.Trigger("t"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	if replacement.ran < 2 {
		t.Errorf("expected replacement to keep running, got %d runs", replacement.ran)
	}
}
