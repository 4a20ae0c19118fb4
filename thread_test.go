// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import "testing"

func TestNewThreadReservesSlotZero(t *testing.T) {
	g := NewGlobalState(nil)
	th := NewThread(g)
	if th.GetTop() != 0 {
		t.Fatalf("GetTop on a fresh thread = %d, want 0", th.GetTop())
	}
	if th.Stack.Top != 1 {
		t.Fatalf("Stack.Top = %d, want 1 (slot 0 reserved)", th.Stack.Top)
	}
}

func TestThreadStatusString(t *testing.T) {
	cases := map[ThreadStatus]string{
		ThreadSuspended: "suspended",
		ThreadRunning:   "running",
		ThreadNormal:    "normal",
		ThreadDead:      "dead",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", s, got, want)
		}
	}
}

func TestResumeRunsBodyToCompletion(t *testing.T) {
	g := NewGlobalState(nil)
	th := g.NewCoroutine()
	th.Start(func(th *Thread, args []Value) ([]Value, error) {
		n, _ := args[0].Number()
		return []Value{Int(int64(n) * 2)}, nil
	})

	results, status, err := Resume(th, nil, []Value{Int(21)})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if status != OK {
		t.Fatalf("status = %v, want OK", status)
	}
	if len(results) != 1 {
		t.Fatalf("results = %v, want one value", results)
	}
	n, _ := results[0].Number()
	if n != 42 {
		t.Fatalf("result = %v, want 42", n)
	}
	if th.Status != ThreadDead {
		t.Fatalf("Status after returning = %v, want ThreadDead", th.Status)
	}
}

func TestResumeYieldRoundTrip(t *testing.T) {
	g := NewGlobalState(nil)
	th := g.NewCoroutine()
	th.Start(func(th *Thread, args []Value) ([]Value, error) {
		got, err := th.Yield([]Value{Int(1)})
		if err != nil {
			return nil, err
		}
		n, _ := got[0].Number()
		return []Value{Int(int64(n) + 100)}, nil
	})

	results, status, err := Resume(th, nil, nil)
	if err != nil {
		t.Fatalf("Resume (first): %v", err)
	}
	if status != Yield {
		t.Fatalf("status = %v, want Yield", status)
	}
	n, _ := results[0].Number()
	if n != 1 {
		t.Fatalf("yielded value = %v, want 1", n)
	}
	if th.Status != ThreadSuspended {
		t.Fatalf("Status after yield = %v, want ThreadSuspended", th.Status)
	}

	results, status, err = Resume(th, nil, []Value{Int(5)})
	if err != nil {
		t.Fatalf("Resume (second): %v", err)
	}
	if status != OK {
		t.Fatalf("status = %v, want OK", status)
	}
	n, _ = results[0].Number()
	if n != 105 {
		t.Fatalf("final result = %v, want 105", n)
	}
}

func TestResumeDeadThreadErrors(t *testing.T) {
	g := NewGlobalState(nil)
	th := g.NewCoroutine()
	th.Start(func(th *Thread, args []Value) ([]Value, error) { return nil, nil })

	if _, _, err := Resume(th, nil, nil); err != nil {
		t.Fatalf("first Resume: %v", err)
	}
	if _, status, err := Resume(th, nil, nil); status != ErrRun || err != ErrCannotResume {
		t.Fatalf("Resume on a dead thread = %v, %v; want ErrRun, ErrCannotResume", status, err)
	}
}

func TestResumePropagatesBodyError(t *testing.T) {
	g := NewGlobalState(nil)
	th := g.NewCoroutine()
	th.Start(func(th *Thread, args []Value) ([]Value, error) { return nil, ErrNotAFunction })

	_, status, err := Resume(th, nil, nil)
	if status != ErrRun || err != ErrNotAFunction {
		t.Fatalf("Resume = %v, %v; want ErrRun, ErrNotAFunction", status, err)
	}
}
