// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import (
	"strings"
	"testing"
)

func TestSetHookFiresOnCall(t *testing.T) {
	_, th := newTestThread(t)

	var events []HookEventKind
	th.SetHook(func(th *Thread, ev HookEvent) {
		events = append(events, ev.Kind)
	}, MaskCall|MaskReturn, 0)

	if err := th.PushClosure(func(th *Thread) (int, error) {
		return 0, nil
	}, 0); err != nil {
		t.Fatalf("PushClosure: %v", err)
	}
	if err := th.Call(0, 0); err != nil {
		t.Fatalf("Call: %v", err)
	}

	if len(events) != 2 || events[0] != EventCall || events[1] != EventReturn {
		t.Fatalf("events = %v, want [call return]", events)
	}
}

func TestSetHookMaskFiltersEvents(t *testing.T) {
	_, th := newTestThread(t)

	var events []HookEventKind
	th.SetHook(func(th *Thread, ev HookEvent) {
		events = append(events, ev.Kind)
	}, MaskReturn, 0)

	if err := th.PushClosure(func(th *Thread) (int, error) {
		return 0, nil
	}, 0); err != nil {
		t.Fatalf("PushClosure: %v", err)
	}
	if err := th.Call(0, 0); err != nil {
		t.Fatalf("Call: %v", err)
	}

	if len(events) != 1 || events[0] != EventReturn {
		t.Fatalf("events = %v, want [return] only", events)
	}
}

func TestSetHookNilClearsMask(t *testing.T) {
	_, th := newTestThread(t)
	th.SetHook(func(th *Thread, ev HookEvent) {}, MaskCall, 0)
	th.SetHook(nil, MaskCall, 0)

	fn, mask, _ := th.GetHook()
	if fn != nil || mask != 0 {
		t.Fatalf("GetHook = %v, %v; want nil, 0", fn, mask)
	}
}

func TestCountHookFiresEveryNCalls(t *testing.T) {
	_, th := newTestThread(t)

	count := 0
	th.SetHook(func(th *Thread, ev HookEvent) {
		count++
	}, MaskCount, 2)

	noop, err := NewHostClosure(func(th *Thread) (int, error) { return 0, nil }, nil)
	if err != nil {
		t.Fatalf("NewHostClosure: %v", err)
	}
	if err := th.PushValueRaw(fromObject(TypeFunction, variantHostClosure, noop)); err != nil {
		t.Fatalf("PushValueRaw: %v", err)
	}
	idx := th.GetTop()
	for i := 0; i < 4; i++ {
		th.PushValue(idx)
		if err := th.Call(0, 0); err != nil {
			t.Fatalf("Call: %v", err)
		}
	}

	if count != 2 {
		t.Fatalf("count hook fired %d times, want 2 (every other call)", count)
	}
}

func TestTraceLineEventThrottling(t *testing.T) {
	_, th := newTestThread(t)

	var lines []int
	th.SetHook(func(th *Thread, ev HookEvent) {
		if ev.Kind == EventLine {
			lines = append(lines, ev.Line)
		}
	}, MaskLine, 0)

	th.traceLineEvent(1)
	th.traceLineEvent(1) // same line: must not refire
	th.traceLineEvent(2)
	th.traceLineEvent(1) // jumped backward: refires

	want := []int{1, 2, 1}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("lines = %v, want %v", lines, want)
		}
	}
}

func TestAttachTracerReceivesBroadcast(t *testing.T) {
	g, th := newTestThread(t)

	var buf strings.Builder
	g.AttachTracer(&buf)

	if err := th.PushClosure(func(th *Thread) (int, error) {
		return 0, nil
	}, 0); err != nil {
		t.Fatalf("PushClosure: %v", err)
	}
	if err := th.Call(0, 0); err != nil {
		t.Fatalf("Call: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "call") || !strings.Contains(out, "return") {
		t.Fatalf("tracer output = %q, want it to mention call and return", out)
	}
}

func TestDetachTracerStopsBroadcast(t *testing.T) {
	g, th := newTestThread(t)

	var buf strings.Builder
	g.AttachTracer(&buf)
	g.DetachTracer(&buf)

	if err := th.PushClosure(func(th *Thread) (int, error) {
		return 0, nil
	}, 0); err != nil {
		t.Fatalf("PushClosure: %v", err)
	}
	if err := th.Call(0, 0); err != nil {
		t.Fatalf("Call: %v", err)
	}

	if buf.Len() != 0 {
		t.Fatalf("tracer output = %q, want empty after detach", buf.String())
	}
}

func TestTracebackIncludesGoFunctionFrame(t *testing.T) {
	_, th := newTestThread(t)

	var tb string
	if err := th.PushClosure(func(th *Thread) (int, error) {
		tb = Traceback(th, "boom", 0)
		return 0, nil
	}, 0); err != nil {
		t.Fatalf("PushClosure: %v", err)
	}
	if err := th.Call(0, 0); err != nil {
		t.Fatalf("Call: %v", err)
	}

	if !strings.HasPrefix(tb, "boom\nstack traceback:") {
		t.Fatalf("Traceback = %q, want it to start with the message and header", tb)
	}
	if !strings.Contains(tb, "[Go function]") {
		t.Fatalf("Traceback = %q, want a [Go function] frame", tb)
	}
}
