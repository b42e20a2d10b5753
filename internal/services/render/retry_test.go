package render

import (
	"context"
	"errors"
	"testing"
	"time"

	"storyart/internal/services"
)

func TestRetryMachineTransientBackoffDoubles(t *testing.T) {
	machine := newRetryMachine(4, time.Second, 30*time.Second)
	transient := &httpStatusError{StatusCode: 503}

	var delays []time.Duration
	for i := 0; i < 3; i++ {
		machine.begin()
		machine.observe(transient)
		if machine.phase != phaseBackoff {
			t.Fatalf("attempt %d: expected backoff, got phase %d", i+1, machine.phase)
		}
		delays = append(delays, machine.nextDelay)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d: expected %v, got %v", i, want[i], delays[i])
		}
	}

	machine.begin()
	machine.observe(transient)
	if machine.phase != phaseFailed {
		t.Fatalf("expected failure after max attempts, got phase %d", machine.phase)
	}
}

func TestRetryMachineBackoffCapped(t *testing.T) {
	machine := newRetryMachine(10, time.Second, 4*time.Second)
	transient := &httpStatusError{StatusCode: 500}

	var last time.Duration
	for i := 0; i < 6; i++ {
		machine.begin()
		machine.observe(transient)
		last = machine.nextDelay
	}
	if last != 4*time.Second {
		t.Fatalf("expected capped delay 4s, got %v", last)
	}
}

func TestRetryMachinePermanentFailsImmediately(t *testing.T) {
	machine := newRetryMachine(4, time.Second, 30*time.Second)
	machine.begin()
	machine.observe(&httpStatusError{StatusCode: 404})
	if machine.phase != phaseFailed {
		t.Fatalf("expected immediate failure, got phase %d", machine.phase)
	}
	if !errors.Is(machine.failure("render", "beat-001"), services.ErrPermanent) {
		t.Fatal("expected ErrPermanent marker")
	}
}

func TestRetryMachineTimeoutRetriedOnce(t *testing.T) {
	machine := newRetryMachine(4, time.Second, 30*time.Second)

	machine.begin()
	machine.observe(context.DeadlineExceeded)
	if machine.phase != phaseBackoff || !machine.extendedDeadline {
		t.Fatalf("expected backoff with extended deadline, got phase %d extended=%v", machine.phase, machine.extendedDeadline)
	}

	machine.begin()
	machine.observe(context.DeadlineExceeded)
	if machine.phase != phaseFailed {
		t.Fatalf("expected failure on second timeout, got phase %d", machine.phase)
	}
	if !errors.Is(machine.failure("render", ""), services.ErrTimeout) {
		t.Fatal("expected ErrTimeout marker")
	}
}

func TestRetryMachineSuccessStops(t *testing.T) {
	machine := newRetryMachine(4, time.Second, 30*time.Second)
	machine.begin()
	machine.observe(nil)
	if machine.phase != phaseSucceeded {
		t.Fatalf("expected success, got phase %d", machine.phase)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want failureClass
	}{
		{&httpStatusError{StatusCode: 500}, classTransient},
		{&httpStatusError{StatusCode: 429}, classTransient},
		{&httpStatusError{StatusCode: 408}, classTransient},
		{&httpStatusError{StatusCode: 400}, classPermanent},
		{&httpStatusError{StatusCode: 404}, classPermanent},
		{context.DeadlineExceeded, classTimeout},
		{&permanentError{errors.New("prompt rejected")}, classPermanent},
		{errors.New("connection reset"), classTransient},
	}
	for _, tc := range cases {
		if got := classify(tc.err); got != tc.want {
			t.Fatalf("classify(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestEstimatorLocalAverage(t *testing.T) {
	e := newEstimator()
	e.observe(2 * time.Second)
	e.observe(4 * time.Second)
	if got := e.average(); got != 3*time.Second {
		t.Fatalf("expected 3s average, got %v", got)
	}
	if got := e.remaining(4); got != 12*time.Second {
		t.Fatalf("expected 12s remaining, got %v", got)
	}
}

func TestEstimatorPrefersServiceStats(t *testing.T) {
	e := newEstimator()
	e.observe(2 * time.Second)
	e.setServiceStats(10*time.Second, 2)
	if got := e.remaining(1); got != 30*time.Second {
		t.Fatalf("expected (1+2)x10s, got %v", got)
	}
}

func TestEstimatorFallbackWithoutSamples(t *testing.T) {
	e := newEstimator()
	if got := e.average(); got != fallbackDuration {
		t.Fatalf("expected fallback, got %v", got)
	}
}
