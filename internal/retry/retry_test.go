package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func transientOnly(err error) bool { return errors.Is(err, errTransient) }

func quickPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Retryable: transientOnly}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), quickPolicy(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	p := quickPolicy()
	var delays []time.Duration
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		delays = append(delays, delay)
	}

	calls := 0
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(delays) != 2 || delays[0] != time.Millisecond || delays[1] != 2*time.Millisecond {
		t.Errorf("delays = %v, want doubling from 1ms", delays)
	}
}

func TestDoPermanentErrorIsImmediate(t *testing.T) {
	boom := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), quickPolicy(), func(context.Context) error {
		calls++
		return boom
	})
	if err != boom {
		t.Fatalf("err = %v, want the exact permanent error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoExhaustionReturnsLastErrorUnchanged(t *testing.T) {
	attemptErrs := []error{
		errors.Join(errTransient, errors.New("attempt 1")),
		errors.Join(errTransient, errors.New("attempt 2")),
		errors.Join(errTransient, errors.New("attempt 3")),
	}
	calls := 0
	err := Do(context.Background(), quickPolicy(), func(context.Context) error {
		err := attemptErrs[calls]
		calls++
		return err
	})
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	// Identity, not just equivalence: the final attempt's error must come
	// back without any wrapping.
	if err != attemptErrs[2] {
		t.Fatalf("err = %v, want the third attempt's error itself", err)
	}
}

func TestDoStopsWhenContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, InitialDelay: time.Minute, Retryable: transientOnly}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Do(ctx, p, func(context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not cut the backoff wait short")
	}
}

func TestDoValueReturnsValue(t *testing.T) {
	calls := 0
	got, err := DoValue(context.Background(), quickPolicy(), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errTransient
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("DoValue: %v", err)
	}
	if got != 42 {
		t.Errorf("got = %d, want 42", got)
	}
}

func TestDoValueZeroOnFailure(t *testing.T) {
	boom := errors.New("no")
	got, err := DoValue(context.Background(), quickPolicy(), func(context.Context) (string, error) {
		return "partial", boom
	})
	if err != boom {
		t.Fatalf("err = %v, want boom", err)
	}
	if got != "" {
		t.Errorf("got = %q, want zero value", got)
	}
}

func TestZeroPolicyRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{}, func(context.Context) error {
		calls++
		return errTransient
	})
	if err != errTransient {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDefaultPolicyShape(t *testing.T) {
	p := Default(transientOnly)
	if p.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", p.MaxAttempts)
	}
	if p.InitialDelay != 200*time.Millisecond {
		t.Errorf("InitialDelay = %v, want 200ms", p.InitialDelay)
	}
	if !p.Retryable(errTransient) || p.Retryable(errors.New("other")) {
		t.Error("Retryable predicate not wired through")
	}
}
