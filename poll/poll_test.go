package poll

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUntil_ImmediateSuccess(t *testing.T) {
	calls := 0
	err := Until(context.Background(), time.Millisecond, func() (bool, error) {
		calls++
		return true, nil
	})
	if err != nil {
		t.Fatalf("until: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestUntil_EventualSuccess(t *testing.T) {
	calls := 0
	err := Until(context.Background(), time.Millisecond, func() (bool, error) {
		calls++
		return calls >= 3, nil
	})
	if err != nil {
		t.Fatalf("until: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestUntil_Deadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Until(ctx, time.Millisecond, func() (bool, error) { return false, nil })
	if !errors.Is(err, ErrDeadline) {
		t.Fatalf("until: got %v, want ErrDeadline", err)
	}
}

func TestUntil_PredicateError(t *testing.T) {
	boom := errors.New("boom")
	err := Until(context.Background(), time.Millisecond, func() (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("until: got %v, want wrapped boom", err)
	}
}

func TestUntilTimeout_Deadline(t *testing.T) {
	start := time.Now()
	err := UntilTimeout(15*time.Millisecond, time.Millisecond, func() (bool, error) {
		return false, nil
	})
	if !errors.Is(err, ErrDeadline) {
		t.Fatalf("until timeout: got %v, want ErrDeadline", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("until timeout took %v, should terminate promptly", elapsed)
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	actions := 0
	err := Retry(context.Background(), 3, 50*time.Millisecond, time.Millisecond,
		func() error { actions++; return nil },
		func() (bool, error) { return true, nil })
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if actions != 1 {
		t.Errorf("actions: got %d, want 1", actions)
	}
}

func TestRetry_SucceedsOnLaterAttempt(t *testing.T) {
	actions := 0
	err := Retry(context.Background(), 3, 10*time.Millisecond, time.Millisecond,
		func() error { actions++; return nil },
		func() (bool, error) { return actions >= 2, nil })
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if actions != 2 {
		t.Errorf("actions: got %d, want 2", actions)
	}
}

func TestRetry_ExhaustsBound(t *testing.T) {
	actions := 0
	err := Retry(context.Background(), 3, 5*time.Millisecond, time.Millisecond,
		func() error { actions++; return nil },
		func() (bool, error) { return false, nil })
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("retry: got %v, want ErrRetriesExhausted", err)
	}
	// The bound is the contract: exactly attempts triggers, no more.
	if actions != 3 {
		t.Errorf("actions: got %d, want 3", actions)
	}
}

func TestRetry_ActionErrorConsumesAttempt(t *testing.T) {
	actions := 0
	err := Retry(context.Background(), 2, 5*time.Millisecond, time.Millisecond,
		func() error { actions++; return errors.New("click failed") },
		func() (bool, error) { return true, nil })
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("retry: got %v, want ErrRetriesExhausted", err)
	}
	if actions != 2 {
		t.Errorf("actions: got %d, want 2", actions)
	}
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 3, time.Millisecond, time.Millisecond,
		func() error { return nil },
		func() (bool, error) { return false, nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("retry: got %v, want context.Canceled", err)
	}
}
