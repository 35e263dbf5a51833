package shutdown

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestRegistry_PriorityOrdering(t *testing.T) {
	registry := NewRegistry(nil)

	var order []string
	step := func(name string) Func {
		return func(ctx context.Context) error {
			order = append(order, name)
			return nil
		}
	}

	// Register in non-priority order
	registry.Register("database", PriorityStorage, step("database"))
	registry.Register("http server", PriorityListener, step("http server"))
	registry.Register("runs", PriorityRuns, step("runs"))
	registry.Register("hub", PriorityRuns, step("hub"))

	want := []string{"http server", "runs", "hub", "database"}
	if got := registry.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	if err := registry.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("execution order = %v, want %v", order, want)
	}
}

func TestRegistry_ContinuesAfterFailure(t *testing.T) {
	registry := NewRegistry(nil)
	errBoom := errors.New("boom")

	ran := false
	registry.Register("first", 1, func(ctx context.Context) error { return errBoom })
	registry.Register("second", 2, func(ctx context.Context) error {
		ran = true
		return nil
	})

	err := registry.Shutdown(context.Background())
	if !errors.Is(err, errBoom) {
		t.Errorf("Shutdown() error = %v, want wrapped errBoom", err)
	}
	if err != nil && !strings.Contains(err.Error(), "first:") {
		t.Errorf("error %q does not name the step", err)
	}
	if !ran {
		t.Error("second step did not run after the first failed")
	}
}

func TestRegistry_ShutdownOnce(t *testing.T) {
	registry := NewRegistry(nil)
	calls := 0
	registry.Register("step", 1, func(ctx context.Context) error {
		calls++
		return nil
	})

	_ = registry.Shutdown(context.Background())
	_ = registry.Shutdown(context.Background())
	registry.Register("late", 1, func(ctx context.Context) error {
		calls++
		return nil
	})
	_ = registry.Shutdown(context.Background())

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWaitFunc(t *testing.T) {
	if err := WaitFunc(func() {})(context.Background()); err != nil {
		t.Errorf("returned wait: error = %v", err)
	}

	block := make(chan struct{})
	defer close(block)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := WaitFunc(func() { <-block })(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("blocked wait: error = %v, want DeadlineExceeded", err)
	}
}
