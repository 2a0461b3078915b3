package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

var errBroker = errors.New("broker unavailable")

func newTestBreaker(t *testing.T, maxFailures int) (*CircuitBreaker, *time.Time) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cb := New(Config{
		Name:        "test",
		MaxFailures: maxFailures,
		Timeout:     time.Minute,
		MaxRequests: 1,
	}, logger)

	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cb.now = func() time.Time { return clock }
	return cb, &clock
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(t, 3)

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errBroker }); !errors.Is(err, errBroker) {
			t.Fatalf("attempt %d: expected broker error, got %v", i, err)
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("expected ErrCircuitBreakerOpen, got %v", err)
	}
	if called {
		t.Error("function ran while breaker was open")
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(t, 2)

	_ = cb.Execute(func() error { return errBroker })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errBroker })

	if cb.State() != StateClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestHalfOpenProbe(t *testing.T) {
	cb, clock := newTestBreaker(t, 1)

	_ = cb.Execute(func() error { return errBroker })
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	*clock = clock.Add(2 * time.Minute)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe should run: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(t, 1)

	_ = cb.Execute(func() error { return errBroker })
	*clock = clock.Add(2 * time.Minute)
	_ = cb.Execute(func() error { return errBroker })

	if cb.State() != StateOpen {
		t.Errorf("expected open after failed probe, got %s", cb.State())
	}
}

func TestStateChangeCallback(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	changes := make(chan State, 1)
	cb := New(Config{
		Name:        "callback",
		MaxFailures: 1,
		Timeout:     time.Minute,
		OnStateChange: func(name string, from, to State) {
			changes <- to
		},
	}, logger)

	_ = cb.Execute(func() error { return errBroker })

	select {
	case to := <-changes:
		if to != StateOpen {
			t.Errorf("expected transition to open, got %s", to)
		}
	case <-time.After(time.Second):
		t.Fatal("state change callback not invoked")
	}
}

func TestStatsConsistentUnderConcurrency(t *testing.T) {
	cb, _ := newTestBreaker(t, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = cb.Execute(func() error {
				if i%2 == 0 {
					return errBroker
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	stats := cb.Stats()
	if stats.TotalRequests != 50 {
		t.Errorf("expected 50 requests, got %d", stats.TotalRequests)
	}
	if stats.TotalRequests != stats.TotalFailures+stats.TotalSuccesses {
		t.Errorf("inconsistent stats: %+v", stats)
	}
}

func TestInvalidConfigUsesDefaults(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cb := New(Config{}, logger)
	if cb.Name() != "unnamed" {
		t.Errorf("expected unnamed, got %s", cb.Name())
	}
	if cb.maxFailures != defaultMaxFailures || cb.timeout != defaultTimeout || cb.maxRequests != defaultMaxRequests {
		t.Errorf("defaults not applied: %s", cb)
	}
}

func TestManagerReturnsSameBreaker(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	m := NewManager(Config{MaxFailures: 1, Timeout: time.Minute}, logger)
	a := m.Get("kafka.order_placed")
	if a != m.Get("kafka.order_placed") {
		t.Error("expected the same breaker instance")
	}
	m.Get("kafka.subscriber_added")

	_ = a.Execute(func() error { return errBroker })

	stats := m.Stats()
	if len(stats) != 2 {
		t.Fatalf("expected 2 breakers, got %d", len(stats))
	}
	if stats[0].Name != "kafka.order_placed" || stats[0].State != "open" {
		t.Errorf("unexpected first stats entry: %+v", stats[0])
	}

	m.ResetAll()
	if a.State() != StateClosed {
		t.Errorf("expected closed after reset, got %s", a.State())
	}
}
