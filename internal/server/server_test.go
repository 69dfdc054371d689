package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"
)

func testServer() *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(http.NotFoundHandler(), Config{Port: 0, ShutdownTimeout: time.Second}, logger)
}

func TestShutdown_ReverseOrder(t *testing.T) {
	t.Parallel()

	s := testServer()

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownFunc {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	s.OnShutdown("store", record("store"))
	s.OnShutdown("stream_worker", record("stream_worker"))
	s.OnShutdown("dispatcher", record("dispatcher"))

	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	want := []string{"dispatcher", "stream_worker", "store"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestShutdown_JoinsErrorsAndContinues(t *testing.T) {
	t.Parallel()

	s := testServer()
	boom := errors.New("boom")
	ran := false

	s.OnShutdown("last", func(context.Context) error { ran = true; return nil })
	s.OnShutdown("failing", func(context.Context) error { return boom })

	err := s.Shutdown()
	if !errors.Is(err, boom) {
		t.Fatalf("Shutdown() error = %v, want %v", err, boom)
	}
	if !ran {
		t.Error("component after the failing one was not stopped")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	s := testServer()
	stopped := make(chan struct{})
	s.OnShutdown("probe", func(context.Context) error { close(stopped); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	select {
	case <-stopped:
	default:
		t.Error("shutdown hook not called")
	}
}
