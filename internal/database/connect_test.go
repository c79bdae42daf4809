package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestWaitReady_RetriesUntilSuccess проверяет повтор ping до первого успеха.
func TestWaitReady_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	ping := func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	attempts, err := waitReady(context.Background(), 10*time.Second, ping, quietLogger())
	if err != nil {
		t.Fatalf("waitReady вернул ошибку: %v", err)
	}
	if attempts != 3 {
		t.Errorf("попыток: хотели 3, получили %d", attempts)
	}
}

// TestWaitReady_Timeout проверяет, что после таймаута возвращается последняя ошибка.
func TestWaitReady_Timeout(t *testing.T) {
	refused := errors.New("connection refused")
	ping := func(context.Context) error { return refused }

	start := time.Now()
	attempts, err := waitReady(context.Background(), 500*time.Millisecond, ping, quietLogger())
	if !errors.Is(err, refused) {
		t.Fatalf("ожидалась исходная ошибка ping, получено %v", err)
	}
	if attempts < 2 {
		t.Errorf("ожидалось несколько попыток, получено %d", attempts)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("ожидание заняло %v, таймаут 500ms не соблюдён", elapsed)
	}
}

// TestWaitReady_ZeroTimeout проверяет единственную попытку без ожидания.
func TestWaitReady_ZeroTimeout(t *testing.T) {
	attempts, err := waitReady(context.Background(), 0, func(context.Context) error {
		return errors.New("down")
	}, quietLogger())
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if attempts != 1 {
		t.Errorf("попыток: хотели 1, получили %d", attempts)
	}
}

// TestWaitReady_ContextCanceled проверяет выход по отмене контекста.
func TestWaitReady_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ping := func(context.Context) error {
		cancel()
		return errors.New("down")
	}

	_, err := waitReady(ctx, time.Minute, ping, quietLogger())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ожидалась context.Canceled, получено %v", err)
	}
}
