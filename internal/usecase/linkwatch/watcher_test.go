package linkwatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func waitInactive(t *testing.T, w *Watcher) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for w.Active() {
		if time.Now().After(deadline) {
			t.Fatalf("watcher не освободил lease")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWatcherStopsOnConfirmation(t *testing.T) {
	calls := 0
	confirmed := make(chan struct{})
	w := New(time.Millisecond, zerolog.Nop())

	w.Start(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return calls >= 3, nil
	}, func() { close(confirmed) })

	select {
	case <-confirmed:
	case <-time.After(time.Second):
		t.Fatalf("подтверждение не пришло")
	}
	waitInactive(t, w)
	if calls < 3 {
		t.Fatalf("ожидали минимум три опроса, было %d", calls)
	}
}

func TestWatcherSurvivesCheckErrors(t *testing.T) {
	calls := 0
	confirmed := make(chan struct{})
	w := New(time.Millisecond, zerolog.Nop())

	w.Start(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		if calls < 3 {
			return false, errors.New("сеть недоступна")
		}
		return true, nil
	}, func() { close(confirmed) })

	select {
	case <-confirmed:
	case <-time.After(time.Second):
		t.Fatalf("ошибки опроса не должны останавливать watcher")
	}
}

func TestStopDiscardsInFlightResult(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	linked := make(chan struct{}, 1)
	w := New(time.Millisecond, zerolog.Nop())

	w.Start(context.Background(), func(ctx context.Context) (bool, error) {
		entered <- struct{}{}
		<-release
		return true, nil
	}, func() { linked <- struct{}{} })

	<-entered
	w.Stop() // уход с экрана до завершения опроса
	close(release)

	select {
	case <-linked:
		t.Fatalf("результат опроса после Stop должен быть отброшен")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRestartCancelsPreviousLease(t *testing.T) {
	firstLinked := make(chan struct{}, 1)
	secondLinked := make(chan struct{})
	release := make(chan struct{})
	entered := make(chan struct{})
	w := New(time.Millisecond, zerolog.Nop())

	w.Start(context.Background(), func(ctx context.Context) (bool, error) {
		entered <- struct{}{}
		<-release
		return true, nil
	}, func() { firstLinked <- struct{}{} })

	<-entered
	w.Start(context.Background(), func(ctx context.Context) (bool, error) {
		return true, nil
	}, func() { close(secondLinked) })
	close(release)

	select {
	case <-secondLinked:
	case <-time.After(time.Second):
		t.Fatalf("второй lease должен работать")
	}
	select {
	case <-firstLinked:
		t.Fatalf("первый lease должен быть отменён перезапуском")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestContextCancelReleasesLease(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := New(time.Millisecond, zerolog.Nop())
	w.Start(ctx, func(ctx context.Context) (bool, error) { return false, nil }, func() {})
	cancel()
	waitInactive(t, w)
}
