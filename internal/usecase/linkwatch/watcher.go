package linkwatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hollowscan/internal/infra/metrics"
)

// DefaultInterval — период опроса статуса привязки.
const DefaultInterval = 3 * time.Second

// CheckFunc опрашивает сервер; true означает подтверждённую привязку.
type CheckFunc func(ctx context.Context) (bool, error)

// Watcher — lease на периодический опрос статуса привязки Telegram.
// Захватывается при фокусе экрана, освобождается при уходе с него,
// при подтверждении привязки или при Stop. Одновременно активен не более
// одного опроса; результат опроса из прежнего поколения отбрасывается.
type Watcher struct {
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
}

// New создаёт watcher с заданным периодом опроса.
func New(interval time.Duration, log zerolog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{interval: interval, log: log}
}

// Start захватывает lease и запускает опрос. Предыдущий опрос, если был,
// отменяется. onLinked вызывается один раз при подтверждении привязки.
func (w *Watcher) Start(ctx context.Context, check CheckFunc, onLinked func()) {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.gen++
	gen := w.gen
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	go w.run(runCtx, gen, check, onLinked)
}

// Stop освобождает lease и инвалидирует незавершённый опрос.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.gen++
}

// Active сообщает, идёт ли опрос.
func (w *Watcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

func (w *Watcher) run(ctx context.Context, gen uint64, check CheckFunc, onLinked func()) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.release(gen)
			return
		case <-ticker.C:
			metrics.LinkPollsTotal.Inc()
			linked, err := check(ctx)
			if err != nil {
				w.log.Debug().Err(err).Msg("linkwatch: опрос не удался")
				continue
			}
			if !linked {
				continue
			}
			if w.finish(gen) {
				onLinked()
			}
			return
		}
	}
}

// finish завершает lease, если поколение ещё актуально.
func (w *Watcher) finish(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen {
		return false
	}
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	return true
}

func (w *Watcher) release(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen == gen && w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}
