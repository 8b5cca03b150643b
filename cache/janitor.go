/*
janitor.go - Background expiry sweep

PURPOSE:
  Get and Set only remove expired entries they touch, or sweep when the
  store is full. A store that is read rarely keeps stale payloads in memory
  until then. The janitor sweeps on a fixed interval so memory follows the
  TTLs even when traffic does not.

DESIGN:
  - Runs one background goroutine on a clockwork ticker
  - Sweeps once immediately on start
  - Stop is idempotent and waits for the goroutine to exit

USAGE:
  j := cache.NewJanitor(store, time.Minute, logger)
  j.Start()
  defer j.Stop()
*/
package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type Janitor struct {
	Store    *Store
	Interval time.Duration
	Enabled  bool

	clock  clockwork.Clock
	logger *zap.Logger
	ticker clockwork.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewJanitor uses the store's clock so fake-clock tests drive both.
func NewJanitor(store *Store, interval time.Duration, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		Store:    store,
		Interval: interval,
		Enabled:  true,
		clock:    store.clock,
		logger:   logger.Named("janitor"),
	}
}

func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.Enabled {
		j.logger.Info("disabled, not starting")
		return
	}
	if j.ticker != nil {
		return
	}

	j.ticker = j.clock.NewTicker(j.Interval)
	j.stop = make(chan struct{})
	j.wg.Add(1)
	go j.run(j.ticker, j.stop)

	j.logger.Info("started", zap.Duration("interval", j.Interval))
}

func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.ticker == nil {
		return
	}
	j.ticker.Stop()
	close(j.stop)
	j.wg.Wait()
	j.ticker = nil
	j.logger.Info("stopped")
}

func (j *Janitor) run(ticker clockwork.Ticker, stop <-chan struct{}) {
	defer j.wg.Done()

	j.RunNow()
	for {
		select {
		case <-ticker.Chan():
			j.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow sweeps immediately and returns the number of entries removed.
func (j *Janitor) RunNow() int {
	removed := j.Store.Sweep()
	if removed > 0 {
		j.logger.Debug("swept expired entries", zap.Int("removed", removed), zap.Int("size", j.Store.Len()))
	}
	return removed
}
