package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task runs once per tick.
type Task func(context.Context) error

// PollerConfig configures polling behaviour.
type PollerConfig struct {
	Interval time.Duration
	// Immediate runs the task once on Start before the first tick.
	Immediate bool
	Logger    *zap.Logger
}

// Poller runs a task on a fixed interval until stopped. Ticks never overlap: a slow task
// delays the next run instead of stacking.
type Poller struct {
	name     string
	task     Task
	interval time.Duration
	immed    bool
	logger   *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool
}

// NewPoller builds a poller. A non-positive interval falls back to one minute.
func NewPoller(name string, task Task, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Poller{
		name:     name,
		task:     task,
		interval: cfg.Interval,
		immed:    cfg.Immediate,
		logger:   cfg.Logger,
	}
}

// Start begins polling. Safe to call once; later calls, and calls after Stop, are ignored.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop()
	p.started = true
	p.logger.Sugar().Debugw("poller started", "poller", p.name, "interval", p.interval)
}

// Stop cancels polling and waits for an in-flight run to return. A stopped poller never starts.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Sugar().Debugw("poller stopped", "poller", p.name)
}

func (p *Poller) loop() {
	defer p.wg.Done()
	if p.immed {
		p.run()
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.run()
		}
	}
}

func (p *Poller) run() {
	if err := p.task(p.ctx); err != nil && p.ctx.Err() == nil {
		p.logger.Sugar().Warnw("poll failed", "poller", p.name, "error", err)
	}
}
