package worker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	"github.com/tanpawarit/Chative-WhatsApp-Commerce/pkg/metrics"
)

var (
	ErrQueueFull  = errors.New("deferred queue is full")
	ErrPoolClosed = errors.New("deferred pool is closed")
)

const (
	ModeLocal  = "local"
	ModeQStash = "qstash"
)

type Config struct {
	Mode         string        `envconfig:"MODE" split_words:"true" default:"local"`
	Lanes        int           `envconfig:"LANES" split_words:"true" default:"4"`
	QueueSize    int           `envconfig:"QUEUE_SIZE" split_words:"true" default:"64"`
	MaxAttempts  int           `envconfig:"MAX_ATTEMPTS" split_words:"true" default:"1"`
	RetryBackoff time.Duration `envconfig:"RETRY_BACKOFF" split_words:"true" default:"2s"`
	TaskTimeout  time.Duration `envconfig:"TASK_TIMEOUT" split_words:"true" default:"2m"`
	CallbackURL  string        `envconfig:"CALLBACK_URL" split_words:"true"`
}

func (c Config) normalize() Config {
	if c.Lanes <= 0 {
		c.Lanes = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 2 * time.Minute
	}
	return c
}

// Pool runs deferred tasks in process. Tasks for one user always land on the same lane,
// so a user's deferred replies are produced in the order they were queued.
type Pool struct {
	cfg   Config
	lanes []chan contractx.DeferredTask

	mu      sync.RWMutex
	closed  bool
	started bool
	stop    chan struct{}

	wg conc.WaitGroup
}

var _ contractx.Deferrer = (*Pool)(nil)

func NewPool(cfg Config) *Pool {
	cfg = cfg.normalize()
	lanes := make([]chan contractx.DeferredTask, cfg.Lanes)
	for i := range lanes {
		lanes[i] = make(chan contractx.DeferredTask, cfg.QueueSize)
	}
	return &Pool{cfg: cfg, lanes: lanes, stop: make(chan struct{})}
}

// Start launches one goroutine per lane. The runner is bound late because it usually
// depends on the pool as its Deferrer.
func (p *Pool) Start(runner contractx.TaskRunner) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for i, lane := range p.lanes {
		p.wg.Go(func() {
			for task := range lane {
				metrics.QueueDepth(-1)
				p.process(runner, task)
			}
			log.Debug().Int("lane", i).Msg("deferred lane stopped")
		})
	}
}

// Defer never blocks: a full lane rejects the task so the caller can answer inline.
func (p *Pool) Defer(_ context.Context, task contractx.DeferredTask) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		metrics.Deferred("rejected")
		return ErrPoolClosed
	}

	select {
	case p.lanes[p.laneFor(task.UserID)] <- task:
		metrics.QueueDepth(1)
		return nil
	default:
		metrics.Deferred("rejected")
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for queued ones to finish or ctx to end.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.stop)
		for _, lane := range p.lanes {
			close(lane)
		}
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) laneFor(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(p.lanes)))
}

func (p *Pool) process(runner contractx.TaskRunner, task contractx.DeferredTask) {
	logger := log.With().Str("user_id", task.UserID).Str("task", task.ID).Logger()

	var err error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		err = p.runOnce(runner, task)
		if err == nil {
			metrics.Deferred("succeeded")
			return
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("deferred task failed")
		if attempt < p.cfg.MaxAttempts {
			metrics.Deferred("retried")
			p.backoff()
		}
	}

	metrics.Deferred("abandoned")
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.TaskTimeout)
	defer cancel()
	var pc panics.Catcher
	pc.Try(func() { runner.AbandonDeferred(ctx, task, err) })
	if r := pc.Recovered(); r != nil {
		logger.Error().Str("panic", r.String()).Msg("abandon handler panicked")
	}
}

// backoff waits between attempts. Once Close is called the wait is skipped so queued
// tasks drain without sitting out their backoff.
func (p *Pool) backoff() {
	if p.cfg.RetryBackoff <= 0 {
		return
	}
	timer := time.NewTimer(p.cfg.RetryBackoff)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-p.stop:
	}
}

func (p *Pool) runOnce(runner contractx.TaskRunner, task contractx.DeferredTask) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.TaskTimeout)
	defer cancel()

	var pc panics.Catcher
	pc.Try(func() { err = runner.RunDeferred(ctx, task) })
	if r := pc.Recovered(); r != nil {
		return fmt.Errorf("deferred task panicked: %w", r.AsError())
	}
	return err
}
