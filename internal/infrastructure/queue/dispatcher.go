package queue

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/rs/zerolog"

	"github.com/matt-iam/iam-api/internal/api/metrics"
	"github.com/matt-iam/iam-api/internal/core/domain"
	"github.com/matt-iam/iam-api/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 128
)

// Dispatcher runs token sweeps detached from the requests that trigger them.
// User sweeps are sharded onto a fixed set of workers by user id, so two
// sweeps for the same user never run concurrently. Sweep failures are logged
// and swallowed; the triggering request never sees them.
type Dispatcher struct {
	workers []chan *domain.User
	cleanup ports.CleanupService
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, cleanup ports.CleanupService, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan *domain.User, numWorkers),
		cleanup: cleanup,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan *domain.User, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// StartBlacklistSweeper runs the expired-blacklist purge on a fixed interval
// until ctx is cancelled.
func (d *Dispatcher) StartBlacklistSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := d.cleanup.SweepBlacklist(ctx); err != nil {
					d.log.Error().Err(err).Msg("blacklist sweep failed")
				}
				metrics.SweepDurationSeconds.WithLabelValues("blacklist").Observe(time.Since(start).Seconds())
			}
		}
	}()
}

// EnqueueUserSweep hands a user sweep to the responsible worker without
// blocking the caller. When the worker's buffer is full the sweep is dropped;
// the next logout or the interval sweeper picks the state up again.
func (d *Dispatcher) EnqueueUserSweep(user *domain.User) {
	select {
	case d.workers[d.shardIndex(user.ID)] <- user:
	default:
		d.log.Warn().Str("user_id", user.ID).Msg("sweep queue full, dropping user sweep")
	}
}

// shardIndex maps a user id deterministically to a worker index.
func (d *Dispatcher) shardIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32()) % len(d.workers)
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan *domain.User) {
	for {
		select {
		case <-ctx.Done():
			return
		case user, ok := <-ch:
			if !ok {
				return
			}
			start := time.Now()
			if err := d.cleanup.SweepUser(ctx, user); err != nil {
				d.log.Error().Err(err).
					Str("user_id", user.ID).
					Int("worker_id", id).
					Msg("user token sweep failed")
			}
			metrics.SweepDurationSeconds.WithLabelValues("user").Observe(time.Since(start).Seconds())
		}
	}
}
