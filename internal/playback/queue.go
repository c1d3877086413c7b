// Package playback serializes audio jobs for one guild: strictly FIFO, at
// most one job playing at a time, and a batch-failure policy where one bad
// item drops everything queued behind it.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/glizzus/talkward/internal/generator"
)

// ItemTimeout guards against a hung vendor stream. A job still playing after
// this long is forcibly cancelled.
const ItemTimeout = 60 * time.Second

// ErrStopped is the cancellation cause a job sees when playback is halted
// via Stop.
var ErrStopped = errors.New("playback stopped")

// Job is one queued playback unit. Play performs synthesis and streaming and
// returns nil on clean completion. The ctx it receives is cancelled on Stop
// and on the per-item timeout.
type Job struct {
	ID   string
	Name string
	Play func(ctx context.Context) error

	// OnDone, if set, receives the job's single completion signal:
	// nil, ErrStopped (via context cause), or the failure reason.
	OnDone func(err error)
}

// Queue is a per-guild FIFO of playback jobs.
type Queue struct {
	guildID     string
	idGenerator generator.Generator[string]
	itemTimeout time.Duration
	log         *slog.Logger

	mu      sync.Mutex
	pending []Job
	active  bool
	cancel  context.CancelCauseFunc
}

// Option configures a Queue.
type Option func(*Queue)

// WithItemTimeout overrides the per-item playback guard. Tests shrink it.
func WithItemTimeout(d time.Duration) Option {
	return func(q *Queue) { q.itemTimeout = d }
}

func NewQueue(guildID string, idGenerator generator.Generator[string], opts ...Option) *Queue {
	if idGenerator == nil {
		idGenerator = &generator.UUIDV4Generator{}
	}
	q := &Queue{
		guildID:     guildID,
		idGenerator: idGenerator,
		itemTimeout: ItemTimeout,
		log:         slog.Default().With("guildID", guildID),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a job and starts draining if nothing is playing.
// It never blocks; playback proceeds asynchronously.
func (q *Queue) Enqueue(job Job) {
	if job.ID == "" {
		id, err := q.idGenerator.Next()
		if err != nil {
			q.log.Error("failed to generate job ID", "error", err)
			return
		}
		job.ID = id
	}

	q.mu.Lock()
	q.pending = append(q.pending, job)
	if q.active {
		q.mu.Unlock()
		return
	}
	q.active = true
	q.mu.Unlock()

	go q.drain()
}

// Stop halts the current playback. With all set, every pending job is
// discarded as well. Safe to call when nothing is playing.
func (q *Queue) Stop(reason string, all bool) {
	q.mu.Lock()
	if all {
		q.pending = nil
	}
	cancel := q.cancel
	q.mu.Unlock()

	if cancel != nil {
		q.log.Info("stopping playback", "reason", reason, "all", all)
		cancel(ErrStopped)
	}
}

// Depth returns the number of jobs waiting behind the active one.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Active reports whether a job is currently playing.
func (q *Queue) Active() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// drain plays queued jobs in FIFO order until the queue empties or a job
// fails. Exactly one drain loop runs at a time per queue.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.active = false
			q.mu.Unlock()
			return
		}
		job := q.pending[0]
		q.pending = q.pending[1:]

		ctx, cancel := context.WithCancelCause(context.Background())
		q.cancel = cancel
		q.mu.Unlock()

		err := q.play(ctx, job)

		q.mu.Lock()
		q.cancel = nil
		if err != nil {
			// One bad item invalidates the batch: queued chat loses its
			// relevance fast, so skip-and-continue is worse than silence.
			dropped := len(q.pending)
			q.pending = nil
			q.active = false
			q.mu.Unlock()

			if !errors.Is(err, ErrStopped) {
				q.log.Error("playback failed, dropping queue",
					slog.String("jobID", job.ID),
					slog.String("jobName", job.Name),
					slog.Int("dropped", dropped),
					slog.Any("error", err),
				)
			}
			if job.OnDone != nil {
				job.OnDone(err)
			}
			return
		}
		q.mu.Unlock()

		if job.OnDone != nil {
			job.OnDone(nil)
		}
	}
}

func (q *Queue) play(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeoutCause(ctx, q.itemTimeout, errors.New("playback item timeout"))
	defer cancel()

	err := job.Play(ctx)
	if err != nil && ctx.Err() != nil {
		// Prefer the cancellation cause (stop or timeout) over whatever
		// the stream surfaced when its context died.
		return context.Cause(ctx)
	}
	return err
}
