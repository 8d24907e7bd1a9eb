package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"snapdiff/internal/capture"
	"snapdiff/internal/diff"
	"snapdiff/internal/identity"
	"snapdiff/internal/logging"
	"snapdiff/internal/session"
	"snapdiff/internal/storage"
)

// ErrQueueFull is returned by Submit when every worker is busy and the
// queue has no room left.
var ErrQueueFull = errors.New("job queue is full")

// ErrStopped is returned for work offered after Stop.
var ErrStopped = errors.New("pipeline stopped")

// Job is one comparison request: an identity with its own source and
// thresholds. Jobs never share sources unless the caller arranges it.
type Job struct {
	ID         string
	RunID      string
	Identity   identity.Identity
	Source     capture.Source
	Thresholds diff.Thresholds
	// Origin describes where the capture came from (file, url), for logs.
	Origin string

	reply chan<- Result
}

// Result captures the outcome of a Job.
type Result struct {
	Job     Job
	Verdict session.Verdict
	Error   error
}

// Failed reports whether the job errored or produced a difference.
func (r Result) Failed() bool {
	return r.Error != nil || r.Verdict.Kind == session.Different
}

// Processor executes a job and returns a Result.
type Processor interface {
	Process(ctx context.Context, job Job) Result
}

// Pipeline orchestrates job dispatch across workers.
type Pipeline struct {
	processor Processor
	log       *slog.Logger
	jobs      chan Job
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
	store     *storage.Store
	mu        sync.Mutex
	subs      map[int]chan Result
	nextSubID int
}

// New creates a Pipeline with the given concurrency running jobs through proc.
func New(ctx context.Context, concurrency int, logger *slog.Logger, store *storage.Store, proc Processor) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		processor: proc,
		log:       logger,
		jobs:      make(chan Job, concurrency*2),
		ctx:       ctx,
		cancel:    cancel,
		store:     store,
		subs:      make(map[int]chan Result),
	}

	p.startOnce.Do(func() {
		for i := 0; i < concurrency; i++ {
			p.wg.Add(1)
			go p.worker(ctx, i)
		}
	})

	return p
}

// Submit adds a job to the processing queue without blocking.
func (p *Pipeline) Submit(job Job) (string, error) {
	job = withID(job)
	if p.ctx.Err() != nil {
		return "", ErrStopped
	}
	select {
	case p.jobs <- job:
		return job.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Enqueue adds a job, waiting for queue room until ctx is done.
func (p *Pipeline) Enqueue(ctx context.Context, job Job) (string, error) {
	job = withID(job)
	if p.ctx.Err() != nil {
		return "", ErrStopped
	}
	select {
	case p.jobs <- job:
		return job.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-p.ctx.Done():
		return "", ErrStopped
	}
}

// RunBatch runs jobs as one recorded run and waits for every result. One
// job's failure never stops the others. Results keep the order of jobs.
func (p *Pipeline) RunBatch(ctx context.Context, source string, jobs []Job) (string, []Result, error) {
	runID := uuid.NewString()
	if err := p.store.RecordRunStart(runID, source); err != nil {
		p.log.Warn("failed to record run start", "run", runID, "error", err)
	}

	replies := make(chan Result, len(jobs))
	index := make(map[string]int, len(jobs))
	submitted := 0
	for i, job := range jobs {
		job.RunID = runID
		job.reply = replies
		id, err := p.Enqueue(ctx, job)
		if err != nil {
			return runID, nil, err
		}
		index[id] = i
		submitted++
	}

	results := make([]Result, len(jobs))
	failures := 0
	for n := 0; n < submitted; n++ {
		select {
		case res := <-replies:
			results[index[res.Job.ID]] = res
			if res.Failed() {
				failures++
			}
		case <-ctx.Done():
			return runID, nil, ctx.Err()
		case <-p.ctx.Done():
			return runID, nil, ErrStopped
		}
	}

	if err := p.store.RecordRunComplete(runID, len(jobs), failures); err != nil {
		p.log.Warn("failed to record run completion", "run", runID, "error", err)
	}
	return runID, results, nil
}

// Stop signals workers to exit and waits for completion. The job queue is
// never closed; senders racing Stop see ErrStopped or leave a job behind
// that no worker picks up.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.mu.Lock()
		for id, ch := range p.subs {
			close(ch)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	})
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			if ctx.Err() != nil {
				return
			}
			start := time.Now()
			name := job.Identity.Name()

			logging.LogComparisonStart(p.log, job.ID, name, map[string]any{
				"worker":               id,
				"origin":               job.Origin,
				"color_distance_limit": job.Thresholds.ColorDistanceLimit,
				"area_size_limit":      job.Thresholds.AreaSizeLimit,
			})

			res := p.processor.Process(ctx, job)
			res.Job = job
			duration := time.Since(start)

			if res.Error != nil {
				logging.LogComparisonError(p.log, job.ID, name, duration, res.Error)
			} else {
				logging.LogComparisonComplete(p.log, job.ID, name, res.Verdict.Kind.String(), duration, res.Verdict.Details())
			}
			if err := p.store.RecordVerdict(toRecord(res)); err != nil {
				p.log.Warn("failed to record verdict", "job", job.ID, "error", err)
			}

			if job.reply != nil {
				job.reply <- res
			}
			p.broadcast(res)
		}
	}
}

// Subscribe returns a channel for receiving job results and an unsubscribe function.
func (p *Pipeline) Subscribe() (<-chan Result, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	ch := make(chan Result, 8)
	p.subs[id] = ch
	unsub := func() {
		p.mu.Lock()
		if c, ok := p.subs[id]; ok {
			close(c)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	}
	return ch, unsub
}

func (p *Pipeline) broadcast(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- res:
		default:
			p.log.Warn("result channel full", "subscriber", id, "job", res.Job.ID)
		}
	}
}

func withID(job Job) Job {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	return job
}

func toRecord(res Result) storage.VerdictRecord {
	v := res.Verdict
	rec := storage.VerdictRecord{
		RunID:            res.Job.RunID,
		JobID:            res.Job.ID,
		Identity:         res.Job.Identity.Name(),
		Verdict:          v.Kind.String(),
		MaxColorDistance: diff.Round(v.MaxColorDistance),
		DiffArea:         v.DiffArea,
		Attempts:         v.Attempts,
		Stable:           v.Stable,
		Exhausted:        v.Exhausted,
		Cancelled:        v.Cancelled,
		CurrentPath:      v.CurrentPath,
		DiffPath:         v.DiffPath,
		Details:          v.Details(),
	}
	if res.Error != nil {
		rec.Verdict = "error"
		rec.Error = res.Error.Error()
		rec.Details = nil
	}
	return rec
}
