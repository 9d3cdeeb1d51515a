package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"codequest/internal/app/service"
	"codequest/internal/domain/model"
)

// releaseLock deletes the lock only if it still holds our token.
var releaseLock = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

type Options struct {
	Queue       string
	LockPrefix  string
	LockTTL     time.Duration
	Concurrency int
	// PopTimeout bounds each BRPOP so shutdown is noticed promptly.
	PopTimeout time.Duration
	// MaxRequeues bounds how often a job is pushed back when the lock
	// cannot be taken. Past it the job is graded without the lock.
	MaxRequeues int
}

// GradingWorker consumes grading jobs pushed by service.QueueScheduler.
// A per-submission lock keeps two workers from grading the same
// submission at once.
type GradingWorker struct {
	rdb    *redis.Client
	grader service.Grader
	opts   Options
	log    *zap.Logger

	slots chan struct{}
	wg    sync.WaitGroup
}

func NewGradingWorker(rdb *redis.Client, grader service.Grader, opts Options, log *zap.Logger) *GradingWorker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 2 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	if opts.MaxRequeues <= 0 {
		opts.MaxRequeues = 3
	}
	return &GradingWorker{
		rdb:    rdb,
		grader: grader,
		opts:   opts,
		log:    log.With(zap.String("queue", opts.Queue)),
		slots:  make(chan struct{}, opts.Concurrency),
	}
}

// Start blocks until ctx is cancelled, then waits for in-flight jobs.
func (w *GradingWorker) Start(ctx context.Context) {
	w.log.Info("grading worker started", zap.Int("concurrency", w.opts.Concurrency))
	defer func() {
		w.wg.Wait()
		w.log.Info("grading worker stopped")
	}()

	for {
		// wait for a free slot before taking a job off the queue
		select {
		case <-ctx.Done():
			return
		case w.slots <- struct{}{}:
		}

		job, ok := w.pop(ctx)
		if !ok {
			<-w.slots
			if ctx.Err() != nil {
				return
			}
			continue
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-w.slots }()
			w.process(ctx, job)
		}()
	}
}

func (w *GradingWorker) pop(ctx context.Context) (model.GradingJob, bool) {
	res, err := w.rdb.BRPop(ctx, w.opts.PopTimeout, w.opts.Queue).Result()
	if err != nil {
		switch {
		case errors.Is(err, redis.Nil):
		case ctx.Err() != nil:
		default:
			w.log.Error("failed to pop grading job", zap.Error(err))
			sleep(ctx, time.Second)
		}
		return model.GradingJob{}, false
	}
	// [queue, value]
	if len(res) < 2 {
		return model.GradingJob{}, false
	}

	var job model.GradingJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil || job.SubmissionID == "" {
		w.log.Error("dropping malformed grading job", zap.String("payload", res[1]), zap.Error(err))
		return model.GradingJob{}, false
	}
	return job, true
}

// process grades job while holding the submission lock. Grading runs on a
// context detached from ctx so a shutdown lets it reach a terminal verdict.
func (w *GradingWorker) process(ctx context.Context, job model.GradingJob) {
	log := w.log.With(zap.String("submission_id", job.SubmissionID))
	key := w.opts.LockPrefix + job.SubmissionID
	token := uuid.NewString()
	bg := context.WithoutCancel(ctx)

	ok, err := w.rdb.SetNX(bg, key, token, w.opts.LockTTL).Result()
	if err != nil {
		log.Error("failed to acquire grading lock", zap.Error(err))
		if w.requeue(bg, job) {
			return
		}
		// The job is off the queue and nobody else will see it. Grading
		// tolerates a concurrent run: the verdict write only moves a PENDING
		// row and the ledger pays once.
		log.Warn("grading without lock")
		w.grader.Grade(bg, job)
		return
	}
	if !ok {
		log.Info("submission is already being graded, dropping duplicate job")
		return
	}
	defer func() {
		deleted, err := releaseLock.Run(bg, w.rdb, []string{key}, token).Int()
		switch {
		case err != nil:
			log.Error("failed to release grading lock", zap.Error(err))
		case deleted == 0:
			log.Warn("grading lock expired before release")
		}
	}()

	start := time.Now()
	w.grader.Grade(bg, job)
	log.Debug("job processed", zap.Duration("elapsed", time.Since(start)))
}

// requeue pushes job back to the consuming end of the queue. It reports
// false when the requeue budget is spent or the push fails.
func (w *GradingWorker) requeue(ctx context.Context, job model.GradingJob) bool {
	if job.Requeues >= w.opts.MaxRequeues {
		return false
	}
	job.Requeues++
	payload, err := json.Marshal(job)
	if err != nil {
		return false
	}
	if err := w.rdb.RPush(ctx, w.opts.Queue, payload).Err(); err != nil {
		w.log.Error("failed to requeue grading job", zap.String("submission_id", job.SubmissionID), zap.Error(err))
		return false
	}
	w.log.Info("grading job requeued", zap.String("submission_id", job.SubmissionID), zap.Int("requeues", job.Requeues))
	return true
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
