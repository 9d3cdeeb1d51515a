package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"codequest/internal/common"
	"codequest/internal/domain/model"
)

// Grader runs one grading job to a terminal verdict.
type Grader interface {
	Grade(ctx context.Context, job model.GradingJob)
}

// Scheduler hands a grading job off without waiting for it to run.
type Scheduler interface {
	Schedule(ctx context.Context, job model.GradingJob) error
}

// InlineScheduler grades in a goroutine of the current process. A job whose
// submission is already being graded here is dropped.
type InlineScheduler struct {
	grader   Grader
	inflight *xsync.MapOf[string, struct{}]
	wg       sync.WaitGroup
	log      *zap.Logger
}

func NewInlineScheduler(grader Grader, log *zap.Logger) *InlineScheduler {
	return &InlineScheduler{
		grader:   grader,
		inflight: xsync.NewMapOf[string, struct{}](),
		log:      log,
	}
}

func (s *InlineScheduler) Schedule(ctx context.Context, job model.GradingJob) error {
	if _, loaded := s.inflight.LoadOrStore(job.SubmissionID, struct{}{}); loaded {
		s.log.Info("submission already grading, ignoring duplicate", zap.String("submission_id", job.SubmissionID))
		return nil
	}

	// The request that scheduled the job may finish long before grading does.
	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inflight.Delete(job.SubmissionID)
		s.grader.Grade(bg, job)
	}()
	return nil
}

// Wait blocks until every scheduled job has finished.
func (s *InlineScheduler) Wait() {
	s.wg.Wait()
}

// QueueScheduler pushes jobs onto a Redis list consumed by worker.GradingWorker.
type QueueScheduler struct {
	rdb   *redis.Client
	queue string
}

func NewQueueScheduler(rdb *redis.Client, queue string) *QueueScheduler {
	return &QueueScheduler{rdb: rdb, queue: queue}
}

func (s *QueueScheduler) Schedule(ctx context.Context, job model.GradingJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return common.Errorf("failed to marshal grading job: %w", err)
	}
	if err := s.rdb.LPush(ctx, s.queue, payload).Err(); err != nil {
		return common.Errorf("failed to push grading job %s: %v: %w", job.SubmissionID, err, common.ErrServiceUnavailable)
	}
	return nil
}
