package service

import (
	"context"
	"errors"
	"lms_backend/pkg/logger"
	"lms_backend/pkg/monitoring"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrDispatcherStopped = errors.New("progress dispatcher stopped")

// MutationResult 挂起的异步变更。前门不等待，调用方要看结果可以 Wait
type MutationResult struct {
	done chan struct{}
	err  error
}

func (r *MutationResult) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err 仅在 Wait 返回后有效
func (r *MutationResult) Err() error {
	return r.err
}

type mutationJob struct {
	operation string
	userID    uint
	courseID  uint
	run       func(ctx context.Context) error
	result    *MutationResult
}

// ProgressDispatcher 把进度变更从 HTTP 应答里解耦出来。
// 单消费者顺序执行，同一进程内两次变更不会交错读写同一条记录
type ProgressDispatcher struct {
	jobs    chan *mutationJob
	timeout time.Duration
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewProgressDispatcher(queueSize int, timeout time.Duration) *ProgressDispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &ProgressDispatcher{
		jobs:    make(chan *mutationJob, queueSize),
		timeout: timeout,
		stop:    make(chan struct{}),
	}
	d.wg.Add(1)
	return d
}

// Run 必须且只能启动一次，Stop 会等它排空队列后返回
func (d *ProgressDispatcher) Run() {
	defer d.wg.Done()

	for {
		select {
		case job := <-d.jobs:
			d.execute(job)
			monitoring.ProgressQueueDepth.Set(float64(len(d.jobs)))
		case <-d.stop:
			// 排空剩余任务再退出
			for {
				select {
				case job := <-d.jobs:
					d.execute(job)
				default:
					return
				}
			}
		}
	}
}

func (d *ProgressDispatcher) Stop() {
	close(d.stop)
	d.wg.Wait()
}

// Enqueue 提交一个变更并立即返回，结果只通过 MutationResult 和日志可见
func (d *ProgressDispatcher) Enqueue(operation string, userID, courseID uint, run func(ctx context.Context) error) *MutationResult {
	result := &MutationResult{done: make(chan struct{})}
	job := &mutationJob{
		operation: operation,
		userID:    userID,
		courseID:  courseID,
		run:       run,
		result:    result,
	}

	select {
	case <-d.stop:
		result.err = ErrDispatcherStopped
		close(result.done)
		return result
	default:
	}

	select {
	case d.jobs <- job:
		monitoring.ProgressQueueDepth.Set(float64(len(d.jobs)))
	case <-d.stop:
		result.err = ErrDispatcherStopped
		close(result.done)
	}
	return result
}

func (d *ProgressDispatcher) execute(job *mutationJob) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := job.run(ctx)
	job.result.err = err
	close(job.result.done)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		// 应答早已发出，失败只能在这里看到
		logger.Log.Warn("detached progress mutation failed",
			zap.String("operation", job.operation),
			zap.Uint("userId", job.userID),
			zap.Uint("courseId", job.courseID),
			zap.Error(err))
	}
	monitoring.ProgressMutationCounter.WithLabelValues(job.operation, outcome).Inc()
}
